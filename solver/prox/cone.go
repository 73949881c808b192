package prox

import (
	"fmt"

	"github.com/dshills/resolve-go/solver"
	"gonum.org/v1/gonum/mat"
)

// PSDCone is the resolvent (projection) onto the cone of positive
// semidefinite d×d symmetric matrices: eigendecompose, clip negative
// eigenvalues to zero, reconstruct. The step size is irrelevant for an
// indicator function and is ignored.
type PSDCone struct {
	d int
}

// NewPSDCone creates the PSD projection for d×d matrix iterates.
func NewPSDCone(d int) *PSDCone {
	return &PSDCone{d: d}
}

// Shape returns the matrix dimensions.
func (p *PSDCone) Shape() solver.Shape { return solver.Shape{p.d, p.d} }

// Prox projects the (symmetrized) input matrix onto the PSD cone.
func (p *PSDCone) Prox(y []float64, _ float64) ([]float64, error) {
	if err := checkLen("psd cone", y, p.d*p.d); err != nil {
		return nil, err
	}
	return projectPSD(y, p.d)
}

// projectPSD clips the negative eigenvalues of the symmetric part of the
// flat d×d matrix y.
func projectPSD(y []float64, d int) ([]float64, error) {
	sym := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			sym.SetSym(i, j, 0.5*(y[i*d+j]+y[j*d+i]))
		}
	}

	var es mat.EigenSym
	if !es.Factorize(sym, true) {
		return nil, fmt.Errorf("psd cone: eigendecomposition failed")
	}
	vals := es.Values(nil)
	for k, v := range vals {
		if v < 0 {
			vals[k] = 0
		}
	}
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	var scaled, proj mat.Dense
	scaled.Mul(&vecs, mat.NewDiagDense(d, vals))
	proj.Mul(&scaled, vecs.T())

	out := make([]float64, d*d)
	for i := 0; i < d; i++ {
		for j := 0; j < d; j++ {
			out[i*d+j] = proj.At(i, j)
		}
	}
	return out, nil
}

// TraceEquality is the resolvent (projection) onto the affine set
// {X : tr(A·X) = v} for a symmetric coefficient matrix A:
//
//	prox(X) = X − (tr(A·X) − v)·A/‖A‖²_F
type TraceEquality struct {
	a []float64 // flat d×d coefficient matrix
	d int
	v float64
	u []float64 // A scaled by its squared Frobenius norm
}

// NewTraceEquality creates the projection onto tr(A·X) = v. The coefficient
// matrix a is given flat, row-major, d×d.
func NewTraceEquality(a []float64, d int, v float64) (*TraceEquality, error) {
	if err := checkLen("trace equality", a, d*d); err != nil {
		return nil, err
	}
	fro2 := 0.0
	for _, e := range a {
		fro2 += e * e
	}
	if fro2 == 0 {
		return nil, fmt.Errorf("trace equality: coefficient matrix must be nonzero")
	}
	u := make([]float64, len(a))
	for i, e := range a {
		u[i] = e / fro2
	}
	return &TraceEquality{
		a: append([]float64(nil), a...),
		d: d,
		v: v,
		u: u,
	}, nil
}

// Shape returns the matrix dimensions.
func (t *TraceEquality) Shape() solver.Shape { return solver.Shape{t.d, t.d} }

// Prox shifts the input along the scaled coefficient matrix until the trace
// constraint holds.
func (t *TraceEquality) Prox(y []float64, _ float64) ([]float64, error) {
	if err := checkLen("trace equality", y, t.d*t.d); err != nil {
		return nil, err
	}
	gap := traceProduct(t.a, y, t.d) - t.v
	out := make([]float64, len(y))
	for i, yi := range y {
		out[i] = yi - gap*t.u[i]
	}
	return out, nil
}

// TraceHalfspace is the resolvent (projection) onto {X : tr(A·X) ≥ 0}.
type TraceHalfspace struct {
	a []float64
	d int
	u []float64
}

// NewTraceHalfspace creates the projection onto tr(A·X) ≥ 0.
func NewTraceHalfspace(a []float64, d int) (*TraceHalfspace, error) {
	eq, err := NewTraceEquality(a, d, 0)
	if err != nil {
		return nil, err
	}
	return &TraceHalfspace{a: eq.a, d: eq.d, u: eq.u}, nil
}

// Shape returns the matrix dimensions.
func (t *TraceHalfspace) Shape() solver.Shape { return solver.Shape{t.d, t.d} }

// Prox leaves feasible points untouched and projects infeasible ones onto
// the boundary hyperplane.
func (t *TraceHalfspace) Prox(y []float64, _ float64) ([]float64, error) {
	if err := checkLen("trace halfspace", y, t.d*t.d); err != nil {
		return nil, err
	}
	ax := traceProduct(t.a, y, t.d)
	out := make([]float64, len(y))
	copy(out, y)
	if ax >= 0 {
		return out, nil
	}
	for i := range out {
		out[i] -= ax * t.u[i]
	}
	return out, nil
}

// traceProduct computes tr(A·X) for flat row-major d×d matrices.
func traceProduct(a, x []float64, d int) float64 {
	sum := 0.0
	for i := 0; i < d; i++ {
		for j := 0; j < d; j++ {
			sum += a[i*d+j] * x[j*d+i]
		}
	}
	return sum
}
