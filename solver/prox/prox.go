// Package prox provides ready-made resolvent implementations for common
// operators: quadratic penalties, L1 distance, linear subdifferentials, and
// projections onto spectral sets.
//
// All types satisfy solver.Resolvent. Vector-valued operators work directly
// on the flat iterate; matrix-valued operators (PSDCone, TraceEquality,
// TraceHalfspace) declare a two-dimensional shape and reshape internally.
package prox

import (
	"fmt"
	"math"

	"github.com/dshills/resolve-go/solver"
)

// Quad is the resolvent of the quadratic ½‖x − c‖², centered on a data
// vector c:
//
//	prox(y, τ) = (y + τ·c) / (1 + τ)
type Quad struct {
	c       []float64
	history *history
}

// NewQuad creates a quadratic resolvent centered on c.
func NewQuad(c []float64) *Quad {
	return &Quad{c: append([]float64(nil), c...)}
}

// WithLog enables per-call history recording; the recorded outputs are
// forwarded in the node's result record.
func (q *Quad) WithLog() *Quad {
	q.history = &history{}
	return q
}

// Shape returns the dimensions of the data vector.
func (q *Quad) Shape() solver.Shape { return solver.Shape{len(q.c)} }

// Prox evaluates (y + τc)/(1 + τ).
func (q *Quad) Prox(y []float64, tau float64) ([]float64, error) {
	out := make([]float64, len(y))
	for i, yi := range y {
		out[i] = (yi + tau*q.c[i]) / (1 + tau)
	}
	q.history.record(out)
	return out, nil
}

// Log returns the recorded prox outputs, or nil when logging is disabled.
func (q *Quad) Log() any { return q.history.log() }

// Abs is the resolvent of the L1 distance ‖x − c‖₁: elementwise
// soft-thresholding around the data vector,
//
//	prox(y, τ)ᵢ = cᵢ + max(|yᵢ − cᵢ| − τ, 0)·sign(yᵢ − cᵢ)
type Abs struct {
	c       []float64
	history *history
}

// NewAbs creates an L1 resolvent centered on c.
func NewAbs(c []float64) *Abs {
	return &Abs{c: append([]float64(nil), c...)}
}

// WithLog enables per-call history recording.
func (a *Abs) WithLog() *Abs {
	a.history = &history{}
	return a
}

// Shape returns the dimensions of the data vector.
func (a *Abs) Shape() solver.Shape { return solver.Shape{len(a.c)} }

// Prox soft-thresholds y around c with threshold τ.
func (a *Abs) Prox(y []float64, tau float64) ([]float64, error) {
	out := make([]float64, len(y))
	for i, yi := range y {
		u := yi - a.c[i]
		shrunk := math.Max(math.Abs(u)-tau, 0)
		if u < 0 {
			shrunk = -shrunk
		}
		out[i] = a.c[i] + shrunk
	}
	a.history.record(out)
	return out, nil
}

// Log returns the recorded prox outputs, or nil when logging is disabled.
func (a *Abs) Log() any { return a.history.log() }

// Value evaluates the L1 objective ‖x − c‖₁ of the operator, useful for
// objective-based stopping in the serial engine.
func (a *Abs) Value(x []float64) float64 {
	sum := 0.0
	for i, xi := range x {
		sum += math.Abs(xi - a.c[i])
	}
	return sum
}

// LinearSubdiff is the resolvent of the linear function ⟨a, x⟩, whose
// subdifferential is the constant a:
//
//	prox(y, τ) = y − τ·a
type LinearSubdiff struct {
	a []float64
}

// NewLinearSubdiff creates the resolvent of x ↦ ⟨a, x⟩.
func NewLinearSubdiff(a []float64) *LinearSubdiff {
	return &LinearSubdiff{a: append([]float64(nil), a...)}
}

// Shape returns the dimensions of the gradient vector.
func (l *LinearSubdiff) Shape() solver.Shape { return solver.Shape{len(l.a)} }

// Prox evaluates y − τa.
func (l *LinearSubdiff) Prox(y []float64, tau float64) ([]float64, error) {
	out := make([]float64, len(y))
	for i, yi := range y {
		out[i] = yi - tau*l.a[i]
	}
	return out, nil
}

// history accumulates prox outputs when logging is enabled. A nil history
// records nothing, so the hot path stays branch-cheap.
type history struct {
	outputs [][]float64
}

func (h *history) record(x []float64) {
	if h == nil {
		return
	}
	h.outputs = append(h.outputs, append([]float64(nil), x...))
}

func (h *history) log() any {
	if h == nil {
		return nil
	}
	return h.outputs
}

func checkLen(name string, y []float64, want int) error {
	if len(y) != want {
		return fmt.Errorf("%s: input has length %d, want %d", name, len(y), want)
	}
	return nil
}
