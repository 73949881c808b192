package solver

import (
	"context"
	"fmt"
	"math"

	"github.com/dshills/resolve-go/solver/emit"
	"gonum.org/v1/gonum/floats"
)

// RunSerial executes the splitting recurrence single-threaded: an inclusive
// sequential sweep
//
//	yᵢ = vᵢ − Σⱼ<ᵢ Z[i,j]·xⱼ,  xᵢ ← J_{αAᵢ}(yᵢ)    for i = 0 … n−1
//
// followed by the consensus update vᵢ ← vᵢ − γ·Σⱼ W[i,j]·xⱼ for all i.
// Note the sweep reads Z directly, with the sign convention that makes it
// identical to the parallel engine's vᵢ + Σⱼ<ᵢ L[i,j]·xⱼ.
//
// The serial engine defines the semantics the parallel engine reproduces
// per iteration; it is also the convenient form for small-n debugging and
// supports an objective-based stopping rule the parallel engine does not.
//
// Stopping: the iteration budget, or — checked on the configured cadence —
// total iterate movement below vartol, or objective movement below objtol
// when an objective callback is configured.
func (s *Solver) RunSerial(ctx context.Context, runID string) (*Result, error) {
	v, err := s.seed()
	if err != nil {
		return nil, err
	}

	s.emitEvent(emit.Event{
		RunID: runID, Node: -1, Msg: "run_start",
		Meta: map[string]interface{}{"nodes": s.n, "itrs": s.cfg.itrs, "parallel": false},
	})
	if s.cfg.verbose != nil {
		fmt.Fprintf(s.cfg.verbose, "starting serial run %s: n=%d itrs=%d gamma=%v alpha=%v\n",
			runID, s.n, s.cfg.itrs, s.cfg.gamma, s.cfg.alpha)
	}

	m := s.shape.Size()
	x := make([][]float64, s.n)
	prevX := make([][]float64, s.n)
	for i := range x {
		x[i] = make([]float64, m)
		prevX[i] = make([]float64, m)
	}
	y := make([]float64, m)
	wx := make([]float64, m)
	xbar := make([]float64, m)

	prevObj := math.Inf(1)
	iterations := 0
	terminated := false

	for itr := 0; itr < s.cfg.itrs; itr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Sequential resolvent sweep.
		for i := 0; i < s.n; i++ {
			copy(y, v[i])
			for j := 0; j < i; j++ {
				floats.AddScaled(y, -s.z.At(i, j), x[j])
			}
			xi, err := s.resolvents[i].Prox(y, s.cfg.alpha)
			if err != nil {
				return nil, &WorkerError{Node: i, Iter: itr, Cause: err}
			}
			copy(prevX[i], x[i])
			x[i] = xi
		}

		// Consensus update over the full W rows.
		for i := 0; i < s.n; i++ {
			zero(wx)
			for j := 0; j < s.n; j++ {
				floats.AddScaled(wx, s.wrows[i][j], x[j])
			}
			floats.AddScaled(v[i], -s.cfg.gamma, wx)
		}

		iterations = itr + 1
		s.cfg.metrics.RecordIteration(runID)

		if itr%s.cfg.checkPeriod != 0 {
			continue
		}

		if s.cfg.vartol > 0 {
			delta := 0.0
			for i := 0; i < s.n; i++ {
				delta += floats.Distance(x[i], prevX[i], 2)
			}
			s.cfg.metrics.SetVariation(delta)
			if s.cfg.history != nil {
				if err := s.cfg.history.SaveSample(ctx, runID, itr, delta); err != nil {
					return nil, fmt.Errorf("save convergence sample: %w", err)
				}
			}
			if s.cfg.verbose != nil {
				fmt.Fprintf(s.cfg.verbose, "serial round %d delta %.3e\n", itr, delta)
			}
			if itr > 0 && delta < s.cfg.vartol {
				terminated = true
				break
			}
		}

		if s.cfg.objective != nil {
			zero(xbar)
			for i := 0; i < s.n; i++ {
				floats.Add(xbar, x[i])
			}
			floats.Scale(1/float64(s.n), xbar)
			obj := s.cfg.objective(xbar)
			if s.cfg.verbose != nil {
				fmt.Fprintf(s.cfg.verbose, "serial round %d objective %.6e\n", itr, obj)
			}
			if math.Abs(obj-prevObj) < s.cfg.objtol {
				terminated = true
				break
			}
			prevObj = obj
		}
	}

	res := &Result{
		XBar:       make([]float64, m),
		Nodes:      make([]NodeResult, s.n),
		Iterations: iterations,
		Terminated: terminated,
	}
	for i := 0; i < s.n; i++ {
		res.Nodes[i] = NodeResult{X: x[i], V: v[i]}
		if lg, ok := s.resolvents[i].(Logger); ok {
			res.Nodes[i].Log = lg.Log()
		}
		floats.Add(res.XBar, x[i])
		if s.cfg.history != nil {
			_ = s.cfg.history.SaveResult(ctx, runID, i, x[i], v[i])
		}
	}
	floats.Scale(1/float64(s.n), res.XBar)

	s.emitEvent(emit.Event{
		RunID: runID, Iter: res.Iterations, Node: -1, Msg: "run_complete",
		Meta: map[string]interface{}{
			"iterations": res.Iterations,
			"terminated": res.Terminated,
			"xbar_norm":  floats.Norm(res.XBar, 2),
		},
	})
	s.flushEmitter(ctx)
	if s.cfg.verbose != nil {
		fmt.Fprintf(s.cfg.verbose, "serial run %s complete after %d iterations\n", runID, res.Iterations)
	}

	return res, nil
}
