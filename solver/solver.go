package solver

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/dshills/resolve-go/solver/emit"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Solver coordinates a frugal resolvent-splitting run over n operators.
//
// The problem 0 ∈ Σᵢ Aᵢ(x) is solved on a lifted variable v ∈ ℝⁿᵐ with one
// resolvent evaluation per operator per round and communication restricted
// to the sparsity of the design pair (W, Z). The recurrence is
//
//	xᵢᵏ⁺¹ = J_{αAᵢ}(vᵢᵏ + Σⱼ<ᵢ L[i,j]·xⱼᵏ⁺¹)
//	vᵢᵏ⁺¹ = vᵢᵏ − γ·Σⱼ W[i,j]·xⱼᵏ⁺¹
//
// with L = −strict_lower(Z). RunParallel executes it with one goroutine per
// operator exchanging iterates over channels; RunSerial executes the same
// recurrence in a single sweep and defines the semantics the parallel
// engine must match round for round.
//
// A Solver is immutable after New and may be reused for multiple runs; runs
// must not overlap when the resolvents are stateful (e.g. log-keeping).
//
// Example:
//
//	resolvents := []solver.Resolvent{prox.NewQuad([]float64{1, 0}), prox.NewQuad([]float64{0, 1})}
//	s, err := solver.New(resolvents, W, Z, solver.WithGamma(0.5), solver.WithIterations(200))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := s.RunParallel(ctx, "run-001")
type Solver struct {
	n          int
	resolvents []Resolvent
	shape      Shape

	w *mat.Dense
	z *mat.Dense
	l *mat.Dense

	// Row views of W and L for the worker hot loops.
	wrows [][]float64
	lrows [][]float64

	cfg config
}

// New validates the configuration and builds a Solver.
//
// Setup failures — dimension disagreements, design-matrix invariant
// violations, shape mismatches — are reported here, before any worker can
// spawn. W must be symmetric with zero row sums; Z must be strictly lower
// triangular; every resolvent must report the same shape; warm-start
// vectors must match that shape.
func New(resolvents []Resolvent, w, z *mat.Dense, opts ...Option) (*Solver, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	n := len(resolvents)
	if n == 0 {
		return nil, ErrNoResolvents
	}

	if err := validateDesign(w, z, n, cfg.tol); err != nil {
		return nil, err
	}

	shape := resolvents[0].Shape()
	if shape.Size() == 0 {
		return nil, fmt.Errorf("%w: resolvent 0 reports an empty shape", ErrShapeMismatch)
	}
	for i, r := range resolvents[1:] {
		if !r.Shape().Equal(shape) {
			return nil, fmt.Errorf("%w: resolvent %d has shape %v, want %v",
				ErrShapeMismatch, i+1, r.Shape(), shape)
		}
	}

	m := shape.Size()
	if cfg.warmPrimal != nil && len(cfg.warmPrimal) != m {
		return nil, fmt.Errorf("%w: warm-start primal has length %d, want %d",
			ErrShapeMismatch, len(cfg.warmPrimal), m)
	}
	if cfg.warmDual != nil {
		if len(cfg.warmDual) != n {
			return nil, fmt.Errorf("%w: warm-start dual has %d vectors for %d nodes",
				ErrShapeMismatch, len(cfg.warmDual), n)
		}
		for i, u := range cfg.warmDual {
			if len(u) != m {
				return nil, fmt.Errorf("%w: warm-start dual vector %d has length %d, want %d",
					ErrShapeMismatch, i, len(u), m)
			}
		}
	}

	// L = −strict_lower(Z).
	l := mat.NewDense(n, n, nil)
	for i := 1; i < n; i++ {
		for j := 0; j < i; j++ {
			l.Set(i, j, -z.At(i, j))
		}
	}

	s := &Solver{
		n:          n,
		resolvents: resolvents,
		shape:      shape,
		w:          w,
		z:          z,
		l:          l,
		wrows:      rowSlices(w),
		lrows:      rowSlices(l),
		cfg:        cfg,
	}
	return s, nil
}

// validateDesign fail-fasts on the matrix invariants the recurrence relies
// on: W symmetric with W·1 = 0 (which preserves Σᵢvᵢ = 0 across rounds),
// Z strictly lower triangular, both n×n.
func validateDesign(w, z *mat.Dense, n int, tol float64) error {
	if w == nil || z == nil {
		return fmt.Errorf("%w: design matrices must not be nil", ErrDimensionMismatch)
	}
	wr, wc := w.Dims()
	if wr != n || wc != n {
		return fmt.Errorf("%w: W is %dx%d for %d resolvents", ErrDimensionMismatch, wr, wc, n)
	}
	zr, zc := z.Dims()
	if zr != n || zc != n {
		return fmt.Errorf("%w: Z is %dx%d for %d resolvents", ErrDimensionMismatch, zr, zc, n)
	}

	for i := 0; i < n; i++ {
		rowSum := 0.0
		for j := 0; j < n; j++ {
			rowSum += w.At(i, j)
			if j > i && math.Abs(w.At(i, j)-w.At(j, i)) > tol {
				return fmt.Errorf("%w: W[%d,%d]=%v but W[%d,%d]=%v",
					ErrBadDesign, i, j, w.At(i, j), j, i, w.At(j, i))
			}
			if j >= i && math.Abs(z.At(i, j)) > tol {
				return fmt.Errorf("%w: Z[%d,%d]=%v is not strictly lower triangular",
					ErrBadDesign, i, j, z.At(i, j))
			}
		}
		if math.Abs(rowSum) > tol*float64(n) {
			return fmt.Errorf("%w: W row %d sums to %v, want 0", ErrBadDesign, i, rowSum)
		}
	}
	return nil
}

func rowSlices(a *mat.Dense) [][]float64 {
	r, _ := a.Dims()
	rows := make([][]float64, r)
	for i := 0; i < r; i++ {
		rows[i] = mat.Row(nil, i, a)
	}
	return rows
}

// N returns the number of operators.
func (s *Solver) N() int { return s.n }

// L returns a copy of the derived pre-resolvent matrix L = −strict_lower(Z).
func (s *Solver) L() *mat.Dense {
	out := mat.NewDense(s.n, s.n, nil)
	out.Copy(s.l)
	return out
}

// RunParallel executes the splitting with one worker goroutine per operator
// and, when a variable tolerance is configured, a termination monitor.
//
// The run completes when every worker finishes its rounds (the iteration
// budget, or the monitor's earlier target). Any worker failure cancels the
// whole run: a dead worker's unwritten channels would block its peers
// forever, so the first error tears everything down and is returned after
// all goroutines have exited.
func (s *Solver) RunParallel(ctx context.Context, runID string) (*Result, error) {
	plan, err := BuildPlan(s.w, s.l, s.cfg.tol)
	if err != nil {
		return nil, err
	}

	v0, err := s.seed()
	if err != nil {
		return nil, err
	}

	monitored := s.cfg.vartol > 0 && s.cfg.itrs > terminationMargin
	fab := newFabric(plan, monitored)

	var target *atomic.Int64
	if monitored {
		target = new(atomic.Int64)
	}

	s.emitEvent(emit.Event{
		RunID: runID, Node: -1, Msg: "run_start",
		Meta: map[string]interface{}{"nodes": s.n, "itrs": s.cfg.itrs, "parallel": true},
	})
	if s.cfg.verbose != nil {
		fmt.Fprintf(s.cfg.verbose, "starting parallel run %s: n=%d itrs=%d gamma=%v alpha=%v\n",
			runID, s.n, s.cfg.itrs, s.cfg.gamma, s.cfg.alpha)
	}

	m := s.shape.Size()
	workers := make([]*worker, s.n)
	for i := 0; i < s.n; i++ {
		workers[i] = &worker{
			id:      i,
			res:     s.resolvents[i],
			plan:    plan.Nodes[i],
			fab:     fab,
			wrow:    s.wrows[i],
			lrow:    s.lrows[i],
			v:       v0[i],
			x:       make([]float64, m),
			r:       make([]float64, m),
			vtmp:    make([]float64, m),
			y:       make([]float64, m),
			gamma:   s.cfg.gamma,
			alpha:   s.cfg.alpha,
			itrs:    s.cfg.itrs,
			target:  target,
			runID:   runID,
			metrics: s.cfg.metrics,
			emitter: s.cfg.emitter,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		g.Go(func() error { return w.run(gctx) })
	}

	// The monitor lives outside the errgroup: once all workers are done it
	// has nothing left to observe and is simply cancelled. stopMonitor is
	// idempotent and blocks until the monitor goroutine has exited, so the
	// termination flag is quiescent before results are read.
	stopMonitor := func() {}
	if monitored {
		mon := &monitor{
			n:           s.n,
			fab:         fab,
			vartol:      s.cfg.vartol,
			itrs:        s.cfg.itrs,
			checkPeriod: s.cfg.checkPeriod,
			target:      target,
			runID:       runID,
			metrics:     s.cfg.metrics,
			emitter:     s.cfg.emitter,
			history:     s.cfg.history,
			verbose:     s.cfg.verbose,
		}
		monCtx, monCancel := context.WithCancel(gctx)
		monDone := make(chan struct{})
		go func() {
			defer close(monDone)
			_ = mon.run(monCtx)
		}()
		stopMonitor = func() {
			monCancel()
			<-monDone
		}
		defer stopMonitor()
	}

	if err := g.Wait(); err != nil {
		s.emitEvent(emit.Event{
			RunID: runID, Node: -1, Msg: "run_error",
			Meta: map[string]interface{}{"error": err.Error()},
		})
		s.flushEmitter(ctx)
		return nil, err
	}

	stopMonitor()
	res := s.collect(ctx, runID, workers, fab, target)

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
		fmt.Fprintf(s.cfg.verbose, "parallel run %s complete after %d iterations\n", runID, res.Iterations)
	}

	return res, nil
}

// collect assembles the Result from finished workers and records it in the
// history store when one is attached.
func (s *Solver) collect(ctx context.Context, runID string, workers []*worker, fab *fabric, target *atomic.Int64) *Result {
	m := s.shape.Size()
	res := &Result{
		XBar:     make([]float64, m),
		Nodes:    make([]NodeResult, s.n),
		Messages: fab.messageCounts(),
	}

	var data int64
	for _, c := range res.Messages {
		data += c
	}
	s.cfg.metrics.RecordMessages(runID, "data", data)
	if fab.telemetry != nil {
		s.cfg.metrics.RecordMessages(runID, "telemetry", int64(workers[0].rounds)*int64(s.n))
	}

	for i, w := range workers {
		res.Nodes[i] = NodeResult{X: w.x, V: w.v}
		if lg, ok := s.resolvents[i].(Logger); ok {
			res.Nodes[i].Log = lg.Log()
		}
		floats.Add(res.XBar, w.x)
		if s.cfg.history != nil {
			_ = s.cfg.history.SaveResult(ctx, runID, i, w.x, w.v)
		}
	}
	floats.Scale(1/float64(s.n), res.XBar)

	res.Iterations = workers[0].rounds
	if target != nil {
		if t := target.Load(); t > 0 {
			res.Terminated = true
			res.TargetIter = int(t)
		}
	}
	return res
}

func (s *Solver) emitEvent(e emit.Event) {
	if s.cfg.emitter != nil {
		s.cfg.emitter.Emit(e)
	}
}

func (s *Solver) flushEmitter(ctx context.Context) {
	if s.cfg.emitter != nil {
		_ = s.cfg.emitter.Flush(ctx)
	}
}
