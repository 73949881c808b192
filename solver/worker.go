package solver

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dshills/resolve-go/solver/emit"
	"gonum.org/v1/gonum/floats"
)

// worker runs the iteration protocol for one node. It owns its resolvent,
// its consensus variable v, its last iterate x, and two scratch
// accumulators that are zeroed (not reallocated) every round.
//
// One round, for node i at iteration k:
//
//  1. Drain upstream L peers (UpLQ ∪ UpBQ): each message xⱼᵏ feeds
//     r += L[i,j]·xⱼ, and for UpBQ peers also vtmp += W[i,j]·xⱼ — the one
//     message serves both couplings.
//  2. x ← Prox(v + r, α).
//  3. Publish x on the telemetry channel when a monitor is attached.
//  4. Broadcast x to DownLQ, DownBQ, WQ and UpBQ peers.
//  5. Drain WQ and DownBQ peers: vtmp += W[i,j]·xⱼᵏ. DownBQ messages are
//     the iterates computed after those peers saw xᵢᵏ, which is what lets
//     the symmetric W sum close while the next upstream sweep overlaps.
//  6. v ← v − γ·(W[i,i]·x + vtmp).
//  7. Zero r and vtmp.
//
// The blocking receives in phase 1 enforce the sweep order L dictates; the
// receives in phase 5 provide the current round's W data. Order inside a
// peer set is irrelevant since the accumulations commute and channels are
// FIFO per pair.
type worker struct {
	id   int
	res  Resolvent
	plan NodePlan
	fab  *fabric

	// wrow and lrow are node i's rows of W and L.
	wrow []float64
	lrow []float64

	v    []float64
	x    []float64
	r    []float64
	vtmp []float64
	y    []float64

	gamma float64
	alpha float64
	itrs  int

	// target is the shared termination flag: nil when no monitor runs,
	// otherwise single-writer (monitor) / many-reader. Zero means no
	// signal; a positive value is the round to stop at.
	target *atomic.Int64

	runID   string
	metrics *Metrics
	emitter emit.Emitter

	// rounds is the number of rounds actually completed, for the driver.
	rounds int
}

func (w *worker) run(ctx context.Context) error {
	w.metrics.WorkerStarted()
	defer w.metrics.WorkerDone()
	if w.emitter != nil {
		w.emitter.Emit(emit.Event{RunID: w.runID, Node: w.id, Msg: "worker_start"})
		defer func() {
			w.emitter.Emit(emit.Event{
				RunID: w.runID, Iter: w.rounds, Node: w.id, Msg: "worker_done",
				Meta: map[string]interface{}{"rounds": w.rounds},
			})
		}()
	}

	nodeLabel := strconv.Itoa(w.id)
	limit := w.itrs
	for k := 0; k < limit; k++ {
		// Cooperative early termination: a target at or below the current
		// round stops immediately, a later one becomes the new bound.
		// Never exit mid-round; every receive below is matched by a send
		// within the same round.
		if w.target != nil {
			if t := int(w.target.Load()); t > 0 {
				if k >= t {
					break
				}
				limit = t
			}
		}

		// Phase 1: upstream L contributions.
		for _, j := range w.plan.UpLQ {
			xj, err := w.fab.recv(ctx, j, w.id)
			if err != nil {
				return err
			}
			floats.AddScaled(w.r, w.lrow[j], xj)
		}
		for _, j := range w.plan.UpBQ {
			xj, err := w.fab.recv(ctx, j, w.id)
			if err != nil {
				return err
			}
			floats.AddScaled(w.r, w.lrow[j], xj)
			floats.AddScaled(w.vtmp, w.wrow[j], xj)
		}

		// Phase 2: resolvent step on y = v + r.
		copy(w.y, w.v)
		floats.Add(w.y, w.r)
		start := time.Now()
		x, err := w.res.Prox(w.y, w.alpha)
		if err != nil {
			return &WorkerError{Node: w.id, Iter: k, Cause: err}
		}
		w.metrics.RecordProxLatency(w.runID, nodeLabel, time.Since(start))
		w.x = x

		// Phase 3: telemetry for the termination monitor.
		if w.fab.telemetry != nil {
			if err := w.fab.publish(ctx, w.id, x); err != nil {
				return err
			}
		}

		// Phase 4: broadcast the fresh iterate. UpBQ peers already sent
		// theirs and now need x for their own W sum.
		for _, j := range w.plan.DownLQ {
			if err := w.fab.send(ctx, w.id, j, x); err != nil {
				return err
			}
		}
		for _, j := range w.plan.DownBQ {
			if err := w.fab.send(ctx, w.id, j, x); err != nil {
				return err
			}
		}
		for _, j := range w.plan.WQ {
			if err := w.fab.send(ctx, w.id, j, x); err != nil {
				return err
			}
		}
		for _, j := range w.plan.UpBQ {
			if err := w.fab.send(ctx, w.id, j, x); err != nil {
				return err
			}
		}

		// Phase 5: remaining W contributions from the current round.
		for _, j := range w.plan.WQ {
			xj, err := w.fab.recv(ctx, j, w.id)
			if err != nil {
				return err
			}
			floats.AddScaled(w.vtmp, w.wrow[j], xj)
		}
		for _, j := range w.plan.DownBQ {
			xj, err := w.fab.recv(ctx, j, w.id)
			if err != nil {
				return err
			}
			floats.AddScaled(w.vtmp, w.wrow[j], xj)
		}

		// Phase 6: consensus update.
		floats.AddScaled(w.vtmp, w.wrow[w.id], x)
		floats.AddScaled(w.v, -w.gamma, w.vtmp)

		// Phase 7: reset scratch without reallocating.
		zero(w.r)
		zero(w.vtmp)

		w.rounds = k + 1
		w.metrics.RecordIteration(w.runID)
	}

	return nil
}

func zero(s []float64) {
	for i := range s {
		s[i] = 0
	}
}
