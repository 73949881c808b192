package solver

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/dshills/resolve-go/solver/emit"
	"github.com/dshills/resolve-go/solver/store"
	"gonum.org/v1/gonum/floats"
)

// streakThreshold is how many consecutive sub-tolerance rounds the monitor
// requires before it declares convergence.
const streakThreshold = 10

// terminationMargin is how many rounds past the convergence round workers
// keep running. The margin lets in-flight messages flush so every worker
// reaches the same clean stopping round.
const terminationMargin = 10

// monitor is the auxiliary activity that watches per-round iterates for
// convergence. It consumes the telemetry channels, computes the total
// variation δᵏ = Σᵢ ‖w̃ᵢᵏ − w̃ᵢᵏ⁻¹‖ between consecutive samples, and once δ
// stays below vartol for streakThreshold consecutive checks it stores a
// stop target a few rounds ahead into the shared flag and exits.
//
// The monitor is bounded to itrs − terminationMargin rounds of evaluation
// so it stops observing even when convergence never comes, and after its
// last evaluation it keeps draining telemetry until the driver cancels it.
// Draining matters twice over: workers publishing late rounds never block
// on an absent consumer, and the telemetry backpressure bound stays valid —
// when a target t is stored, every worker sits at a round at most t, so all
// of them finish exactly at round t and no channel is left half-read.
type monitor struct {
	n           int
	fab         *fabric
	vartol      float64
	itrs        int
	checkPeriod int
	target      *atomic.Int64

	runID   string
	metrics *Metrics
	emitter emit.Emitter
	history store.Store
	verbose io.Writer
}

func (m *monitor) run(ctx context.Context) error {
	// Baseline: one sample per node from round zero.
	prev := make([][]float64, m.n)
	for i := 0; i < m.n; i++ {
		w, err := m.fab.sample(ctx, i)
		if err != nil {
			return err
		}
		prev[i] = w
	}

	streak := 0
	bound := m.itrs - terminationMargin
	for itr := 0; itr < bound; itr++ {
		cur := make([][]float64, m.n)
		for i := 0; i < m.n; i++ {
			w, err := m.fab.sample(ctx, i)
			if err != nil {
				return err
			}
			cur[i] = w
		}

		// Samples are drained every round to keep pace with the workers;
		// the convergence test itself runs on the configured cadence.
		if itr%m.checkPeriod == 0 {
			delta := 0.0
			for i := 0; i < m.n; i++ {
				delta += floats.Distance(cur[i], prev[i], 2)
			}
			m.metrics.SetVariation(delta)
			if m.history != nil {
				if err := m.history.SaveSample(ctx, m.runID, itr, delta); err != nil {
					return fmt.Errorf("save convergence sample: %w", err)
				}
			}
			if m.verbose != nil {
				fmt.Fprintf(m.verbose, "monitor round %d delta %.3e\n", itr, delta)
			}

			if delta < m.vartol {
				streak++
				if streak >= streakThreshold {
					target := itr + terminationMargin
					m.target.Store(int64(target))
					m.metrics.RecordEarlyTermination(m.runID)
					if m.emitter != nil {
						m.emitter.Emit(emit.Event{
							RunID: m.runID,
							Iter:  itr,
							Node:  -1,
							Msg:   "terminate_signal",
							Meta:  map[string]interface{}{"target": target, "delta": delta},
						})
					}
					return m.drain(ctx)
				}
			} else {
				streak = 0
			}
		}

		prev = cur
	}

	return m.drain(ctx)
}

// drain keeps consuming telemetry after the monitor's last evaluation so no
// worker ever blocks publishing. Returns when the driver cancels the
// monitor, which it does once every worker has joined.
func (m *monitor) drain(ctx context.Context) error {
	for {
		for i := 0; i < m.n; i++ {
			if _, err := m.fab.sample(ctx, i); err != nil {
				return err
			}
		}
	}
}
