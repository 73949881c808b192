package solver

import (
	"context"
	"fmt"
	"sync/atomic"
)

// pairChanCap bounds each directed data channel. A pair carries at most one
// message per round, and a sender can lead its receiver by at most one full
// round before its own receive phases block it, so two slots make every send
// effectively non-blocking.
const pairChanCap = 2

// fabric owns the directed FIFO channels the workers exchange iterates over,
// plus the per-node telemetry channels the termination monitor consumes.
//
// Channels are created once from the plan and never resized. Message counts
// are tracked per pair so a run can report exactly how much traffic each
// edge of the design carried.
type fabric struct {
	channels map[Pair]chan []float64
	counts   map[Pair]*atomic.Int64

	// telemetry is nil when no monitor runs. Its capacity bounds how far a
	// worker can run ahead of the monitor: with the monitor consuming
	// round r, a worker blocked on publish sits at most cap rounds past
	// it. Keeping that lead below the monitor's termination margin
	// guarantees a scheduled stop target is never behind any worker, so
	// all workers stop at the same round. The monitor drains telemetry
	// until the driver cancels it, so publishes never block indefinitely.
	telemetry []chan []float64
}

// telemetryChanCap caps a worker's lead over the monitor. Must stay below
// terminationMargin − 1; see monitor.go.
const telemetryChanCap = terminationMargin - 2

func newFabric(p *Plan, monitored bool) *fabric {
	f := &fabric{
		channels: make(map[Pair]chan []float64, len(p.Channels())),
		counts:   make(map[Pair]*atomic.Int64, len(p.Channels())),
	}
	for _, pr := range p.Channels() {
		f.channels[pr] = make(chan []float64, pairChanCap)
		f.counts[pr] = new(atomic.Int64)
	}
	if monitored {
		f.telemetry = make([]chan []float64, p.N)
		for i := range f.telemetry {
			f.telemetry[i] = make(chan []float64, telemetryChanCap)
		}
	}
	return f
}

// send delivers x on the (from, to) channel. It blocks only when the
// receiver is a full round behind, and aborts if the run is cancelled.
func (f *fabric) send(ctx context.Context, from, to int, x []float64) error {
	ch, ok := f.channels[Pair{from, to}]
	if !ok {
		return fmt.Errorf("no channel from %d to %d", from, to)
	}
	select {
	case ch <- x:
		f.counts[Pair{from, to}].Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recv blocks until a message arrives on the (from, to) channel or the run
// is cancelled.
func (f *fabric) recv(ctx context.Context, from, to int) ([]float64, error) {
	ch, ok := f.channels[Pair{from, to}]
	if !ok {
		return nil, fmt.Errorf("no channel from %d to %d", from, to)
	}
	select {
	case x := <-ch:
		return x, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// publish places a telemetry sample for the monitor, blocking when the
// worker has run telemetryChanCap rounds ahead of the monitor's reads.
func (f *fabric) publish(ctx context.Context, node int, x []float64) error {
	select {
	case f.telemetry[node] <- x:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sample blocks until the next telemetry sample from the given node.
func (f *fabric) sample(ctx context.Context, node int) ([]float64, error) {
	select {
	case x := <-f.telemetry[node]:
		return x, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// sent returns how many messages were delivered from sender to receiver.
// Zero for pairs the plan created no channel for.
func (f *fabric) sent(from, to int) int64 {
	c, ok := f.counts[Pair{from, to}]
	if !ok {
		return 0
	}
	return c.Load()
}

// messageCounts snapshots the per-pair traffic of the run.
func (f *fabric) messageCounts() map[Pair]int64 {
	out := make(map[Pair]int64, len(f.counts))
	for pr, c := range f.counts {
		out[pr] = c.Load()
	}
	return out
}
