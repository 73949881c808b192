package emit

import (
	"context"
	"sync"
)

// BufferedEmitter implements Emitter by storing events in memory.
//
// This emitter captures all events and provides query capabilities for
// run-history analysis. Events are organized by runID for efficient
// retrieval and filtering.
//
// Use cases:
//   - Development and debugging
//   - Testing and validation (assert on emitted lifecycle events)
//   - Post-run analysis of termination behavior
//
// Warning: all events are kept in memory. For long-lived processes running
// many solves, Clear finished runs periodically.
//
// Example usage:
//
//	emitter := emit.NewBufferedEmitter()
//	s, _ := solver.New(resolvents, W, Z, solver.WithEmitter(emitter))
//	_, _ = s.RunParallel(ctx, "run-001")
//	events := emitter.GetHistory("run-001")
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // runID -> events
}

// HistoryFilter specifies criteria for filtering run history.
//
// All fields are optional; set fields combine with AND logic.
type HistoryFilter struct {
	Node    *int   // Filter by node index (nil = no filter)
	Msg     string // Filter by message (empty = no filter)
	MinIter *int   // Minimum iteration (nil = no filter)
	MaxIter *int   // Maximum iteration (nil = no filter)
}

// NewBufferedEmitter creates a new BufferedEmitter. Safe for concurrent use.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores an event in the buffer, keyed by its runID.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[event.RunID] = append(b.events[event.RunID], event)
}

// EmitBatch stores all events in order under a single lock acquisition.
func (b *BufferedEmitter) EmitBatch(_ context.Context, events []Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, event := range events {
		b.events[event.RunID] = append(b.events[event.RunID], event)
	}
	return nil
}

// Flush is a no-op: events are already stored in memory.
func (b *BufferedEmitter) Flush(_ context.Context) error {
	return nil
}

// GetHistory retrieves all events for a runID in emission order. Returns a
// copy; the internal buffer is never exposed.
func (b *BufferedEmitter) GetHistory(runID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[runID]
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// GetHistoryWithFilter retrieves the events for a runID that match the
// filter, in emission order.
func (b *BufferedEmitter) GetHistoryWithFilter(runID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for _, event := range b.events[runID] {
		if filter.Node != nil && event.Node != *filter.Node {
			continue
		}
		if filter.Msg != "" && event.Msg != filter.Msg {
			continue
		}
		if filter.MinIter != nil && event.Iter < *filter.MinIter {
			continue
		}
		if filter.MaxIter != nil && event.Iter > *filter.MaxIter {
			continue
		}
		out = append(out, event)
	}
	return out
}

// Clear removes all events for a runID. Clearing an unknown runID is a
// no-op.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.events, runID)
}

// ClearAll removes every buffered event.
func (b *BufferedEmitter) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = make(map[string][]Event)
}
