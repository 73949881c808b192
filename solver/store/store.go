// Package store provides persistence implementations for solver run history.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested run ID has no recorded data.
var ErrNotFound = errors.New("not found")

// Store records the history of solver runs: the termination monitor's
// per-round total-variation samples and the final per-node iterates.
//
// A Store is an optional side channel for post-run analysis. Results are
// always returned to the caller in memory; no engine state is ever reloaded
// from a Store.
//
// Implementations:
//   - MemStore: in-memory maps, for testing and short-lived processes.
//   - SQLiteStore: single-file database, zero-setup local persistence.
//   - MySQLStore: shared database for collecting runs across processes.
type Store interface {
	// SaveSample records one total-variation measurement from the
	// termination monitor.
	SaveSample(ctx context.Context, runID string, iter int, delta float64) error

	// SaveResult records the final iterate pair (x, v) of one node.
	SaveResult(ctx context.Context, runID string, node int, x, v []float64) error

	// LoadSamples retrieves a run's variation samples in iteration order.
	// Returns ErrNotFound if the run recorded none.
	LoadSamples(ctx context.Context, runID string) ([]Sample, error)

	// LoadResults retrieves a run's final node records ordered by node
	// index. Returns ErrNotFound if the run recorded none.
	LoadResults(ctx context.Context, runID string) ([]NodeRecord, error)

	// Close releases any resources held by the store.
	Close() error
}

// Sample is one recorded total-variation measurement.
type Sample struct {
	// Iter is the monitor round the measurement belongs to.
	Iter int

	// Delta is the summed per-node iterate movement for that round.
	Delta float64
}

// NodeRecord is the persisted final state of one node.
type NodeRecord struct {
	// Node is the worker index.
	Node int

	// X is the node's final resolvent output.
	X []float64

	// V is the node's final consensus variable.
	V []float64
}
