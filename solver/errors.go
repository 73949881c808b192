// Package solver provides a distributed frugal resolvent-splitting engine
// for monotone inclusion problems of the form 0 ∈ Σᵢ Aᵢ(x).
package solver

import (
	"errors"
	"fmt"
)

// ErrDimensionMismatch indicates that a design matrix does not match the
// number of resolvents, or that W and Z disagree in size. Detected at setup,
// before any worker spawns.
var ErrDimensionMismatch = errors.New("design matrix dimensions do not match the resolvent count")

// ErrBadDesign indicates a design-matrix invariant violation: W is not
// symmetric, W has a nonzero row sum, or Z has nonzero entries on or above
// the diagonal. Detected at setup.
var ErrBadDesign = errors.New("design matrix invariant violated")

// ErrShapeMismatch indicates that the resolvents (or a warm-start vector) do
// not share a single iterate shape. Detected at setup.
var ErrShapeMismatch = errors.New("iterate shapes do not agree")

// ErrNoResolvents indicates that a solver was constructed with an empty
// operator list.
var ErrNoResolvents = errors.New("at least one resolvent is required")

// WorkerError reports a runtime failure inside one node worker. The driver
// cancels the whole run when any worker fails, since peers blocked on the
// failed worker's channels could otherwise wait forever.
type WorkerError struct {
	// Node is the index of the worker that failed.
	Node int

	// Iter is the round the worker was executing when it failed.
	Iter int

	// Cause is the underlying error, typically from Resolvent.Prox.
	Cause error
}

// Error implements the error interface.
func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %d failed on iteration %d: %v", e.Node, e.Iter, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *WorkerError) Unwrap() error {
	return e.Cause
}
