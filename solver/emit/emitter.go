// Package emit provides event emission and observability for solver runs.
package emit

import "context"

// Emitter receives and processes observability events from solver execution.
//
// Emitters enable pluggable observability backends:
// - Logging: stdout, files, syslog.
// - Distributed tracing: OpenTelemetry, Jaeger, Zipkin.
// - In-memory buffering for tests and post-run analysis.
//
// Implementations should be:
// - Non-blocking: never slow down the iteration hot path.
// - Thread-safe: workers and the monitor emit concurrently.
// - Resilient: a failing backend must not crash the run.
type Emitter interface {
	// Emit sends one observability event to the configured backend.
	// Emit must not panic; backend errors are handled internally.
	Emit(event Event)

	// EmitBatch sends multiple events in a single operation. Events are
	// processed in order. Returns an error only on catastrophic failures;
	// individual event failures are logged and skipped.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush ensures all buffered events reach the backend. Call it at run
	// completion and before shutdown. Safe to call multiple times.
	Flush(ctx context.Context) error
}
