package emit

// Event represents an observability event emitted during a solver run.
//
// Events cover run lifecycle (start, completion, failure), worker lifecycle,
// and termination-monitor decisions. They are emitted to an Emitter which
// can log them, turn them into OpenTelemetry spans, or keep them in memory
// for later inspection.
type Event struct {
	// RunID identifies the solver run that emitted this event.
	RunID string

	// Iter is the outer iteration the event belongs to. Zero for
	// run-level events emitted before the first round.
	Iter int

	// Node is the index of the worker that emitted this event, or -1 for
	// run-level and monitor events.
	Node int

	// Msg is a short machine-friendly description, e.g. "run_start",
	// "worker_done", "terminate_signal".
	Msg string

	// Meta carries additional structured data. Common keys:
	//   - "error": failure details
	//   - "delta": the monitor's last total-variation value
	//   - "target": the termination target iteration
	//   - "xbar_norm": norm of the aggregated solution
	Meta map[string]interface{}
}
