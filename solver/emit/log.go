package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LogEmitter implements Emitter by writing structured log output to a writer.
//
// Supports two output modes:
// - Text mode (default): human-readable format with key=value pairs.
// - JSON mode: machine-readable JSON, one event per line (JSONL).
//
// Example text output:
//
//	[run_start] runID=run-001 iter=0 node=-1
//	[terminate_signal] runID=run-001 iter=52 node=-1 meta={"target":62}
//
// Example JSON output:
//
//	{"runID":"run-001","iter":0,"node":-1,"msg":"run_start","meta":null}
type LogEmitter struct {
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a new LogEmitter writing to the given writer.
// A nil writer defaults to os.Stdout. When jsonMode is true events are
// emitted as JSONL, otherwise as human-readable text.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{
		writer:   writer,
		jsonMode: jsonMode,
	}
}

// Emit writes one event to the configured writer.
func (l *LogEmitter) Emit(event Event) {
	if l.jsonMode {
		l.emitJSON(event)
	} else {
		l.emitText(event)
	}
}

func (l *LogEmitter) emitJSON(event Event) {
	data, err := json.Marshal(struct {
		RunID string                 `json:"runID"`
		Iter  int                    `json:"iter"`
		Node  int                    `json:"node"`
		Msg   string                 `json:"msg"`
		Meta  map[string]interface{} `json:"meta"`
	}{
		RunID: event.RunID,
		Iter:  event.Iter,
		Node:  event.Node,
		Msg:   event.Msg,
		Meta:  event.Meta,
	})
	if err != nil {
		_, _ = fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	_, _ = fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	_, _ = fmt.Fprintf(l.writer, "[%s] runID=%s iter=%d node=%d",
		event.Msg, event.RunID, event.Iter, event.Node)

	if len(event.Meta) > 0 {
		metaJSON, err := json.Marshal(event.Meta)
		if err == nil {
			_, _ = fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		} else {
			_, _ = fmt.Fprintf(l.writer, " meta=%v", event.Meta)
		}
	}

	_, _ = fmt.Fprint(l.writer, "\n")
}

// EmitBatch writes all events in order. In JSON mode the batch is emitted as
// JSONL; in text mode as consecutive lines. Always attempts every event.
func (l *LogEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, event := range events {
		l.Emit(event)
	}
	return nil
}

// Flush is a no-op: LogEmitter writes directly without internal buffering.
// Wrap the writer in a bufio.Writer and flush that if buffered output is
// needed.
func (l *LogEmitter) Flush(_ context.Context) error {
	return nil
}
