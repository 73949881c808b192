package emit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter implements Emitter by creating OpenTelemetry spans.
//
// Each event becomes a span with:
//   - Span name: event.Msg (e.g. "run_start", "worker_done")
//   - Attributes: runID, iter, node, and all event.Meta fields
//   - Status: set to error if event.Meta["error"] holds a string
//
// Spans are created and immediately ended: solver events represent points
// in time, not durations. Duration analysis belongs to the Prometheus
// latency histograms.
//
// Usage:
//
//	tracer := otel.Tracer("resolve-go")
//	emitter := emit.NewOTelEmitter(tracer)
//	s, _ := solver.New(resolvents, W, Z, solver.WithEmitter(emitter))
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates a new OTelEmitter from an OpenTelemetry tracer,
// typically otel.Tracer("resolve-go").
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit creates one span for the event.
func (o *OTelEmitter) Emit(event Event) {
	o.emitSpan(context.Background(), event)
}

// EmitBatch creates one span per event, sharing the given context so trace
// propagation works across the batch.
func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, event := range events {
		o.emitSpan(ctx, event)
	}
	return nil
}

// Flush is a no-op: span export is handled by the configured OpenTelemetry
// span processor (use a batch processor with its own flush on shutdown).
func (o *OTelEmitter) Flush(_ context.Context) error {
	return nil
}

func (o *OTelEmitter) emitSpan(ctx context.Context, event Event) {
	_, span := o.tracer.Start(ctx, event.Msg)
	defer span.End()

	span.SetAttributes(
		attribute.String("run_id", event.RunID),
		attribute.Int("iter", event.Iter),
		attribute.Int("node", event.Node),
	)
	for key, value := range event.Meta {
		span.SetAttributes(metaAttribute(key, value))
	}

	if err, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, err)
		span.RecordError(fmt.Errorf("%s", err))
	}
}

// metaAttribute converts a metadata value to a typed span attribute,
// falling back to its string rendering for uncommon types.
func metaAttribute(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
