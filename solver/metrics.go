package solver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides Prometheus-compatible metrics collection for solver runs.
//
// Metrics exposed (all namespaced with "resolve_"):
//
//  1. active_workers (gauge): node workers currently executing.
//  2. iterations_total (counter, by run_id): completed worker rounds.
//  3. prox_latency_ms (histogram, by run_id/node): resolvent evaluation
//     duration. Buckets span 10µs to 10s; proximal maps range from
//     closed-form shrinkage to full eigendecompositions.
//  4. messages_total (counter, by run_id/kind): iterate messages moved
//     through the channel fabric ("data") and to the monitor ("telemetry").
//  5. variation (gauge): the monitor's last total-variation value δ.
//  6. early_terminations_total (counter, by run_id): monitor-triggered
//     early stops.
//
// All methods are nil-safe: a nil *Metrics disables collection with no
// further checks at call sites.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := solver.NewMetrics(registry)
//	s, _ := solver.New(resolvents, W, Z, solver.WithMetrics(metrics))
//
//	// Expose via HTTP for Prometheus scraping:
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type Metrics struct {
	activeWorkers     prometheus.Gauge
	iterations        *prometheus.CounterVec
	proxLatency       *prometheus.HistogramVec
	messages          *prometheus.CounterVec
	variation         prometheus.Gauge
	earlyTerminations *prometheus.CounterVec
}

// NewMetrics creates and registers all solver metrics with the provided
// Prometheus registry. A nil registry falls back to the global default
// registerer; a custom registry is recommended for isolation.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		activeWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "resolve",
			Name:      "active_workers",
			Help:      "Current number of node workers executing concurrently",
		}),
		iterations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resolve",
			Name:      "iterations_total",
			Help:      "Cumulative count of completed worker rounds",
		}, []string{"run_id"}),
		proxLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "resolve",
			Name:      "prox_latency_ms",
			Help:      "Resolvent evaluation duration in milliseconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50, 100, 1000, 10000},
		}, []string{"run_id", "node"}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resolve",
			Name:      "messages_total",
			Help:      "Iterate messages delivered through the channel fabric",
		}, []string{"run_id", "kind"}),
		variation: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "resolve",
			Name:      "variation",
			Help:      "Last total-variation value observed by the termination monitor",
		}),
		earlyTerminations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resolve",
			Name:      "early_terminations_total",
			Help:      "Runs stopped early by the termination monitor",
		}, []string{"run_id"}),
	}
}

// WorkerStarted increments the active-worker gauge.
func (m *Metrics) WorkerStarted() {
	if m == nil {
		return
	}
	m.activeWorkers.Inc()
}

// WorkerDone decrements the active-worker gauge.
func (m *Metrics) WorkerDone() {
	if m == nil {
		return
	}
	m.activeWorkers.Dec()
}

// RecordIteration counts one completed worker round.
func (m *Metrics) RecordIteration(runID string) {
	if m == nil {
		return
	}
	m.iterations.WithLabelValues(runID).Inc()
}

// RecordProxLatency records the duration of one resolvent evaluation.
func (m *Metrics) RecordProxLatency(runID, node string, latency time.Duration) {
	if m == nil {
		return
	}
	m.proxLatency.WithLabelValues(runID, node).Observe(float64(latency.Microseconds()) / 1000.0)
}

// RecordMessages counts delivered iterate messages of the given kind
// ("data" for worker-to-worker traffic, "telemetry" for monitor samples).
func (m *Metrics) RecordMessages(runID, kind string, n int64) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(runID, kind).Add(float64(n))
}

// SetVariation publishes the monitor's last total-variation value.
func (m *Metrics) SetVariation(delta float64) {
	if m == nil {
		return
	}
	m.variation.Set(delta)
}

// RecordEarlyTermination counts a monitor-triggered early stop.
func (m *Metrics) RecordEarlyTermination(runID string) {
	if m == nil {
		return
	}
	m.earlyTerminations.WithLabelValues(runID).Inc()
}
