// Package metrics exposes Prometheus collectors for record streams.
//
// There is no HTTP endpoint. A Collector owns a private registry that callers
// either gather directly or dump in text format with WriteTextfile (for the
// node_exporter textfile collector).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes used as the "outcome" label of paysim_runs_total.
const (
	OutcomeCompleted = "completed"
	OutcomeAborted   = "aborted"
	OutcomeFailed    = "failed"
)

// Collector counts stream activity. A nil *Collector is valid and records
// nothing, so components can take an optional collector without nil checks.
type Collector struct {
	registry *prometheus.Registry

	emitted  prometheus.Counter
	consumed prometheus.Counter
	runs     *prometheus.CounterVec
	capacity prometheus.Gauge
}

// New creates a Collector registered on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		emitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paysim_records_emitted_total",
			Help: "Records handed from the simulation worker to the stream buffer.",
		}),
		consumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paysim_records_consumed_total",
			Help: "Records returned to the stream consumer.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paysim_runs_total",
			Help: "Finished simulation runs by outcome.",
		}, []string{"outcome"}),
		capacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paysim_handoff_capacity",
			Help: "Capacity of the bounded buffer between worker and consumer.",
		}),
	}
	c.registry.MustRegister(c.emitted, c.consumed, c.runs, c.capacity)
	return c
}

// Registry returns the registry holding all collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordEmitted counts one record accepted by the stream buffer.
func (c *Collector) RecordEmitted() {
	if c == nil {
		return
	}
	c.emitted.Inc()
}

// RecordConsumed counts one record returned to the consumer.
func (c *Collector) RecordConsumed() {
	if c == nil {
		return
	}
	c.consumed.Inc()
}

// RunFinished counts a finished run under the given outcome label.
func (c *Collector) RunFinished(outcome string) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(outcome).Inc()
}

// SetCapacity records the buffer capacity of the current run.
func (c *Collector) SetCapacity(n int) {
	if c == nil {
		return
	}
	c.capacity.Set(float64(n))
}

// WriteTextfile writes all metrics to path in Prometheus text format.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
