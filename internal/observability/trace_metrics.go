package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TraceCollector exposes trace engine and snapshot metrics.
type TraceCollector struct {
	gatherer prometheus.Gatherer

	Traces         *prometheus.CounterVec
	TraceHops      *prometheus.HistogramVec
	TraceLoss      *prometheus.HistogramVec
	TraceDuration  *prometheus.HistogramVec
	SnapshotNodes  prometheus.Gauge
	SnapshotCables prometheus.Gauge
	IndexCache     *prometheus.CounterVec
}

// NewTraceCollector registers trace metrics against the provided registerer.
func NewTraceCollector(reg prometheus.Registerer) (*TraceCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	traces, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fibertrace_traces_total",
		Help: "Completed strand traces, labeled by terminal status and reason.",
	}, []string{"status", "reason"}), "fibertrace_traces_total")
	if err != nil {
		return nil, err
	}

	hops, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fibertrace_trace_hops",
		Help:    "Number of cables traversed per trace.",
		Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16, 24, 32},
	}, []string{"status"}), "fibertrace_trace_hops")
	if err != nil {
		return nil, err
	}

	loss, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fibertrace_trace_loss_db",
		Help:    "Estimated end-to-end optical loss per trace in dB.",
		Buckets: []float64{1, 3, 5, 10, 15, 20, 25, 28, 32, 40},
	}, []string{"status"}), "fibertrace_trace_loss_db")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fibertrace_trace_duration_seconds",
		Help:    "Wall time spent walking a strand, excluding index builds.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}, []string{"status"}), "fibertrace_trace_duration_seconds")
	if err != nil {
		return nil, err
	}

	nodes, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fibertrace_snapshot_nodes",
		Help: "Number of nodes in the current snapshot.",
	}), "fibertrace_snapshot_nodes")
	if err != nil {
		return nil, err
	}

	cables, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fibertrace_snapshot_cables",
		Help: "Number of cables in the current snapshot.",
	}), "fibertrace_snapshot_cables")
	if err != nil {
		return nil, err
	}

	cache, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fibertrace_index_cache_total",
		Help: "Topology index cache lookups, labeled by result (hit, miss, shared).",
	}, []string{"result"}), "fibertrace_index_cache_total")
	if err != nil {
		return nil, err
	}

	return &TraceCollector{
		gatherer:       gatherer,
		Traces:         traces,
		TraceHops:      hops,
		TraceLoss:      loss,
		TraceDuration:  duration,
		SnapshotNodes:  nodes,
		SnapshotCables: cables,
		IndexCache:     cache,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *TraceCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveTrace records one completed trace.
func (c *TraceCollector) ObserveTrace(status, reason string, hops int, lossDb float64, d time.Duration) {
	if c == nil {
		return
	}
	c.Traces.WithLabelValues(status, reason).Inc()
	c.TraceHops.WithLabelValues(status).Observe(float64(hops))
	c.TraceLoss.WithLabelValues(status).Observe(lossDb)
	c.TraceDuration.WithLabelValues(status).Observe(d.Seconds())
}

// SetSnapshotCounts updates the snapshot size gauges.
func (c *TraceCollector) SetSnapshotCounts(nodes, cables int) {
	if c == nil {
		return
	}
	c.SnapshotNodes.Set(float64(nodes))
	c.SnapshotCables.Set(float64(cables))
}

// IncIndexCache counts an index cache lookup.
func (c *TraceCollector) IncIndexCache(result string) {
	if c == nil {
		return
	}
	c.IndexCache.WithLabelValues(result).Inc()
}
