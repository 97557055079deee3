// Package metrics exposes prometheus counters and histograms for the
// render pipeline: tasks run by kind/outcome, cache hits, and per-stage
// duration. Registered against a caller-supplied *prometheus.Registry
// rather than the global default registry, so a host application can scope
// or omit metrics entirely (SPEC_FULL.md §B).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics holds every metric the DAG runner and renderer facade
// report against.
type PipelineMetrics struct {
	TasksTotal      *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	RendersTotal    *prometheus.CounterVec
	ActiveRendering prometheus.Gauge
}

// NewPipelineMetrics constructs and registers every metric against
// registry. A non-nil error is returned if any metric fails to register
// (e.g. a name collision with something else registered on registry).
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{
		TasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "phrase_renderer",
			Name:      "tasks_total",
			Help:      "Count of DAG tasks that ran to success or failure, by kind and outcome.",
		}, []string{"kind", "outcome"}),

		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "phrase_renderer",
			Name:      "cache_lookups_total",
			Help:      "Count of cache probes, by artifact kind and hit/miss.",
		}, []string{"kind", "result"}),

		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "phrase_renderer",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration of one stage's Run, by kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),

		RendersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "phrase_renderer",
			Name:      "renders_total",
			Help:      "Count of completed render() calls, by result (complete/interrupted).",
		}, []string{"result"}),

		ActiveRendering: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "phrase_renderer",
			Name:      "rendering_active",
			Help:      "1 while a render is in progress, 0 otherwise.",
		}),
	}

	collectors := []prometheus.Collector{
		m.TasksTotal, m.CacheLookups, m.StageDuration, m.RendersTotal, m.ActiveRendering,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordTaskFinished increments TasksTotal for kind/outcome.
func (m *PipelineMetrics) RecordTaskFinished(kind, outcome string) {
	m.TasksTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordCacheLookup increments CacheLookups for kind/result ("hit" or "miss").
func (m *PipelineMetrics) RecordCacheLookup(kind, result string) {
	m.CacheLookups.WithLabelValues(kind, result).Inc()
}

// ObserveStageDuration records durationSeconds against kind's histogram.
func (m *PipelineMetrics) ObserveStageDuration(kind string, durationSeconds float64) {
	m.StageDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordRenderFinished increments RendersTotal for result.
func (m *PipelineMetrics) RecordRenderFinished(result string) {
	m.RendersTotal.WithLabelValues(result).Inc()
}
