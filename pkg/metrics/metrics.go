// Package metrics defines the Prometheus metric collectors used by the
// pipeline and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for one pipeline process. Each
// instance owns its registry, so independent engines never collide.
type Metrics struct {
	RecordsMapped   *prometheus.CounterVec
	RecordsReduced  *prometheus.CounterVec
	RecordsWritten  *prometheus.CounterVec
	ControlMessages *prometheus.CounterVec
	SpillBytes      *prometheus.CounterVec
	TaskDuration    *prometheus.HistogramVec
	TaskRetries     *prometheus.CounterVec
	StageOutcomes   *prometheus.CounterVec
	CorpusSize      prometheus.Gauge
	ExportedEntries *prometheus.CounterVec
	JobsTotal       *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all pipeline metrics.
func New() *Metrics {
	m := &Metrics{
		RecordsMapped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tfidf_records_mapped_total",
				Help: "Input records consumed by map tasks, by stage.",
			},
			[]string{"stage"},
		),
		RecordsReduced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tfidf_groups_reduced_total",
				Help: "Key groups handed to reduce tasks, by stage.",
			},
			[]string{"stage"},
		),
		RecordsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tfidf_records_written_total",
				Help: "Records written to stage output, by stage.",
			},
			[]string{"stage"},
		),
		ControlMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tfidf_control_messages_total",
				Help: "Control messages routed by the shuffle, by stage and tag.",
			},
			[]string{"stage", "tag"},
		),
		SpillBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tfidf_spill_bytes_total",
				Help: "Bytes written to shuffle spill files, by stage.",
			},
			[]string{"stage"},
		),
		TaskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tfidf_task_duration_seconds",
				Help:    "Map and reduce task latency in seconds.",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"stage", "phase"},
		),
		TaskRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tfidf_task_retries_total",
				Help: "Task re-executions after transient failures.",
			},
			[]string{"stage", "phase"},
		),
		StageOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tfidf_stage_outcomes_total",
				Help: "Stage completions by status (succeeded, failed, skipped).",
			},
			[]string{"stage", "status"},
		),
		CorpusSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tfidf_corpus_size",
				Help: "Number of documents numbered by the last job.",
			},
		),
		ExportedEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tfidf_exported_entries_total",
				Help: "Index entries published to external sinks.",
			},
			[]string{"sink"},
		),
		JobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tfidf_jobs_total",
				Help: "Pipeline jobs by final status.",
			},
			[]string{"status"},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RecordsMapped,
		m.RecordsReduced,
		m.RecordsWritten,
		m.ControlMessages,
		m.SpillBytes,
		m.TaskDuration,
		m.TaskRetries,
		m.StageOutcomes,
		m.CorpusSize,
		m.ExportedEntries,
		m.JobsTotal,
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus scrape HTTP handler for m.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
