// Package metrics holds the Prometheus collectors of the upload pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the pipeline collectors. Build it once per registry.
type Metrics struct {
	UploadsRequested    prometheus.Counter
	DedupeHits          *prometheus.CounterVec
	Completions         *prometheus.CounterVec
	ValidationResults   *prometheus.CounterVec
	AdherenceReconciled *prometheus.CounterVec
	Enqueues            *prometheus.CounterVec
	StorageEvents       *prometheus.CounterVec
	TimelineCacheHits   prometheus.Counter
	TimelineCacheMisses prometheus.Counter
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		UploadsRequested: f.NewCounter(prometheus.CounterOpts{
			Name: "bridge_uploads_requested_total",
			Help: "Upload sessions handed out to clients.",
		}),
		DedupeHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_upload_dedupe_hits_total",
			Help: "Upload requests matching an earlier content hash, by outcome.",
		}, []string{"outcome"}),
		Completions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_upload_completions_total",
			Help: "Upload completion calls, by result.",
		}, []string{"result", "completed_by"}),
		ValidationResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_upload_validation_results_total",
			Help: "Validation outcomes recorded for uploads.",
		}, []string{"status"}),
		AdherenceReconciled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_adherence_reconciliations_total",
			Help: "Adherence reconciliation runs, by outcome.",
		}, []string{"outcome"}),
		Enqueues: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_work_queue_enqueues_total",
			Help: "Work items sent to the worker queue.",
		}, []string{"service", "status"}),
		StorageEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_storage_events_total",
			Help: "Object-created notifications consumed, by outcome.",
		}, []string{"outcome"}),
		TimelineCacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "bridge_timeline_cache_hits_total",
			Help: "Timeline metadata served from cache.",
		}),
		TimelineCacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "bridge_timeline_cache_misses_total",
			Help: "Timeline metadata lookups that went to the database.",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_http_requests_total",
			Help: "HTTP requests served.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bridge_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// ObserveEnqueue implements workqueue.Metrics.
func (m *Metrics) ObserveEnqueue(service string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Enqueues.WithLabelValues(service, status).Inc()
}
