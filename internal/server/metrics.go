package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the route pattern rather than the raw URL path.
	labelHandler = "handler"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// queryRequestsTotal counts /query requests by outcome: "ok", "invalid"
	// or "error".
	queryRequestsTotal *prometheus.CounterVec

	// queryDurationSeconds records the duration of answered /query requests.
	queryDurationSeconds *prometheus.HistogramVec

	// uploadFilesTotal counts files received by /upload, by status.
	uploadFilesTotal *prometheus.CounterVec

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, route pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		queryRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docrag",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total number of /query requests, partitioned by outcome.",
		}, []string{"outcome"}),

		queryDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docrag",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Duration of /query requests including retrieval and generation.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),

		uploadFilesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docrag",
			Subsystem: "upload",
			Name:      "files_total",
			Help:      "Files received by /upload, partitioned by ingestion status.",
		}, []string{"status"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docrag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docrag",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}
