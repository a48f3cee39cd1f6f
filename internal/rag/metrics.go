package rag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Retrieval paths.
const (
	pathRPC      = "rpc"
	pathFallback = "fallback"
)

// Fallback reasons.
const (
	reasonRPCEmpty       = "rpc_empty"
	reasonRPCError       = "rpc_error"
	reasonRPCUnsupported = "rpc_unsupported"
	reasonBreakerOpen    = "breaker_open"
)

// Skip reasons for documents left out of fallback ranking.
const (
	skipMalformed = "malformed"
	skipEmpty     = "empty"
	skipDimension = "dimension_mismatch"
)

// engineMetrics holds the Prometheus metrics owned by the Engine. The
// fallback path is degraded mode and should be alerted on.
type engineMetrics struct {
	// retrievalsTotal counts completed retrievals by path ("rpc", "fallback").
	retrievalsTotal *prometheus.CounterVec

	// fallbacksTotal counts fallbacks by reason.
	fallbacksTotal *prometheus.CounterVec

	// skippedTotal counts stored documents excluded from fallback ranking.
	skippedTotal *prometheus.CounterVec

	// retrievalSeconds records retrieval latency by path.
	retrievalSeconds *prometheus.HistogramVec

	// answersTotal counts Answer calls by outcome ("ok", "no_results", "error").
	answersTotal *prometheus.CounterVec
}

// newEngineMetrics registers the engine metrics against reg. A nil reg uses
// a private registry so the engine never touches the global default.
func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &engineMetrics{
		retrievalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docrag",
			Subsystem: "retrieval",
			Name:      "total",
			Help:      "Completed retrievals, partitioned by path (rpc or fallback).",
		}, []string{"path"}),

		fallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docrag",
			Subsystem: "retrieval",
			Name:      "fallbacks_total",
			Help:      "Retrievals that fell back to client-side ranking, partitioned by reason.",
		}, []string{"reason"}),

		skippedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docrag",
			Subsystem: "retrieval",
			Name:      "skipped_documents_total",
			Help:      "Stored documents excluded from fallback ranking, partitioned by reason.",
		}, []string{"reason"}),

		retrievalSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docrag",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Retrieval latency including query embedding, partitioned by path.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"path"}),

		answersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docrag",
			Subsystem: "answer",
			Name:      "total",
			Help:      "Answer calls, partitioned by outcome.",
		}, []string{"outcome"}),
	}
}
