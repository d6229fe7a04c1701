package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline and search Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "manualdex",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding API requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "manualdex",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding API request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingTextsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "manualdex",
			Name:      "embedding_texts_total",
			Help:      "Total texts sent for embedding",
		},
		[]string{"provider", "model"},
	)

	EmbeddingBatchesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "manualdex",
			Name:      "embedding_batches_dropped_total",
			Help:      "Embedding batches dropped after exhausted retries",
		},
		[]string{"provider", "model"},
	)

	CaptionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "manualdex",
			Name:      "caption_requests_total",
			Help:      "Total caption API requests",
		},
		[]string{"model", "status"},
	)

	CaptionFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "manualdex",
			Name:      "caption_fallbacks_total",
			Help:      "Figures left uncaptioned with a recorded fallback reason",
		},
		[]string{"reason"},
	)

	FigureLoadErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "manualdex",
			Name:      "figure_load_errors_total",
			Help:      "Figure images that could not be read during classification",
		},
	)

	IndexOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "manualdex",
			Name:      "index_operations_total",
			Help:      "Vector index maintenance operations",
		},
		[]string{"operation", "status"}, // build / append / replace
	)

	IndexVectors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "manualdex",
			Name:      "index_vectors",
			Help:      "Vectors currently in the published index",
		},
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "manualdex",
			Name:      "search_requests_total",
			Help:      "Total search requests",
		},
		[]string{"scope", "status"}, // scope: filtered / full
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "manualdex",
			Name:      "search_duration_seconds",
			Help:      "End-to-end search duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingTextsTotal)
	prometheus.MustRegister(EmbeddingBatchesDroppedTotal)
	prometheus.MustRegister(CaptionRequestsTotal)
	prometheus.MustRegister(CaptionFallbacksTotal)
	prometheus.MustRegister(FigureLoadErrorsTotal)
	prometheus.MustRegister(IndexOperationsTotal)
	prometheus.MustRegister(IndexVectors)
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchDuration)
	pipelineMetricsRegistered = true
}
