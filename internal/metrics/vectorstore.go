package metrics

import "github.com/prometheus/client_golang/prometheus"

// Vector store Prometheus metrics.
var (
	VectorStoreRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codevec",
			Name:      "vector_store_requests_total",
			Help:      "Total number of vector store requests",
		},
		[]string{"operation", "status"},
	)

	VectorStoreRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "codevec",
			Name:      "vector_store_request_duration_seconds",
			Help:      "Vector store request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)
)

var storeMetricsRegistered bool

// RegisterVectorStoreMetrics registers Prometheus vector store metrics. Must be called once from main.
func RegisterVectorStoreMetrics() {
	if storeMetricsRegistered {
		return
	}
	prometheus.MustRegister(VectorStoreRequestsTotal)
	prometheus.MustRegister(VectorStoreRequestDuration)
	storeMetricsRegistered = true
}
