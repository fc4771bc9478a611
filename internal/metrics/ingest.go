package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion pipeline Prometheus metrics.
var (
	IngestMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codevec",
			Name:      "ingest_messages_total",
			Help:      "Total number of change-event messages consumed",
		},
		[]string{"event_type"},
	)

	IngestFilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codevec",
			Name:      "ingest_files_total",
			Help:      "Total number of files handled by the ingestion pipeline",
		},
		[]string{"result"}, // "stored" / "failed" / "skipped"
	)

	IngestFileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "codevec",
			Name:      "ingest_file_duration_seconds",
			Help:      "Per-file ingestion duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codevec",
			Name:      "webhook_events_total",
			Help:      "Total number of webhook deliveries by outcome",
		},
		[]string{"outcome"}, // "accepted" / "rejected" / "ignored"
	)
)

var ingestMetricsRegistered bool

// RegisterIngestMetrics registers Prometheus ingestion metrics. Must be called once from main.
func RegisterIngestMetrics() {
	if ingestMetricsRegistered {
		return
	}
	prometheus.MustRegister(IngestMessagesTotal)
	prometheus.MustRegister(IngestFilesTotal)
	prometheus.MustRegister(IngestFileDuration)
	prometheus.MustRegister(WebhookEventsTotal)
	ingestMetricsRegistered = true
}
