package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healo_http_requests_total",
			Help: "HTTP requests served, by method, route template and status.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healo_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healo_rate_limited_total",
			Help: "Requests rejected by the per-api rate limiter.",
		},
		[]string{"api"},
	)

	EncryptionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "healo_privacy_encryption_failures_total",
		Help: "PII encryption failures that aborted a write.",
	})

	DecryptionFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healo_privacy_decryption_fallbacks_total",
			Help: "Admin reads where a field could not be decrypted and was returned as stored.",
		},
		[]string{"field"},
	)

	AuditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "healo_audit_write_failures_total",
		Help: "Admin audit log writes that failed and were swallowed.",
	})

	RAGDocumentsUpdated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healo_rag_documents_updated_total",
			Help: "RAG documents inserted or re-chunked by ingestion.",
		},
		[]string{"source_type"},
	)

	AlertsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healo_operational_alerts_total",
			Help: "Operational alerts emitted, by type and level.",
		},
		[]string{"type", "level"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healo_admin_notifications_total",
			Help: "Admin notifications attempted, by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}
