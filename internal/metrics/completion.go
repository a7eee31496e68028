package metrics

import "github.com/prometheus/client_golang/prometheus"

// Completion and quota Prometheus metrics.
var (
	CompletionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tokengate",
			Name:      "completion_requests_total",
			Help:      "Total number of completion requests",
		},
		[]string{"provider", "path", "status"},
	)

	CompletionRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tokengate",
			Name:      "completion_request_duration_seconds",
			Help:      "Completion request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)

	CompletionTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tokengate",
			Name:      "completion_tokens_total",
			Help:      "Total completion tokens consumed",
		},
		[]string{"provider", "path"},
	)

	QuotaRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tokengate",
			Name:      "quota_rejections_total",
			Help:      "Total requests rejected by the shared-pool quota",
		},
		[]string{"provider", "kind"},
	)

	QuotaRequestsRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tokengate",
			Name:      "quota_requests_remaining",
			Help:      "Remaining shared-pool requests for the current day",
		},
		[]string{"provider"},
	)

	QuotaTokensRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tokengate",
			Name:      "quota_tokens_remaining",
			Help:      "Remaining shared-pool tokens for the current day",
		},
		[]string{"provider"},
	)
)

var completionMetricsRegistered bool

// RegisterCompletionMetrics registers Prometheus completion metrics. Must be called once from main.
func RegisterCompletionMetrics() {
	if completionMetricsRegistered {
		return
	}
	prometheus.MustRegister(CompletionRequestsTotal)
	prometheus.MustRegister(CompletionRequestDuration)
	prometheus.MustRegister(CompletionTokensTotal)
	prometheus.MustRegister(QuotaRejectionsTotal)
	prometheus.MustRegister(QuotaRequestsRemaining)
	prometheus.MustRegister(QuotaTokensRemaining)
	completionMetricsRegistered = true
}
