package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailmind_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailmind_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	PromptsConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailmind_prompts_consumed_total",
			Help: "Total number of AI prompts charged against a daily quota.",
		},
		[]string{"plan"},
	)

	PromptsOverLimitTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailmind_prompts_over_limit_total",
			Help: "Consumes charged after the daily ceiling was already spent.",
		},
		[]string{"plan"},
	)

	QuotaResetsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailmind_quota_resets_total",
			Help: "Consumes that started a new calendar day for a user.",
		},
	)

	ChatCompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailmind_chat_completions_total",
			Help: "Total number of streamed chat completions by outcome.",
		},
		[]string{"status"},
	)

	BillingEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailmind_billing_events_total",
			Help: "Payment webhook events received, by type and outcome.",
		},
		[]string{"type", "status"},
	)

	MailRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailmind_mail_requests_total",
			Help: "Mailbox operations proxied to Gmail, by operation and outcome.",
		},
		[]string{"op", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		PromptsConsumedTotal,
		PromptsOverLimitTotal,
		QuotaResetsTotal,
		ChatCompletionsTotal,
		BillingEventsTotal,
		MailRequestsTotal,
	)
}
