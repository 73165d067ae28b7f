package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	repliesHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_replies_handled_total",
			Help: "Inbound lead replies by outcome (follow_up, handed_off, already_manual, error)",
		},
		[]string{"outcome"},
	)

	replyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outreach_reply_duration_seconds",
			Help:    "Time from lock acquisition to persisted decision",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	classifierFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_classifier_failures_total",
			Help: "Classifier calls that failed closed, by reason",
		},
		[]string{"reason"},
	)

	outreachRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outreach_emails_recorded_total",
			Help: "Outbound agent emails appended to transcripts",
		},
	)

	jobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_jobs_processed_total",
			Help: "Reply jobs by final status",
		},
		[]string{"status"},
	)

	dispatchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_dispatch_errors_total",
			Help: "Follow-up emails that could not be sent",
		},
		[]string{"channel"},
	)
)

func RecordHTTPRequest(method, path, status string, d time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

func RecordReply(outcome string, d time.Duration) {
	repliesHandled.WithLabelValues(outcome).Inc()
	replyDuration.Observe(d.Seconds())
}

func RecordClassifierFailure(reason string) {
	classifierFailures.WithLabelValues(reason).Inc()
}

func RecordOutreach() {
	outreachRecorded.Inc()
}

func RecordJob(status string) {
	jobsProcessed.WithLabelValues(status).Inc()
}

func RecordDispatchError(channel string) {
	dispatchErrors.WithLabelValues(channel).Inc()
}
