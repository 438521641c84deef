package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors shared by the server and the worker.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Requests        *prometheus.CounterVec
	JobsEnqueued    prometheus.Counter
	EnqueueFailures prometheus.Counter
	JobsDuplicate   prometheus.Counter
	EmailsSent      prometheus.Counter
	EmailsFailed    *prometheus.CounterVec
	SendDuration    prometheus.Histogram
}

// New creates the collectors and registers them with reg. A nil reg creates
// unregistered collectors, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "messaging_requests_total",
			Help: "HTTP requests by logical operation",
		}, []string{"operation"}),
		JobsEnqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "messaging_jobs_enqueued_total",
			Help: "Email jobs published to the broker",
		}),
		EnqueueFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "messaging_enqueue_failures_total",
			Help: "Email jobs that could not be published",
		}),
		JobsDuplicate: f.NewCounter(prometheus.CounterOpts{
			Name: "messaging_jobs_duplicate_total",
			Help: "Redelivered email jobs skipped by the idempotency claim",
		}),
		EmailsSent: f.NewCounter(prometheus.CounterOpts{
			Name: "messaging_emails_sent_total",
			Help: "Emails accepted by the relay",
		}),
		EmailsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "messaging_emails_failed_total",
			Help: "Emails that failed by failure kind",
		}, []string{"kind"}),
		SendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "messaging_send_duration_seconds",
			Help:    "Time spent handing a message to the relay",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) Request(operation string) {
	if m != nil {
		m.Requests.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) Enqueued() {
	if m != nil {
		m.JobsEnqueued.Inc()
	}
}

func (m *Metrics) EnqueueFailed() {
	if m != nil {
		m.EnqueueFailures.Inc()
	}
}

func (m *Metrics) Duplicate() {
	if m != nil {
		m.JobsDuplicate.Inc()
	}
}

func (m *Metrics) Sent(d time.Duration) {
	if m != nil {
		m.EmailsSent.Inc()
		m.SendDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) Failed(kind string, d time.Duration) {
	if m != nil {
		m.EmailsFailed.WithLabelValues(kind).Inc()
		m.SendDuration.Observe(d.Seconds())
	}
}
