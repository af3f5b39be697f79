package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the campaign counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	EmailsSent          *prometheus.CounterVec
	EmailsFailed        *prometheus.CounterVec
	RecipientsSkipped   *prometheus.CounterVec
	Verifications       *prometheus.CounterVec
	CampaignRuns        *prometheus.CounterVec
	VerificationLatency *prometheus.HistogramVec
}

// NewMetrics creates and registers all campaign metrics on reg
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "outreach"
	}
	factory := promauto.With(reg)

	return &Metrics{
		EmailsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "campaign",
				Name:      "emails_sent_total",
				Help:      "Total emails accepted by the mail transport",
			},
			[]string{"mailer"},
		),
		EmailsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "campaign",
				Name:      "emails_failed_total",
				Help:      "Total emails the mail transport refused or errored on",
			},
			[]string{"mailer"},
		),
		RecipientsSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "campaign",
				Name:      "recipients_skipped_total",
				Help:      "Total recipients skipped after failed verification",
			},
			[]string{"outcome"},
		),
		Verifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "verifier",
				Name:      "verifications_total",
				Help:      "Total mailbox verifications by outcome",
			},
			[]string{"outcome"}, // deliverable, mx-missing, transport-error, rejected
		),
		CampaignRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "campaign",
				Name:      "runs_total",
				Help:      "Total campaign runs by final status",
			},
			[]string{"status"},
		),
		VerificationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "verifier",
				Name:      "verification_duration_seconds",
				Help:      "Time spent resolving and probing one mailbox",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
			},
			[]string{"outcome"},
		),
	}
}

func (m *Metrics) RecordSent(mailer string) {
	if m == nil {
		return
	}
	m.EmailsSent.WithLabelValues(mailer).Inc()
}

func (m *Metrics) RecordFailed(mailer string) {
	if m == nil {
		return
	}
	m.EmailsFailed.WithLabelValues(mailer).Inc()
}

func (m *Metrics) RecordSkipped(outcome string) {
	if m == nil {
		return
	}
	m.RecipientsSkipped.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordVerification(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(outcome).Inc()
	m.VerificationLatency.WithLabelValues(outcome).Observe(took.Seconds())
}

func (m *Metrics) RecordRun(status string) {
	if m == nil {
		return
	}
	m.CampaignRuns.WithLabelValues(status).Inc()
}
