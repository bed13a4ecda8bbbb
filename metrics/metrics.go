package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the domain counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	IssuesCreated     *prometheus.CounterVec
	StatusTransitions *prometheus.CounterVec
	OtpVerifications  *prometheus.CounterVec
	MailsSent         *prometheus.CounterVec
	AuditWriteErrors  prometheus.Counter
	RateLimited       *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IssuesCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spotsort_issues_created_total",
			Help: "Issues persisted, by issue type and submission path",
		}, []string{"issue_type", "path"}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spotsort_status_transitions_total",
			Help: "Issue status changes, by source and target status",
		}, []string{"from", "to"}),
		OtpVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spotsort_otp_verifications_total",
			Help: "One-time code checks, by purpose and outcome",
		}, []string{"purpose", "outcome"}),
		MailsSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spotsort_mails_total",
			Help: "Mail send attempts, by outcome",
		}, []string{"outcome"}),
		AuditWriteErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "spotsort_audit_write_errors_total",
			Help: "Audit entries that could not be persisted",
		}),
		RateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spotsort_rate_limited_total",
			Help: "Requests rejected by the rate limiter, by route group",
		}, []string{"group"}),
	}
}

func (m *Metrics) IssueCreated(issueType, path string) {
	if m == nil {
		return
	}
	m.IssuesCreated.WithLabelValues(issueType, path).Inc()
}

func (m *Metrics) StatusChanged(from, to string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) OtpChecked(purpose string, ok bool) {
	if m == nil {
		return
	}
	outcome := "mismatch"
	if ok {
		outcome = "match"
	}
	m.OtpVerifications.WithLabelValues(purpose, outcome).Inc()
}

func (m *Metrics) MailResult(err error) {
	if m == nil {
		return
	}
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	m.MailsSent.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AuditWriteFailed() {
	if m == nil {
		return
	}
	m.AuditWriteErrors.Inc()
}

func (m *Metrics) Limited(group string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(group).Inc()
}
