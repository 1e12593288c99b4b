package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the registration and payment lifecycle.
// A nil *Metrics records nothing.
type Metrics struct {
	RegistrationTransitions *prometheus.CounterVec
	RegistrationRejections  *prometheus.CounterVec
	PaymentsIssued          *prometheus.CounterVec
	PaymentsPaid            *prometheus.CounterVec
	PaymentsRefunded        prometheus.Counter
	MembershipRenewals      *prometheus.CounterVec
	NotificationFailures    *prometheus.CounterVec
	RegisterDuration        prometheus.Histogram
}

// New registers all metrics with reg (prometheus.DefaultRegisterer in main).
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RegistrationTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dds_registration_transitions_total",
			Help: "Registration status changes by target status",
		}, []string{"status"}),
		RegistrationRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dds_registration_rejections_total",
			Help: "Registration attempts rejected by reason",
		}, []string{"reason"}),
		PaymentsIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dds_payments_issued_total",
			Help: "Payments issued by kind and method",
		}, []string{"kind", "method"}),
		PaymentsPaid: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dds_payments_paid_total",
			Help: "Payments marked paid by kind and method",
		}, []string{"kind", "method"}),
		PaymentsRefunded: f.NewCounter(prometheus.CounterOpts{
			Name: "dds_payments_refunded_total",
			Help: "Payments refunded",
		}),
		MembershipRenewals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dds_membership_renewals_total",
			Help: "Membership renewals started by type",
		}, []string{"type"}),
		NotificationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dds_notification_failures_total",
			Help: "Email, webhook and event publishing failures by channel",
		}, []string{"channel"}),
		RegisterDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dds_register_duration_seconds",
			Help:    "Duration of the register transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) RegistrationTransition(status string) {
	if m == nil {
		return
	}
	m.RegistrationTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) RegistrationRejected(reason string) {
	if m == nil {
		return
	}
	m.RegistrationRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) PaymentIssued(kind, method string) {
	if m == nil {
		return
	}
	m.PaymentsIssued.WithLabelValues(kind, method).Inc()
}

func (m *Metrics) PaymentPaid(kind, method string) {
	if m == nil {
		return
	}
	m.PaymentsPaid.WithLabelValues(kind, method).Inc()
}

func (m *Metrics) PaymentRefunded() {
	if m == nil {
		return
	}
	m.PaymentsRefunded.Inc()
}

func (m *Metrics) MembershipRenewal(membershipType string) {
	if m == nil {
		return
	}
	m.MembershipRenewals.WithLabelValues(membershipType).Inc()
}

// NotificationFailed counts a failed side effect; channel is email, webhook or kafka.
func (m *Metrics) NotificationFailed(channel string) {
	if m == nil {
		return
	}
	m.NotificationFailures.WithLabelValues(channel).Inc()
}

// ObserveRegister records the duration of a register call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRegister(start time.Time) {
	if m == nil {
		return
	}
	m.RegisterDuration.Observe(time.Since(start).Seconds())
}
