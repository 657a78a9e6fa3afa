package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registration module. All methods
// are nil-safe so wiring metrics stays optional in tests.
type Metrics struct {
	Registrations  *prometheus.CounterVec
	Verifications  *prometheus.CounterVec
	DNSValidations *prometheus.CounterVec
	IssueLatency   prometheus.Histogram
	LogTreeSize    prometheus.Gauge
}

// New creates and registers all registration metrics.
func New() *Metrics {
	return &Metrics{
		Registrations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ans_registry_registrations_total",
			Help: "Registration requests by outcome",
		}, []string{"outcome"}), // outcome: "accepted", "conflict", "invalid", "error"

		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ans_registry_verifications_total",
			Help: "Verification requests by outcome",
		}, []string{"outcome"}), // outcome: "issued", "dns_failed", "ca_failed", "rejected"

		DNSValidations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ans_registry_dns_validations_total",
			Help: "DNS TXT validations by outcome",
		}, []string{"outcome"}),

		IssueLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ans_registry_issue_duration_seconds",
			Help:    "Duration of the full verify-and-issue path",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		LogTreeSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ans_registry_log_tree_size",
			Help: "Transparency log entry count after the latest append",
		}),
	}
}

// IncrementRegistration records a registration outcome.
func (m *Metrics) IncrementRegistration(outcome string) {
	if m != nil {
		m.Registrations.WithLabelValues(outcome).Inc()
	}
}

// IncrementVerification records a verification outcome.
func (m *Metrics) IncrementVerification(outcome string) {
	if m != nil {
		m.Verifications.WithLabelValues(outcome).Inc()
	}
}

// IncrementDNSValidation records a DNS validation outcome.
func (m *Metrics) IncrementDNSValidation(outcome string) {
	if m != nil {
		m.DNSValidations.WithLabelValues(outcome).Inc()
	}
}

// ObserveIssueLatency records the duration of a verify-and-issue call.
func (m *Metrics) ObserveIssueLatency(d time.Duration) {
	if m != nil {
		m.IssueLatency.Observe(d.Seconds())
	}
}

// SetLogTreeSize records the log size after an append.
func (m *Metrics) SetLogTreeSize(size uint64) {
	if m != nil {
		m.LogTreeSize.Set(float64(size))
	}
}
