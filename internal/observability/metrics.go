package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus collectors for the quota subsystem.
type Metrics struct {
	guardChecks  *prometheus.CounterVec
	guardDenials *prometheus.CounterVec
	costRecorded prometheus.Counter
	costDenials  prometheus.Counter
}

// NewMetrics creates a Metrics instance registered on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		guardChecks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adaptiva_anon_guard_checks_total",
				Help: "Total anonymous guard checks performed",
			},
			[]string{"result"},
		),

		guardDenials: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adaptiva_anon_guard_denials_total",
				Help: "Total anonymous guard denials by machine-readable code",
			},
			[]string{"code"},
		),

		costRecorded: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "adaptiva_ai_cost_cents_total",
				Help: "Total metered AI spend recorded, in cents",
			},
		),

		costDenials: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "adaptiva_ai_cost_denials_total",
				Help: "Total pre-flight cost denials",
			},
		),
	}
}

// RecordGuardCheck records a guard verdict ("allowed" or "denied").
func (m *Metrics) RecordGuardCheck(allowed bool) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.guardChecks.WithLabelValues(result).Inc()
}

// RecordGuardDenial records a denial with its machine-readable code.
func (m *Metrics) RecordGuardDenial(code string) {
	if m == nil {
		return
	}
	m.guardDenials.WithLabelValues(code).Inc()
}

// RecordCost records metered spend in cents.
func (m *Metrics) RecordCost(cents float64) {
	if m == nil {
		return
	}
	m.costRecorded.Add(cents)
}

// RecordCostDenial records a pre-flight cost denial.
func (m *Metrics) RecordCostDenial() {
	if m == nil {
		return
	}
	m.costDenials.Inc()
}
