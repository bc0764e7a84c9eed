package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EntitlementMetrics records quota decisions and lifecycle events.
type EntitlementMetrics struct {
	quotaDecisions *prometheus.CounterVec
	grants         *prometheus.CounterVec
	webhookEvents  *prometheus.CounterVec
	persistErrors  prometheus.Counter
}

// NewEntitlementMetrics registers the entitlement metrics on the provided registerer.
func NewEntitlementMetrics(reg prometheus.Registerer) *EntitlementMetrics {
	if reg == nil {
		return &EntitlementMetrics{}
	}
	quotaDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quota_decisions_total",
		Help: "Quota gate decisions by outcome.",
	}, []string{"outcome"})
	grants := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "premium_grants_total",
		Help: "Premium grants by source.",
	}, []string{"source"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Payment webhook events by rail and disposition.",
	}, []string{"rail", "disposition"})
	persistErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "entitlement_persist_errors_total",
		Help: "Failed best-effort writes of entitlement state.",
	})
	reg.MustRegister(quotaDecisions, grants, webhookEvents, persistErrors)
	return &EntitlementMetrics{
		quotaDecisions: quotaDecisions,
		grants:         grants,
		webhookEvents:  webhookEvents,
		persistErrors:  persistErrors,
	}
}

// IncQuotaDecision increments the decision counter for the given outcome.
func (m *EntitlementMetrics) IncQuotaDecision(outcome string) {
	if m == nil || m.quotaDecisions == nil {
		return
	}
	m.quotaDecisions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncGrant increments the premium grant counter for the given source.
func (m *EntitlementMetrics) IncGrant(source string) {
	if m == nil || m.grants == nil {
		return
	}
	m.grants.WithLabelValues(normalizeLabel(source)).Inc()
}

// IncWebhookEvent increments the webhook counter for the rail/disposition pair.
func (m *EntitlementMetrics) IncWebhookEvent(rail, disposition string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(rail), normalizeLabel(disposition)).Inc()
}

// IncPersistError counts a failed write-through of entitlement state.
func (m *EntitlementMetrics) IncPersistError() {
	if m == nil || m.persistErrors == nil {
		return
	}
	m.persistErrors.Inc()
}
