package session

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/astra-social/entitlements/pkg/subscription"
)

// Outcomes recorded for gated actions.
const (
	outcomeAllowed       = "allowed"
	outcomeFeatureLocked = "feature_locked"
	outcomeLimitReached  = "limit_reached"
	outcomeAuthRequired  = "auth_required"

	resultOK    = "ok"
	resultError = "error"
)

// Metrics holds the Prometheus collectors of the session layer.
// A nil *Metrics records nothing.
type Metrics struct {
	ActionChecks   *prometheus.CounterVec
	UsagePersists  *prometheus.CounterVec
	Transitions    *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActionChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "action_checks_total",
			Help:      "Total number of gated action attempts by limit and outcome",
		}, []string{"limit", "outcome"}),
		UsagePersists: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "usage_persists_total",
			Help:      "Total number of usage increments written to the tracker by result",
		}, []string{"limit", "result"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Total number of session state transitions",
		}, []string{"from", "to"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of logged-in sessions",
		}),
	}

	reg.MustRegister(m.ActionChecks)
	reg.MustRegister(m.UsagePersists)
	reg.MustRegister(m.Transitions)
	reg.MustRegister(m.ActiveSessions)
	return m
}

func (m *Metrics) recordAction(l subscription.LimitName, outcome string) {
	if m == nil {
		return
	}
	m.ActionChecks.WithLabelValues(l.String(), outcome).Inc()
}

func (m *Metrics) recordPersist(l subscription.LimitName, err error) {
	if m == nil {
		return
	}
	result := resultOK
	if err != nil {
		result = resultError
	}
	m.UsagePersists.WithLabelValues(l.String(), result).Inc()
}

func (m *Metrics) recordTransition(from, to State) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(string(from), string(to)).Inc()
	switch {
	case from == StateUninitialized && to != StateUninitialized:
		m.ActiveSessions.Inc()
	case from != StateUninitialized && to == StateUninitialized:
		m.ActiveSessions.Dec()
	}
}
