// Package metrics holds the Prometheus counters for onboarding outcomes. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "household_identity"

type Metrics struct {
	registry       *prometheus.Registry
	signups        *prometheus.CounterVec
	reconciliation *prometheus.CounterVec
	consume        *prometheus.CounterVec
	provision      *prometheus.CounterVec
}

// New registers the counters, plus Go and process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		signups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signup_requests_total",
			Help:      "Signup requests by flow and outcome.",
		}, []string{"flow", "outcome"}),
		reconciliation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_total",
			Help:      "Pending user merges by result.",
		}, []string{"result"}),
		consume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invitation_consume_total",
			Help:      "Invitation consume attempts by result.",
		}, []string{"result"}),
		provision: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "household_provision_total",
			Help:      "Automatic household provisioning by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.signups, m.reconciliation, m.consume, m.provision,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SignupRequest(flow, outcome string) {
	if m != nil {
		m.signups.WithLabelValues(flow, outcome).Inc()
	}
}

func (m *Metrics) Reconciliation(result string) {
	if m != nil {
		m.reconciliation.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) InvitationConsume(result string) {
	if m != nil {
		m.consume.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) HouseholdProvision(result string) {
	if m != nil {
		m.provision.WithLabelValues(result).Inc()
	}
}
