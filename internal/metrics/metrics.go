// Package metrics exposes Prometheus counters for the identity lifecycle.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds the application's Prometheus registry and counters.
type Metrics struct {
	registry *prometheus.Registry

	Logins        *prometheus.CounterVec
	Registrations *prometheus.CounterVec
	Deletions     *prometheus.CounterVec
}

// New creates a registry with process/Go collectors and the lifecycle
// counters.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crewdeck_logins_total",
			Help: "Completed OAuth callback handling attempts by result.",
		}, []string{"result"}),
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crewdeck_registrations_total",
			Help: "Onboarding registration attempts by result.",
		}, []string{"result"}),
		Deletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crewdeck_account_deletions_total",
			Help: "Account deletion attempts by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Logins,
		m.Registrations,
		m.Deletions,
	)
	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
