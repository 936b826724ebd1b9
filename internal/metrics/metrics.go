// Package metrics exposes the bot's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "annoybot"

// Event outcomes
const (
	OutcomeHandled = "handled"
	OutcomeDropped = "dropped"
	OutcomeIgnored = "ignored"
	OutcomeFailed  = "failed"
)

// Metrics groups the collectors updated by the service layer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	events      *prometheus.CounterVec
	broadcasts  *prometheus.CounterVec
	recipients  prometheus.Counter
	activations *prometheus.CounterVec
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Chat events processed, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Announcements broadcast, by content type.",
		}, []string{"type"}),
		recipients: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_recipients_total",
			Help:      "Groups an announcement was pushed to.",
		}),
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activations_total",
			Help:      "Receiving group activation attempts, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.events, m.broadcasts, m.recipients, m.activations)
	return m
}

// EventHandled counts one processed chat event
func (m *Metrics) EventHandled(kind, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind, outcome).Inc()
}

// Broadcast counts one announcement pushed to recipients groups
func (m *Metrics) Broadcast(contentType string, recipients int) {
	if m == nil {
		return
	}
	m.broadcasts.WithLabelValues(contentType).Inc()
	m.recipients.Add(float64(recipients))
}

// Activation counts one activation attempt
func (m *Metrics) Activation(result string) {
	if m == nil {
		return
	}
	m.activations.WithLabelValues(result).Inc()
}

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
