package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes recorded on the auth events counter.
const (
	outcomeSuccess  = "success"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// Metrics counts credential lifecycle and guard events.
type Metrics struct {
	events *prometheus.CounterVec
}

// NewMetrics creates the auth counters and registers them with reg.
// A nil reg leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wayfarer",
			Subsystem: "auth",
			Name:      "events_total",
			Help:      "Credential lifecycle and guard events by outcome.",
		}, []string{"event", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.events)
	}
	return m
}

// observe is safe on a nil receiver.
func (m *Metrics) observe(event, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event, outcome).Inc()
}

// observeErr records success for a nil error, rejected for client errors
// and error for everything else.
func (m *Metrics) observeErr(event string, err error) {
	switch {
	case err == nil:
		m.observe(event, outcomeSuccess)
	case isClientError(err):
		m.observe(event, outcomeRejected)
	default:
		m.observe(event, outcomeError)
	}
}
