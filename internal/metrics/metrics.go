// Package metrics exposes relay counters to prometheus.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "relay"

type Metrics struct {
	OpenConnections prometheus.Gauge
	OnlineUsers     prometheus.Gauge
	ActiveCalls     prometheus.Gauge
	CallOutcomes    *prometheus.CounterVec
	GroupMessages   *prometheus.CounterVec
	FailedSends     prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests usually want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OpenConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_connections",
			Help:      "Live websocket connections, registered or not.",
		}),
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "User identities currently mapped to a connection.",
		}),
		ActiveCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Call attempts ringing or connected.",
		}),
		CallOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_outcomes_total",
			Help:      "Call attempts by how they finished.",
		}, []string{"outcome"}),
		GroupMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "group_messages_total",
			Help:      "Group message posts by result.",
		}, []string{"result"}),
		FailedSends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failed_sends_total",
			Help:      "Deliveries a connection refused.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.OpenConnections,
			m.OnlineUsers,
			m.ActiveCalls,
			m.CallOutcomes,
			m.GroupMessages,
			m.FailedSends,
		)
	}
	return m
}
