// Package metrics holds the relay's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records what the relay is doing. A nil *Metrics is valid and
// records nothing, so the server runs unmetered when no registry is
// configured.
type Metrics struct {
	activePeers     prometheus.Gauge
	relayed         prometheus.Counter
	broadcastErrors prometheus.Counter
	decodeErrors    prometheus.Counter
	rateLimited     prometheus.Counter
}

// New creates the relay collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		activePeers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "active_peers",
			Help:      "Number of peers currently joined to the room.",
		}),
		relayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "relayed_messages_total",
			Help:      "Chat messages fanned out to the room.",
		}),
		broadcastErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "broadcast_errors_total",
			Help:      "Peer sends that failed during a broadcast.",
		}),
		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "decode_errors_total",
			Help:      "Connections dropped after undecodable input.",
		}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "rate_limited_total",
			Help:      "Messages dropped by per-connection rate limiting.",
		}),
	}
}

// SetActivePeers records the current room size.
func (m *Metrics) SetActivePeers(n int) {
	if m == nil {
		return
	}
	m.activePeers.Set(float64(n))
}

// RecordRelayed counts one chat message fanned out to the room.
func (m *Metrics) RecordRelayed() {
	if m == nil {
		return
	}
	m.relayed.Inc()
}

// RecordBroadcastError counts one failed send during a broadcast.
func (m *Metrics) RecordBroadcastError() {
	if m == nil {
		return
	}
	m.broadcastErrors.Inc()
}

// RecordDecodeError counts one connection dropped for undecodable input.
func (m *Metrics) RecordDecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

// RecordRateLimited counts one message dropped by rate limiting.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
