// Package server metrics: Prometheus collectors covering sessions, fan-out,
// spoof discards, and transfer outcomes.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the relay's Prometheus collectors. All collectors are
// registered on the registry passed to NewMetrics so tests can use isolated
// registries.
type Metrics struct {
	ActiveSessions     prometheus.Gauge
	MessagesPublished  *prometheus.CounterVec
	MessagesDelivered  prometheus.Counter
	SlowConsumerKicks  prometheus.Counter
	SpoofDiscards      prometheus.Counter
	AuthFailures       prometheus.Counter
	TransfersCompleted prometheus.Counter
	TransfersAborted   prometheus.Counter
}

// NewMetrics builds and registers the relay's collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chatwire_active_sessions",
			Help: "Number of currently authenticated sessions.",
		}),
		MessagesPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatwire_messages_published_total",
			Help: "Messages accepted for broadcast, by kind.",
		}, []string{"kind"}),
		MessagesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatwire_messages_delivered_total",
			Help: "Messages enqueued to recipient sessions.",
		}),
		SlowConsumerKicks: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatwire_slow_consumer_kicks_total",
			Help: "Sessions disconnected because their outbound queue overflowed.",
		}),
		SpoofDiscards: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatwire_spoof_discards_total",
			Help: "Messages dropped because the claimed sender did not match the authenticated identity.",
		}),
		AuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatwire_auth_failures_total",
			Help: "Login attempts rejected during the handshake.",
		}),
		TransfersCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatwire_transfers_completed_total",
			Help: "Chunked transfers reassembled and delivered.",
		}),
		TransfersAborted: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatwire_transfers_aborted_total",
			Help: "Chunked transfers aborted by a transfer error.",
		}),
	}
}
