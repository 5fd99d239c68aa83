// Package server broadcast engine: routes accepted messages from one
// session to every other registered session with anti-spoofing and
// per-session backpressure isolation.
package server

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Tyrowin/chatwire/internal/protocol"
	"github.com/Tyrowin/chatwire/internal/store"
)

// systemSender is the attributed sender of server-originated notices.
const systemSender = "server"

// Hub fans published messages out to registered sessions. It never blocks
// on a recipient: enqueue is non-blocking and a full queue gets that one
// session disconnected while delivery to everyone else proceeds.
type Hub struct {
	registry *Registry
	history  store.HistoryStore
	metrics  *Metrics
	logger   *slog.Logger
}

// NewHub wires the broadcast engine to a registry, an optional history
// store, and metrics.
func NewHub(registry *Registry, history store.HistoryStore, metrics *Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		registry: registry,
		history:  history,
		metrics:  metrics,
		logger:   logger,
	}
}

// Publish validates and broadcasts a message from the given origin session.
// The claimed sender must match the origin's authenticated identity; a
// mismatch is discarded silently — delivered to nobody, no error surfaced
// to the wire, origin connection left open. The server assigns the
// timestamp at the moment of acceptance.
func (h *Hub) Publish(originID uuid.UUID, m *protocol.Message) {
	origin := h.registry.Get(originID)
	if origin == nil {
		// Origin already deregistered; nothing to attribute the message to.
		return
	}
	if m.Sender != origin.username {
		h.metrics.SpoofDiscards.Inc()
		h.logger.Warn("discarding spoofed message",
			"session", originID, "identity", origin.username, "claimed", m.Sender)
		return
	}

	m.Timestamp = protocol.Now()
	h.metrics.MessagesPublished.WithLabelValues(m.Kind.String()).Inc()
	h.appendHistory(m)
	h.fanOut(originID, m)
}

// Announce broadcasts a server-originated notice to every session except
// exclude (uuid.Nil excludes nobody).
func (h *Hub) Announce(body string, exclude uuid.UUID) {
	m := &protocol.Message{
		Kind:      protocol.KindSystem,
		Sender:    systemSender,
		Timestamp: protocol.Now(),
		Body:      body,
	}
	h.fanOut(exclude, m)
}

// fanOut enqueues m to every registered session except the excluded one.
// The registry snapshot is copied out before any delivery is attempted, so
// a slow recipient never holds the registry lock.
func (h *Hub) fanOut(exclude uuid.UUID, m *protocol.Message) {
	for _, s := range h.registry.Snapshot() {
		if s.id == exclude {
			continue
		}
		if s.enqueue(m) {
			h.metrics.MessagesDelivered.Inc()
			continue
		}
		h.kickSlowConsumer(s)
	}
}

// kickSlowConsumer force-closes a session whose outbound queue is full.
// Only that session is affected; the publisher and all other recipients
// continue unimpeded. The hub removes the session here, so the connection's
// own teardown finds nothing left to deregister and the departure notice
// must go out now.
func (h *Hub) kickSlowConsumer(s *Session) {
	if h.registry.Remove(s.id) == nil {
		return
	}
	h.metrics.SlowConsumerKicks.Inc()
	h.metrics.ActiveSessions.Dec()
	h.logger.Warn("disconnecting slow consumer",
		"session", s.id, "user", s.username)
	s.close()
	h.Announce(s.username+" left the chat", uuid.Nil)
}

func (h *Hub) appendHistory(m *protocol.Message) {
	if h.history == nil {
		return
	}
	// History is best-effort: a persistence failure must not hold up or
	// abort delivery.
	if err := h.history.Append(context.Background(), m); err != nil {
		h.logger.Error("history append failed", "error", err, "sender", m.Sender)
	}
}
