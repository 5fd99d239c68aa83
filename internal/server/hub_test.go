package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatwire/internal/protocol"
)

func newTestHub(t *testing.T) (*Hub, *Registry, *Metrics) {
	t.Helper()
	reg := NewRegistry()
	metrics := NewMetrics(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHub(reg, nil, metrics, logger), reg, metrics
}

func drain(s *Session) []*protocol.Message {
	var out []*protocol.Message
	for {
		select {
		case m := <-s.outbound:
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestPublishFansOutExceptOrigin(t *testing.T) {
	hub, reg, _ := newTestHub(t)
	alice := newSession("alice", nil, 8)
	bob := newSession("bob", nil, 8)
	carol := newSession("carol", nil, 8)
	reg.Add(alice)
	reg.Add(bob)
	reg.Add(carol)

	hub.Publish(alice.id, &protocol.Message{Kind: protocol.KindText, Sender: "alice", Body: "hi"})

	assert.Empty(t, drain(alice), "origin must not receive its own message")
	for _, peer := range []*Session{bob, carol} {
		got := drain(peer)
		require.Len(t, got, 1)
		assert.Equal(t, "alice", got[0].Sender)
		assert.Equal(t, "hi", got[0].Body)
		assert.NotZero(t, got[0].Timestamp, "timestamp is assigned on acceptance")
	}
}

func TestPublishDiscardsSpoofedSender(t *testing.T) {
	hub, reg, metrics := newTestHub(t)
	alice := newSession("alice", nil, 8)
	bob := newSession("bob", nil, 8)
	reg.Add(alice)
	reg.Add(bob)

	hub.Publish(alice.id, &protocol.Message{Kind: protocol.KindText, Sender: "bob", Body: "forged"})

	assert.Empty(t, drain(alice))
	assert.Empty(t, drain(bob), "spoofed message reaches nobody")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SpoofDiscards))
	assert.NotNil(t, reg.Get(alice.id), "origin stays connected")
}

func TestPublishFromUnknownOrigin(t *testing.T) {
	hub, reg, _ := newTestHub(t)
	bob := newSession("bob", nil, 8)
	reg.Add(bob)

	hub.Publish(uuid.New(), &protocol.Message{Kind: protocol.KindText, Sender: "ghost", Body: "boo"})
	assert.Empty(t, drain(bob))
}

func TestSlowConsumerIsKicked(t *testing.T) {
	hub, reg, metrics := newTestHub(t)
	alice := newSession("alice", nil, 8)
	bob := newSession("bob", nil, 8)
	slow := newSession("slow", nil, 1)
	reg.Add(alice)
	reg.Add(bob)
	reg.Add(slow)

	// Fill the slow session's queue, then publish once more: only the slow
	// session is removed, everyone else keeps receiving.
	hub.Publish(alice.id, &protocol.Message{Kind: protocol.KindText, Sender: "alice", Body: "one"})
	hub.Publish(alice.id, &protocol.Message{Kind: protocol.KindText, Sender: "alice", Body: "two"})

	assert.Nil(t, reg.Get(slow.id), "overflowed session is deregistered")
	assert.True(t, slow.closed())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SlowConsumerKicks))
	assert.NotNil(t, reg.Get(alice.id))

	var texts, notices []*protocol.Message
	for _, m := range drain(bob) {
		if m.Kind == protocol.KindText {
			texts = append(texts, m)
		} else {
			notices = append(notices, m)
		}
	}
	assert.Len(t, texts, 2, "healthy peers receive every message")
	require.Len(t, notices, 1, "the kick is announced like any other departure")
	assert.Equal(t, protocol.KindSystem, notices[0].Kind)
	assert.Equal(t, "slow left the chat", notices[0].Body)
}

func TestAnnounceExcludesOneSession(t *testing.T) {
	hub, reg, _ := newTestHub(t)
	alice := newSession("alice", nil, 8)
	bob := newSession("bob", nil, 8)
	reg.Add(alice)
	reg.Add(bob)

	hub.Announce("alice joined the chat", alice.id)

	assert.Empty(t, drain(alice))
	got := drain(bob)
	require.Len(t, got, 1)
	assert.Equal(t, protocol.KindSystem, got[0].Kind)
	assert.Equal(t, systemSender, got[0].Sender)
}

func TestAnnounceToEveryone(t *testing.T) {
	hub, reg, _ := newTestHub(t)
	alice := newSession("alice", nil, 8)
	bob := newSession("bob", nil, 8)
	reg.Add(alice)
	reg.Add(bob)

	hub.Announce("carol left the chat", uuid.Nil)

	assert.Len(t, drain(alice), 1)
	assert.Len(t, drain(bob), 1)
}

type failingHistory struct{ err error }

func (f *failingHistory) Append(context.Context, *protocol.Message) error { return f.err }

func TestHistoryFailureDoesNotBlockDelivery(t *testing.T) {
	reg := NewRegistry()
	metrics := NewMetrics(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(reg, &failingHistory{err: errors.New("disk full")}, metrics, logger)

	alice := newSession("alice", nil, 8)
	bob := newSession("bob", nil, 8)
	reg.Add(alice)
	reg.Add(bob)

	hub.Publish(alice.id, &protocol.Message{Kind: protocol.KindText, Sender: "alice", Body: "hi"})
	assert.Len(t, drain(bob), 1, "delivery proceeds despite history failure")
}
