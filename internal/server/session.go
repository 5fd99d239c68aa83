// Package server session state: one Session per live, authenticated
// connection, owned by the Registry and addressed everywhere else by id.
package server

import (
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/Tyrowin/chatwire/internal/protocol"
)

// Session is the server-side state for one authenticated connection. The
// connection's goroutines hold only the session id, never a reference back
// into the registry; the registry is the sole owner.
//
// The outbound queue is bounded. Enqueue never blocks: a full queue marks
// the session as a slow consumer and the hub disconnects it.
type Session struct {
	id       uuid.UUID
	username string

	outbound chan *protocol.Message

	closer    io.Closer
	closeOnce sync.Once
	done      chan struct{}
}

func newSession(username string, closer io.Closer, queueSize int) *Session {
	return &Session{
		id:       uuid.New(),
		username: username,
		outbound: make(chan *protocol.Message, queueSize),
		closer:   closer,
		done:     make(chan struct{}),
	}
}

// ID returns the unique session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Username returns the authenticated identity. It is fixed at handshake
// time and never reassigned.
func (s *Session) Username() string { return s.username }

// enqueue offers a message to the outbound queue without blocking. It
// returns false if the queue is full or the session is already closed.
func (s *Session) enqueue(m *protocol.Message) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.outbound <- m:
		return true
	default:
		return false
	}
}

// close shuts the session down exactly once: the done channel unblocks the
// write loop and closing the underlying connection unblocks the read loop,
// so both terminate and deregistration proceeds.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.closer != nil {
			_ = s.closer.Close()
		}
	})
}

// closed reports whether close has been called.
func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
