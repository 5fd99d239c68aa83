// Package server connection handling: the auth handshake and the paired
// read/write loops that drive one TCP peer.
package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/chatwire/internal/protocol"
	"github.com/Tyrowin/chatwire/internal/store"
)

const (
	// authTimeout bounds how long an unauthenticated peer may sit on the
	// socket before sending its Auth message.
	authTimeout = 30 * time.Second

	writeTimeout = 10 * time.Second
)

// handleConn drives one accepted connection through handshake,
// registration, and the read/write loops. It returns when the connection is
// torn down.
func (s *Server) handleConn(nc net.Conn) {
	defer s.wg.Done()

	remote := nc.RemoteAddr().String()
	sess, err := s.handshake(nc)
	if err != nil {
		s.logger.Warn("handshake failed", "remote", remote, "error", err)
		_ = nc.Close()
		return
	}

	s.registry.Add(sess)
	s.metrics.ActiveSessions.Inc()
	s.logger.Info("user authenticated",
		"user", sess.username, "session", sess.id, "remote", remote)
	s.hub.Announce(sess.username+" joined the chat", sess.id)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.writeLoop(sess, nc)
	}()

	s.readLoop(sess, nc)
	s.teardown(sess)
}

// handshake runs the per-connection login state machine: exactly one Auth
// message is expected first; anything else is a protocol violation. On
// success the peer gets AuthResult{ok} before any broadcast can reach it;
// on failure it gets AuthResult{!ok, reason} and the connection dies — the
// peer must reconnect to retry.
func (s *Server) handshake(nc net.Conn) (*Session, error) {
	_ = nc.SetReadDeadline(time.Now().Add(authTimeout))

	m, err := protocol.ReadMessage(nc, s.cfg.MaxFrameSize)
	if err != nil {
		return nil, fmt.Errorf("reading auth message: %w", err)
	}
	if m.Kind != protocol.KindAuth {
		s.refuse(nc, "authentication required")
		return nil, fmt.Errorf("%w: expected auth, got %s", protocol.ErrMalformedMessage, m.Kind)
	}

	ok, err := s.creds.Verify(s.ctx, m.Auth.Username, m.Auth.Password)
	if err != nil && !errors.Is(err, store.ErrUnknownUser) {
		s.refuse(nc, "authentication unavailable")
		return nil, fmt.Errorf("verifying %s: %w", m.Auth.Username, err)
	}
	if !ok {
		s.metrics.AuthFailures.Inc()
		s.refuse(nc, "invalid username or password")
		return nil, fmt.Errorf("login rejected for %q", m.Auth.Username)
	}

	_ = nc.SetReadDeadline(time.Time{})
	_ = nc.SetWriteDeadline(time.Now().Add(writeTimeout))
	accepted := &protocol.Message{
		Kind:       protocol.KindAuthResult,
		Sender:     systemSender,
		Timestamp:  protocol.Now(),
		AuthResult: &protocol.AuthResultPayload{OK: true},
	}
	if err := protocol.WriteMessage(nc, accepted, s.cfg.MaxFrameSize); err != nil {
		return nil, fmt.Errorf("sending auth result: %w", err)
	}
	_ = nc.SetWriteDeadline(time.Time{})

	return newSession(m.Auth.Username, nc, s.cfg.QueueSize), nil
}

// refuse sends a failed AuthResult best-effort; the caller closes the
// connection either way.
func (s *Server) refuse(nc net.Conn, reason string) {
	_ = nc.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = protocol.WriteMessage(nc, &protocol.Message{
		Kind:       protocol.KindAuthResult,
		Sender:     systemSender,
		Timestamp:  protocol.Now(),
		AuthResult: &protocol.AuthResultPayload{OK: false, Reason: reason},
	}, s.cfg.MaxFrameSize)
}

// readLoop decodes frames in arrival order and routes them: chat kinds to
// the hub, transfer kinds to this connection's reassembler. Processing on a
// single goroutine is what guarantees chunk ordering within a transfer;
// plain Text messages interleaved with an open transfer publish
// independently of it.
func (s *Server) readLoop(sess *Session, nc net.Conn) {
	reassembler := NewReassembler(s.cfg.MaxTransferSize)
	limiter := newRateLimiter(s.cfg.RateLimit)

	for {
		m, err := protocol.ReadMessage(nc, s.cfg.MaxFrameSize)
		if err != nil {
			switch {
			case protocol.IsProtocolError(err):
				s.logger.Warn("closing connection after protocol violation",
					"session", sess.id, "error", err)
			case errors.Is(err, io.EOF), isExpectedCloseError(err):
				s.logger.Debug("connection closed", "session", sess.id)
			default:
				s.logger.Warn("read failed", "session", sess.id, "error", err)
			}
			// In-flight transfer contexts die with the reassembler here;
			// they never outlive the connection.
			return
		}

		switch m.Kind {
		case protocol.KindText:
			if !limiter.allow() {
				s.logger.Warn("rate limit exceeded; discarding message",
					"session", sess.id, "user", sess.username)
				continue
			}
			s.hub.Publish(sess.id, m)

		case protocol.KindFileStart:
			if err := reassembler.Start(m.FileStart); err != nil {
				s.transferFault(sess, m.FileStart.TransferID, err)
			}

		case protocol.KindFileChunk:
			if err := reassembler.Chunk(m.FileChunk); err != nil {
				s.transferFault(sess, m.FileChunk.TransferID, err)
			}

		case protocol.KindFileEnd:
			payload, err := reassembler.End(m.FileEnd)
			if err != nil {
				s.transferFault(sess, m.FileEnd.TransferID, err)
				continue
			}
			s.metrics.TransfersCompleted.Inc()
			s.logger.Info("transfer reassembled",
				"session", sess.id, "file", payload.Filename, "bytes", len(payload.Data))
			s.hub.Publish(sess.id, &protocol.Message{
				Kind:   protocol.KindFile,
				Sender: sess.username,
				File:   payload,
			})

		default:
			// Auth, AuthResult, System, Error and File have no business
			// arriving from an authenticated peer; ignore rather than kill
			// the connection.
			s.logger.Warn("ignoring unexpected message kind",
				"session", sess.id, "kind", m.Kind.String())
		}
	}
}

// transferFault aborts one transfer and tells the origin peer. Other
// traffic on the connection continues.
func (s *Server) transferFault(sess *Session, transferID string, err error) {
	s.metrics.TransfersAborted.Inc()
	s.logger.Warn("transfer aborted",
		"session", sess.id, "transfer", transferID, "error", err)
	sess.enqueue(&protocol.Message{
		Kind:      protocol.KindError,
		Sender:    systemSender,
		Timestamp: protocol.Now(),
		Body:      fmt.Sprintf("transfer %s aborted: %v", transferID, err),
	})
}

// writeLoop drains the session's outbound queue to the socket. It is the
// only writer after the handshake, so broadcast enqueues never wait on this
// peer's network.
func (s *Server) writeLoop(sess *Session, nc net.Conn) {
	for {
		select {
		case <-sess.done:
			return
		case m := <-sess.outbound:
			_ = nc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := protocol.WriteMessage(nc, m, s.cfg.MaxFrameSize); err != nil {
				if !isExpectedCloseError(err) {
					s.logger.Warn("write failed", "session", sess.id, "error", err)
				}
				s.teardown(sess)
				return
			}
		}
	}
}

// teardown deregisters and closes a session. Registry.Remove returns nil
// after the first call, so cleanup runs exactly once no matter which loop
// detected the failure first.
func (s *Server) teardown(sess *Session) {
	if s.registry.Remove(sess.id) != nil {
		s.metrics.ActiveSessions.Dec()
		s.logger.Info("session closed", "session", sess.id, "user", sess.username)
		s.hub.Announce(sess.username+" left the chat", uuid.Nil)
	}
	sess.close()
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "broken pipe")
}
