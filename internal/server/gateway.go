// Package server WebSocket gateway: bridges browser clients into the same
// hub as TCP peers and exposes health and metrics endpoints.
package server

import (
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tyrowin/chatwire/internal/protocol"
)

// wsLogin is the first message a gateway client must send.
type wsLogin struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// wsVerdict answers a wsLogin.
type wsVerdict struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// wsEvent is the JSON rendering of a hub delivery for gateway clients.
// Data is base64 in transit per encoding/json.
type wsEvent struct {
	Kind      string    `json:"kind"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body,omitempty"`
	Filename  string    `json:"filename,omitempty"`
	MediaType string    `json:"mediaType,omitempty"`
	Data      []byte    `json:"data,omitempty"`
	Time      time.Time `json:"time"`
}

func (s *Server) startGateway() error {
	s.allowedOrigins, s.allowAllOrigins = normalizeOrigins(s.cfg.AllowedOrigins)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ws", s.wsHandler)

	ln, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: mux,
		// WebSocket connections are long-lived; only bound the headers.
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.httpListener = ln
	s.mu.Unlock()
	s.logger.Info("gateway listening", "addr", ln.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("gateway serve failed", "error", err)
		}
	}()
	return nil
}

// healthHandler answers liveness probes.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("chatwire relay is running\n"))
}

// wsHandler upgrades the connection, runs the same login-first handshake as
// the TCP path, and bridges the socket into a normal hub session.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "websocket endpoint only accepts GET", http.StatusMethodNotAllowed)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(authTimeout))
	var login wsLogin
	if err := conn.ReadJSON(&login); err != nil {
		_ = conn.Close()
		return
	}
	ok, err := s.creds.Verify(s.ctx, login.Username, login.Password)
	if err != nil || !ok {
		s.metrics.AuthFailures.Inc()
		_ = conn.WriteJSON(wsVerdict{OK: false, Reason: "invalid username or password"})
		_ = conn.Close()
		return
	}
	if err := conn.WriteJSON(wsVerdict{OK: true}); err != nil {
		_ = conn.Close()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	sess := newSession(login.Username, conn, s.cfg.QueueSize)
	s.registry.Add(sess)
	s.metrics.ActiveSessions.Inc()
	s.logger.Info("gateway user authenticated",
		"user", sess.username, "session", sess.id, "remote", r.RemoteAddr)
	s.hub.Announce(sess.username+" joined the chat", sess.id)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.wsWriteLoop(sess, conn)
	}()
	go func() {
		defer s.wg.Done()
		s.wsReadLoop(sess, conn)
	}()
}

func (s *Server) wsReadLoop(sess *Session, conn *websocket.Conn) {
	defer s.teardown(sess)

	limiter := newRateLimiter(s.cfg.RateLimit)
	conn.SetReadLimit(int64(s.cfg.MaxFrameSize))
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if !limiter.allow() {
			s.logger.Warn("rate limit exceeded; discarding message",
				"session", sess.id, "user", sess.username)
			continue
		}
		s.hub.Publish(sess.id, &protocol.Message{
			Kind:   protocol.KindText,
			Sender: sess.username,
			Body:   string(data),
		})
	}
}

func (s *Server) wsWriteLoop(sess *Session, conn *websocket.Conn) {
	for {
		select {
		case <-sess.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case m := <-sess.outbound:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(eventFromMessage(m)); err != nil {
				s.teardown(sess)
				return
			}
		}
	}
}

func eventFromMessage(m *protocol.Message) wsEvent {
	ev := wsEvent{
		Kind:   m.Kind.String(),
		Sender: m.Sender,
		Body:   m.Body,
		Time:   time.UnixMilli(m.Timestamp).UTC(),
	}
	if m.Kind == protocol.KindFile && m.File != nil {
		ev.Filename = m.File.Filename
		ev.MediaType = m.File.MediaType
		ev.Data = m.File.Data
	}
	return ev
}
