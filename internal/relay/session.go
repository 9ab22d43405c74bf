package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"mapsketch/internal/logging"

	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"
)

// ErrSessionClosed is returned by Send after the session has been closed
var ErrSessionClosed = errors.New("session closed")

// Limits holds per-connection timing and size limits
type Limits struct {
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxMessageBytes int64
}

// DefaultLimits mirrors the usual gorilla/websocket keepalive settings
func DefaultLimits() Limits {
	return Limits{
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		PingPeriod:      54 * time.Second,
		MaxMessageBytes: 1 << 20,
	}
}

// Session is one full-duplex WebSocket connection to the relay.
// Writes are serialised by writeMu; there is no outbound queue.
type Session struct {
	id          string
	conn        *websocket.Conn
	remoteAddr  string
	limits      Limits
	connectedAt time.Time

	writeMu sync.Mutex
	closed  bool
	done    chan struct{}
}

// NewSession wraps an upgraded connection
func NewSession(conn *websocket.Conn, remoteAddr string, limits Limits) *Session {
	return &Session{
		id:          ksuid.New().String(),
		conn:        conn,
		remoteAddr:  remoteAddr,
		limits:      limits,
		connectedAt: time.Now(),
		done:        make(chan struct{}),
	}
}

// ID returns the session's KSUID
func (s *Session) ID() string {
	return s.id
}

// RemoteAddr returns the peer address the connection was accepted from
func (s *Session) RemoteAddr() string {
	return s.remoteAddr
}

// Send writes one text frame, blocking for at most WriteWait
func (s *Session) Send(raw []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.limits.WriteWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, raw)
}

// Close sends a close frame (best effort) and tears the connection down
func (s *Session) Close() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.done)

	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(s.limits.WriteWait))
	_ = s.conn.Close()
}

// Run pumps inbound frames into the relay until the connection fails, then
// unregisters the session. It blocks; the HTTP handler goroutine owns it.
func (s *Session) Run(ctx context.Context, relay *Relay) {
	relay.Connect(ctx, s, s.remoteAddr)

	defer func() {
		relay.OnClose(ctx, s)
		s.Close()
	}()

	go s.pingLoop()

	s.conn.SetReadLimit(s.limits.MaxMessageBytes)
	if err := s.conn.SetReadDeadline(time.Now().Add(s.limits.PongWait)); err != nil {
		logging.Error().Err(err).Str("session_id", s.id).Msg("failed to set read deadline")
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.limits.PongWait))
	})

	for {
		msgType, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Warn().Err(err).Str("session_id", s.id).Msg("unexpected websocket close")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		// Any inbound frame proves liveness
		_ = s.conn.SetReadDeadline(time.Now().Add(s.limits.PongWait))

		relay.OnMessage(ctx, s, message)
	}
}

// pingLoop keeps idle connections alive; pongs extend the read deadline
func (s *Session) pingLoop() {
	ticker := time.NewTicker(s.limits.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			if s.closed {
				s.writeMu.Unlock()
				return
			}
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.limits.WriteWait))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
