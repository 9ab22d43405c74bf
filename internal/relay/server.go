package relay

import (
	"net/http"
	"sync"

	"mapsketch/internal/logging"
	"mapsketch/internal/middleware"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
)

// Server accepts WebSocket connections and hands each one to the relay.
// It also tracks every live session, bound or not, so Shutdown can close them.
type Server struct {
	relay    *Relay
	limits   Limits
	upgrader websocket.Upgrader

	mu   sync.Mutex
	live map[*Session]struct{}
}

// NewServer creates the WebSocket endpoint. allowedOrigins may contain "*".
func NewServer(relay *Relay, limits Limits, allowedOrigins []string) *Server {
	return &Server{
		relay:  relay,
		limits: limits,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		live: make(map[*Session]struct{}),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || lo.Contains(allowed, "*") {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non-browser clients send no Origin header
		return origin == "" || lo.Contains(allowed, origin)
	}
}

// ServeHTTP upgrades the request and runs the session until it disconnects
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := middleware.StartSpan(r.Context(), "WebSocket.Connect",
		attribute.String("remote.addr", r.RemoteAddr),
	)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("failed to upgrade websocket")
		middleware.AddSpanError(ctx, err)
		span.End()
		return
	}

	session := NewSession(conn, r.RemoteAddr, s.limits)
	middleware.BindSession(ctx, session.ID())
	span.SetAttributes(attribute.String("session.id", session.ID()))
	span.End()

	s.track(session)
	defer s.untrack(session)

	session.Run(ctx, s.relay)
}

func (s *Server) track(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live[session] = struct{}{}
}

func (s *Server) untrack(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, session)
}

// LiveSessions returns the number of open connections, bound or not
func (s *Server) LiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Shutdown closes every live connection; each Run loop then unregisters itself
func (s *Server) Shutdown() {
	s.mu.Lock()
	sessions := lo.Keys(s.live)
	s.mu.Unlock()

	logging.Info().Int("sessions", len(sessions)).Msg("closing websocket sessions")
	for _, session := range sessions {
		session.Close()
	}
}
