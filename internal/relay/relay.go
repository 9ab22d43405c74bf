package relay

import (
	"context"
	"sync"
	"time"

	"mapsketch/internal/logging"
	"mapsketch/internal/middleware"
	"mapsketch/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

/*
LEARNING: ROOM-SCOPED FAN-OUT RELAY

The relay is a pure pipe:
1. Read just enough of each message to find its room
2. Bind the sender to that room on its FIRST message only
3. Forward the raw bytes, unchanged, to every other member of the bound room

It never validates payloads. Correctness of the shared feature set lives in
the clients; the relay only guarantees room isolation and best-effort delivery.
*/

// AuditRecorder receives connection lifecycle facts. It never sees payloads.
type AuditRecorder interface {
	Opened(ctx context.Context, sessionID, remoteAddr string, at time.Time) error
	Bound(ctx context.Context, sessionID, room string, user models.UserInfo, at time.Time) error
	Closed(ctx context.Context, sessionID string, relayed int64, at time.Time) error
}

// Relay routes raw messages between sessions of the same room
type Relay struct {
	registry    *Registry
	audit       AuditRecorder
	defaultRoom string
	now         func() time.Time
}

// Option customises a Relay
type Option func(*Relay)

// WithAudit enables connection auditing
func WithAudit(a AuditRecorder) Option {
	return func(r *Relay) { r.audit = a }
}

// WithDefaultRoom sets the room used for messages without a room field
func WithDefaultRoom(room string) Option {
	return func(r *Relay) { r.defaultRoom = room }
}

// NewRelay creates a relay around an injected registry
func NewRelay(registry *Registry, opts ...Option) *Relay {
	r := &Relay{
		registry:    registry,
		defaultRoom: models.DefaultRoom,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry exposes the membership registry for introspection
func (r *Relay) Registry() *Registry {
	return r.registry
}

// Connect is called once a transport session is accepted.
// Room binding waits for the first message.
func (r *Relay) Connect(ctx context.Context, p Peer, remoteAddr string) {
	logging.Debug().Str("session_id", p.ID()).Str("remote_addr", remoteAddr).Msg("session connected")

	if r.audit != nil {
		if err := r.audit.Opened(ctx, p.ID(), remoteAddr, r.now()); err != nil {
			logging.Warn().Err(err).Str("session_id", p.ID()).Msg("failed to audit session open")
		}
	}
}

// OnMessage routes one inbound message. It returns the number of peers the
// message was delivered to; malformed messages are dropped and return 0.
func (r *Relay) OnMessage(ctx context.Context, p Peer, raw []byte) int {
	room, user, err := models.ProbeRoom(raw, r.defaultRoom)
	if err != nil {
		logging.Debug().Err(err).Str("session_id", p.ID()).Msg("dropping unparseable message")
		return 0
	}

	bound, first := r.registry.Bind(p, room)
	if first {
		logging.Info().
			Str("session_id", p.ID()).
			Str("room", bound).
			Str("user_id", user.ID).
			Int("sessions", r.registry.Size(bound)).
			Msg("session joined room")

		if r.audit != nil {
			if err := r.audit.Bound(ctx, p.ID(), bound, user, r.now()); err != nil {
				logging.Warn().Err(err).Str("session_id", p.ID()).Msg("failed to audit room binding")
			}
		}
	} else if bound != room {
		logging.Debug().
			Str("session_id", p.ID()).
			Str("bound_room", bound).
			Str("message_room", room).
			Msg("message room differs from bound room, routing to bound room")
	}

	ctx, span := middleware.StartSpan(ctx, "Relay.OnMessage",
		attribute.String("session.id", p.ID()),
		attribute.String("room", bound),
		attribute.Int("message.size", len(raw)),
	)
	defer span.End()

	r.registry.MarkRelayed(p.ID())
	delivered := r.broadcast(ctx, bound, p.ID(), raw)

	span.SetAttributes(attribute.Int("message.delivered", delivered))
	return delivered
}

// broadcast writes raw to every other member of room concurrently, so one
// slow peer only delays itself. Failures are logged and skipped.
func (r *Relay) broadcast(ctx context.Context, room, senderID string, raw []byte) int {
	targets := r.registry.Members(room, senderID)
	if len(targets) == 0 {
		return 0
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for _, target := range targets {
		wg.Add(1)
		go func(target Peer) {
			defer wg.Done()
			if err := target.Send(raw); err != nil {
				logging.Debug().Err(err).
					Str("room", room).
					Str("session_id", target.ID()).
					Msg("send failed, skipping recipient")
				middleware.AddSpanEvent(ctx, "send_failed", attribute.String("session.id", target.ID()))
				return
			}
			mu.Lock()
			delivered++
			mu.Unlock()
		}(target)
	}
	wg.Wait()

	return delivered
}

// OnClose removes the session and prunes its room if it became empty
func (r *Relay) OnClose(ctx context.Context, p Peer) {
	membership, ok := r.registry.Remove(p.ID())
	if ok {
		logging.Info().
			Str("session_id", p.ID()).
			Str("room", membership.Room).
			Int64("relayed", membership.Relayed).
			Int("remaining", r.registry.Size(membership.Room)).
			Msg("session left room")
	} else {
		logging.Debug().Str("session_id", p.ID()).Msg("session closed before joining a room")
	}

	if r.audit != nil {
		if err := r.audit.Closed(ctx, p.ID(), membership.Relayed, r.now()); err != nil {
			logging.Warn().Err(err).Str("session_id", p.ID()).Msg("failed to audit session close")
		}
	}
}
