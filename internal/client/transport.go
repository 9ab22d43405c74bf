package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mapsketch/internal/feature"
	"mapsketch/internal/logging"
	"mapsketch/internal/models"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// State is the transport connection state
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	ErrAlreadyConnected = errors.New("transport already connected")
	// ErrConnectAborted is returned when Disconnect runs while a dial is in flight
	ErrConnectAborted = errors.New("connect aborted by disconnect")
)

const (
	DefaultCursorInterval = 50 * time.Millisecond
	writeWait             = 10 * time.Second
)

// TransportHandlers receive inbound traffic. They are called from the read
// goroutine and are expected to hand the work to the event loop. OnMessage
// gets the epoch of the connection that delivered the message; pass it to
// Current before applying anything.
type TransportHandlers struct {
	OnMessage func(env models.Envelope, epoch uint64)
	OnClose   func(err error)
}

// Transport is the client end of one relay connection
type Transport struct {
	dialer   *websocket.Dialer
	handlers TransportHandlers
	cursor   *rate.Limiter

	state atomic.Int32

	mu    sync.Mutex // guards conn, epoch, room, self and state changes
	conn  *websocket.Conn
	epoch uint64 // bumped by every connect attempt and every teardown
	room  string
	self  models.UserInfo

	writeMu sync.Mutex
}

// TransportOption configures a Transport
type TransportOption func(*Transport)

// WithCursorInterval sets the minimum spacing between cursor sends
func WithCursorInterval(d time.Duration) TransportOption {
	return func(t *Transport) { t.cursor = rate.NewLimiter(rate.Every(d), 1) }
}

// WithDialer replaces the default websocket dialer
func WithDialer(d *websocket.Dialer) TransportOption {
	return func(t *Transport) { t.dialer = d }
}

// NewTransport creates a disconnected transport
func NewTransport(handlers TransportHandlers, opts ...TransportOption) *Transport {
	t := &Transport{
		dialer:   websocket.DefaultDialer,
		handlers: handlers,
		cursor:   rate.NewLimiter(rate.Every(DefaultCursorInterval), 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) State() State {
	return State(t.state.Load())
}

func (t *Transport) IsConnected() bool {
	return t.State() == Connected
}

// Current reports whether epoch belongs to the live connection
func (t *Transport) Current(epoch uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil && t.epoch == epoch
}

// Room reports the room this transport is bound to
func (t *Transport) Room() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.room
}

// Connect dials the relay, announces the identity with hello and presence,
// and starts the read goroutine
func (t *Transport) Connect(ctx context.Context, url, room string, identity Participant) error {
	if !t.state.CompareAndSwap(int32(Disconnected), int32(Connecting)) {
		return ErrAlreadyConnected
	}
	if room == "" {
		room = models.DefaultRoom
	}

	t.mu.Lock()
	t.epoch++
	epoch := t.epoch
	t.mu.Unlock()

	conn, _, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		t.mu.Lock()
		if t.epoch == epoch {
			t.state.Store(int32(Disconnected))
		}
		t.mu.Unlock()
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	t.mu.Lock()
	if t.epoch != epoch {
		t.mu.Unlock()
		_ = conn.Close()
		return ErrConnectAborted
	}
	t.conn = conn
	t.room = room
	t.self = identity.Info()
	t.state.Store(int32(Connected))
	t.mu.Unlock()

	logging.Info().
		Str("url", url).
		Str("room", room).
		Str("user_id", identity.ID).
		Msg("🔌 Connected to relay")

	go t.readLoop(conn, epoch)

	for _, kind := range []models.MessageType{models.MessageTypeHello, models.MessageTypePresence} {
		if err := t.Send(models.Envelope{Type: kind}); err != nil {
			t.closed(conn, err)
			return fmt.Errorf("failed to announce %s: %w", kind, err)
		}
	}
	return nil
}

// Send writes one message. While not connected the message is dropped.
func (t *Transport) Send(env models.Envelope) error {
	if !t.IsConnected() {
		return nil
	}

	t.mu.Lock()
	conn := t.conn
	env.Room = t.room
	self := t.self
	t.mu.Unlock()
	env.User = &self

	if conn == nil {
		return nil
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", env.Type, err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, raw)
}

// SendCursor sends a cursor position unless one was sent too recently
func (t *Transport) SendCursor(at feature.LatLng) (bool, error) {
	if !t.IsConnected() || !t.cursor.Allow() {
		return false, nil
	}
	latlng := [2]float64{at.Lat, at.Lng}
	return true, t.Send(models.Envelope{Type: models.MessageTypeCursor, LatLng: &latlng})
}

// Disconnect closes the connection. OnClose fires once. A dial still in
// flight is abandoned and its Connect returns ErrConnectAborted.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	conn := t.conn
	if conn == nil {
		if t.state.CompareAndSwap(int32(Connecting), int32(Disconnected)) {
			t.epoch++
		}
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	t.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	t.writeMu.Unlock()

	t.closed(conn, nil)
}

func (t *Transport) readLoop(conn *websocket.Conn, epoch uint64) {
	for {
		kind, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Warn().Err(err).Msg("⚠️ Relay connection lost")
			}
			t.closed(conn, err)
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		var env models.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logging.Debug().Err(err).Msg("dropping malformed message")
			continue
		}
		if !t.Current(epoch) {
			return
		}
		if !t.accept(env) {
			continue
		}
		if t.handlers.OnMessage != nil {
			t.handlers.OnMessage(env, epoch)
		}
	}
}

// accept applies the room and self-echo filters
func (t *Transport) accept(env models.Envelope) bool {
	t.mu.Lock()
	room, selfID := t.room, t.self.ID
	t.mu.Unlock()

	msgRoom := env.Room
	if msgRoom == "" {
		msgRoom = models.DefaultRoom
	}
	if msgRoom != room {
		return false
	}
	if env.User != nil && env.User.ID == selfID {
		return false
	}
	return true
}

// closed tears down conn if it is still the current connection
func (t *Transport) closed(conn *websocket.Conn, err error) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.epoch++
	t.state.Store(int32(Disconnected))
	t.mu.Unlock()

	_ = conn.Close()

	logging.Info().Err(err).Msg("🔌 Disconnected from relay")
	if t.handlers.OnClose != nil {
		t.handlers.OnClose(err)
	}
}
