package client

import (
	"context"
	"time"

	"mapsketch/internal/feature"
	"mapsketch/internal/logging"
	"mapsketch/internal/models"
)

/*
LEARNING: ONE THREAD OWNS THE STATE

Participants, the store, the reconciler and history are plain structs with no
locks. The only goroutine allowed to touch them is the event loop:

	public method  --Do-->   loop
	read goroutine --Post--> loop
	debounce timer --Post--> loop

The transport is the one piece used from several goroutines and guards itself.
*/

// Options configures a Client
type Options struct {
	URL  string
	Room string
	Name string

	// Identity overrides the generated participant, mostly for tests
	Identity *Participant

	Store    Store
	Renderer Renderer

	HistoryCapacity int
	CommitDelay     time.Duration
	CursorInterval  time.Duration

	// OnPeers is called on the event loop whenever the remote roster changes
	OnPeers func(peers []Participant)
	// OnView is called on the event loop when a peer shares its viewport
	OnView func(from Participant, center feature.LatLng, zoom float64)
}

// Client is one collaborating participant
type Client struct {
	opts Options

	loop         *Loop
	participants *Participants
	renderer     Renderer
	rec          *Reconciler
	history      *History
	transport    *Transport
}

// New wires a client and commits the empty starting snapshot
func New(opts Options) *Client {
	if opts.Room == "" {
		opts.Room = models.DefaultRoom
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Renderer == nil {
		opts.Renderer = NopRenderer{}
	}
	if opts.HistoryCapacity == 0 {
		opts.HistoryCapacity = DefaultHistoryCapacity
	}
	if opts.CommitDelay == 0 {
		opts.CommitDelay = DefaultCommitDelay
	}
	if opts.CursorInterval == 0 {
		opts.CursorInterval = DefaultCursorInterval
	}

	self := NewIdentity(opts.Name)
	if opts.Identity != nil {
		self = *opts.Identity
	}

	c := &Client{
		opts:         opts,
		loop:         NewLoop(256),
		participants: NewParticipants(self),
		renderer:     opts.Renderer,
	}
	c.rec = NewReconciler(opts.Store, opts.Renderer, c.participants.Self)
	c.history = NewHistory(c.rec,
		WithCapacity(opts.HistoryCapacity),
		WithCommitDelay(opts.CommitDelay),
		WithScheduler(c.loop.Post),
	)
	c.transport = NewTransport(TransportHandlers{
		OnMessage: func(env models.Envelope, epoch uint64) {
			c.loop.Post(func() {
				// frames queued before a disconnect must not land afterwards
				if !c.transport.Current(epoch) {
					return
				}
				c.dispatch(env)
			})
		},
		OnClose: func(error) {
			c.loop.Post(c.dropPeers)
		},
	}, WithCursorInterval(opts.CursorInterval))
	c.rec.Attach(fireAndForget{c.transport}, c.history)

	_ = c.loop.Do(func() error {
		c.history.Commit()
		return nil
	})
	return c
}

// fireAndForget logs send failures instead of failing the local mutation
type fireAndForget struct {
	t *Transport
}

func (f fireAndForget) Send(env models.Envelope) error {
	if err := f.t.Send(env); err != nil {
		logging.Warn().Err(err).Str("type", string(env.Type)).Msg("⚠️ Failed to send message")
	}
	return nil
}

// Connect joins the configured room
func (c *Client) Connect(ctx context.Context) error {
	return c.transport.Connect(ctx, c.opts.URL, c.opts.Room, c.participants.Self())
}

// Disconnect leaves the room. Features already applied are kept.
func (c *Client) Disconnect() {
	c.transport.Disconnect()
}

// Close disconnects and stops the event loop
func (c *Client) Close() {
	c.transport.Disconnect()
	c.loop.Stop()
}

func (c *Client) Self() Participant {
	return c.participants.Self()
}

func (c *Client) Room() string {
	return c.opts.Room
}

func (c *Client) State() State {
	return c.transport.State()
}

func (c *Client) AddFeature(f feature.Feature) (feature.Feature, error) {
	return call(c.loop, func() (feature.Feature, error) { return c.rec.Add(f) })
}

func (c *Client) EditFeature(f feature.Feature) (feature.Feature, error) {
	return call(c.loop, func() (feature.Feature, error) { return c.rec.Edit(f) })
}

// EditStyle restyles a feature; text is left alone when nil
func (c *Client) EditStyle(id string, style feature.Style, text *feature.Text) (feature.Feature, error) {
	return call(c.loop, func() (feature.Feature, error) { return c.rec.EditStyle(id, style, text) })
}

func (c *Client) RemoveFeature(id string) (bool, error) {
	return call(c.loop, func() (bool, error) { return c.rec.Remove(id) })
}

func (c *Client) Undo() (bool, error) {
	return call(c.loop, c.history.Undo)
}

func (c *Client) Redo() (bool, error) {
	return call(c.loop, c.history.Redo)
}

func (c *Client) CanUndo() bool {
	ok, _ := call(c.loop, func() (bool, error) { return c.history.CanUndo(), nil })
	return ok
}

func (c *Client) CanRedo() bool {
	ok, _ := call(c.loop, func() (bool, error) { return c.history.CanRedo(), nil })
	return ok
}

// MoveCursor shares the local cursor; it reports false when throttled
func (c *Client) MoveCursor(at feature.LatLng) (bool, error) {
	return c.transport.SendCursor(at)
}

// ShareView shares the local viewport
func (c *Client) ShareView(center feature.LatLng, zoom float64) error {
	latlng := [2]float64{center.Lat, center.Lng}
	return c.transport.Send(models.Envelope{Type: models.MessageTypeView, Center: &latlng, Zoom: &zoom})
}

// Features returns a copy of the store in insertion order
func (c *Client) Features() []feature.Feature {
	out, _ := call(c.loop, func() ([]feature.Feature, error) { return c.rec.Store().All(), nil })
	return out
}

func (c *Client) Feature(id string) (feature.Feature, bool) {
	var (
		f  feature.Feature
		ok bool
	)
	_ = c.loop.Do(func() error {
		f, ok = c.rec.Store().Get(id)
		return nil
	})
	return f, ok
}

// Peers lists the remote participants seen since connecting
func (c *Client) Peers() []Participant {
	out, _ := call(c.loop, func() ([]Participant, error) { return c.participants.Remotes(), nil })
	return out
}

// dispatch handles one inbound message on the event loop
func (c *Client) dispatch(env models.Envelope) {
	var sender Participant
	if env.User != nil {
		p, joined := c.participants.Observe(*env.User)
		sender = p
		if joined {
			logging.Info().Str("user_id", p.ID).Str("user", p.Name).Msg("👋 Peer joined")
			c.notifyPeers()
		}
	}

	log := logging.With().Str("type", string(env.Type)).Str("user_id", sender.ID).Logger()

	switch env.Type {
	case models.MessageTypeFeatureAdd, models.MessageTypeFeatureEdit:
		f, err := feature.Decode(env.Feature)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Ignoring undecodable feature")
			return
		}
		if env.Type == models.MessageTypeFeatureAdd {
			err = c.rec.ApplyRemoteAdd(f, sender.ID)
		} else {
			err = c.rec.ApplyRemoteEdit(f, sender.ID)
		}
		if err != nil {
			log.Warn().Err(err).Str("feature_id", f.ID).Msg("⚠️ Failed to apply remote feature")
			return
		}
		c.history.Commit()

	case models.MessageTypeFeatureRemove:
		removed, err := c.rec.ApplyRemoteRemove(env.ID)
		if err != nil {
			log.Warn().Err(err).Str("feature_id", env.ID).Msg("⚠️ Failed to apply remote removal")
			return
		}
		if removed {
			c.history.Commit()
		}

	case models.MessageTypeCursor:
		if env.LatLng != nil && sender.ID != "" {
			c.renderer.MoveCursor(sender, feature.LatLng{Lat: env.LatLng[0], Lng: env.LatLng[1]})
		}

	case models.MessageTypeView:
		if env.Center != nil && c.opts.OnView != nil {
			zoom := 0.0
			if env.Zoom != nil {
				zoom = *env.Zoom
			}
			c.opts.OnView(sender, feature.LatLng{Lat: env.Center[0], Lng: env.Center[1]}, zoom)
		}

	case models.MessageTypeHello:
		// answer so the newcomer learns about us
		if err := c.transport.Send(models.Envelope{Type: models.MessageTypePresence}); err != nil {
			log.Warn().Err(err).Msg("⚠️ Failed to answer hello")
		}

	case models.MessageTypePresence:

	default:
		log.Debug().Msg("ignoring unknown message type")
	}
}

// dropPeers forgets every remote participant after the transport closes
func (c *Client) dropPeers() {
	dropped := c.participants.Clear()
	for _, p := range dropped {
		c.renderer.ClearCursor(p.ID)
	}
	if len(dropped) > 0 {
		c.notifyPeers()
	}
}

func (c *Client) notifyPeers() {
	if c.opts.OnPeers != nil {
		c.opts.OnPeers(c.participants.Remotes())
	}
}
