package client

import (
	"io"
	"sync"

	"mapsketch/internal/feature"
	"mapsketch/internal/logging"
	"mapsketch/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// spyEmitter records outbound envelopes
type spyEmitter struct {
	mu   sync.Mutex
	sent []models.Envelope
	err  error
}

func (s *spyEmitter) Send(env models.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, env)
	return s.err
}

func (s *spyEmitter) Types() []models.MessageType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.MessageType, len(s.sent))
	for i, env := range s.sent {
		out[i] = env.Type
	}
	return out
}

// spyCommitter counts history commits
type spyCommitter struct {
	commits   int
	debounced int
}

func (s *spyCommitter) Commit()          { s.commits++ }
func (s *spyCommitter) CommitDebounced() { s.debounced++ }

// spyRenderer mirrors what would be on screen
type spyRenderer struct {
	mu      sync.Mutex
	drawn   map[string]feature.Feature
	cursors map[string]feature.LatLng
	erased  []string
}

func newSpyRenderer() *spyRenderer {
	return &spyRenderer{
		drawn:   make(map[string]feature.Feature),
		cursors: make(map[string]feature.LatLng),
	}
}

func (s *spyRenderer) Draw(f feature.Feature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawn[f.ID] = f
}

func (s *spyRenderer) Erase(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drawn, id)
	s.erased = append(s.erased, id)
}

func (s *spyRenderer) MoveCursor(p Participant, at feature.LatLng) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[p.ID] = at
}

func (s *spyRenderer) ClearCursor(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cursors, id)
}

func (s *spyRenderer) Drawn(id string) (feature.Feature, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.drawn[id]
	return f, ok
}

func (s *spyRenderer) Cursors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cursors)
}

var testSelf = Participant{ID: "self-id", Name: "Ann", Color: "#123456"}

// newTestReconciler wires a reconciler to spies
func newTestReconciler() (*Reconciler, *spyEmitter, *spyCommitter, *spyRenderer) {
	emitter := &spyEmitter{}
	committer := &spyCommitter{}
	renderer := newSpyRenderer()
	rec := NewReconciler(NewMemoryStore(), renderer, func() Participant { return testSelf })
	rec.Attach(emitter, committer)
	return rec, emitter, committer, renderer
}

func triangle() feature.Geometry {
	return feature.Polygon(
		feature.LatLng{Lat: 53.0, Lng: -9.0},
		feature.LatLng{Lat: 53.1, Lng: -9.0},
		feature.LatLng{Lat: 53.1, Lng: -8.9},
	)
}

func pin(lat, lng float64) feature.Feature {
	return feature.Feature{Geometry: feature.Point(feature.LatLng{Lat: lat, Lng: lng})}
}
