package client

import (
	"mapsketch/internal/feature"
	"mapsketch/internal/logging"
)

// Renderer is the drawing collaborator. Calls arrive on the event loop.
type Renderer interface {
	Draw(f feature.Feature)
	Erase(id string)
	MoveCursor(p Participant, at feature.LatLng)
	ClearCursor(participantID string)
}

// NopRenderer draws nothing
type NopRenderer struct{}

func (NopRenderer) Draw(feature.Feature) {}
func (NopRenderer) Erase(string) {}
func (NopRenderer) MoveCursor(Participant, feature.LatLng) {}
func (NopRenderer) ClearCursor(string) {}

// LogRenderer reports rendering calls to the log, for headless clients
type LogRenderer struct{}

func (LogRenderer) Draw(f feature.Feature) {
	logging.Info().
		Str("feature_id", f.ID).
		Str("kind", string(f.Geometry.Kind)).
		Int("vertices", len(f.Geometry.Coords)).
		Str("label", f.Text.Label).
		Msg("✏️ feature drawn")
}

func (LogRenderer) Erase(id string) {
	logging.Info().Str("feature_id", id).Msg("🧽 feature erased")
}

func (LogRenderer) MoveCursor(p Participant, at feature.LatLng) {
	logging.Debug().
		Str("user_id", p.ID).
		Str("user", p.Name).
		Float64("lat", at.Lat).
		Float64("lng", at.Lng).
		Msg("cursor moved")
}

func (LogRenderer) ClearCursor(participantID string) {
	logging.Debug().Str("user_id", participantID).Msg("cursor cleared")
}
