package feature

import (
	"errors"
	"fmt"
	"time"
)

/*
LEARNING: TAGGED GEOMETRY VARIANT

A feature's geometry is one of three kinds. Instead of asking a rendering
object what class it is, the kind is data, and everything that depends on it
(vertex rules, which style fields apply, the GeoJSON type name) is looked up
from the kind.
*/

// Kind is the geometry variant tag
type Kind string

const (
	KindPoint      Kind = "Point"
	KindLineString Kind = "LineString"
	KindPolygon    Kind = "Polygon"
)

var (
	ErrUnknownGeometry = errors.New("unknown geometry type")
	ErrInvalidGeometry = errors.New("invalid geometry")
	ErrMissingID       = errors.New("feature has no identifier")
)

// LatLng is one vertex, latitude first
type LatLng struct {
	Lat float64
	Lng float64
}

// Geometry is a vertex sequence tagged with its kind.
// Polygon rings are stored open (first vertex not repeated).
type Geometry struct {
	Kind   Kind
	Coords []LatLng
}

func Point(at LatLng) Geometry {
	return Geometry{Kind: KindPoint, Coords: []LatLng{at}}
}

func LineString(coords ...LatLng) Geometry {
	return Geometry{Kind: KindLineString, Coords: coords}
}

func Polygon(ring ...LatLng) Geometry {
	return Geometry{Kind: KindPolygon, Coords: openRing(ring)}
}

// minVertices per kind
var minVertices = map[Kind]int{
	KindPoint:      1,
	KindLineString: 2,
	KindPolygon:    3,
}

// Validate checks the vertex count rule for the geometry's kind
func (g Geometry) Validate() error {
	least, ok := minVertices[g.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownGeometry, g.Kind)
	}
	if g.Kind == KindPoint && len(g.Coords) != 1 {
		return fmt.Errorf("%w: point needs exactly 1 vertex, got %d", ErrInvalidGeometry, len(g.Coords))
	}
	if len(g.Coords) < least {
		return fmt.Errorf("%w: %s needs at least %d vertices, got %d", ErrInvalidGeometry, g.Kind, least, len(g.Coords))
	}
	return nil
}

func (g Geometry) clone() Geometry {
	return Geometry{Kind: g.Kind, Coords: append([]LatLng(nil), g.Coords...)}
}

func openRing(ring []LatLng) []LatLng {
	if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		return ring[:len(ring)-1]
	}
	return ring
}

// Text holds the label and popup content
type Text struct {
	Label string
	Popup string
}

// Meta is creation and last-update bookkeeping. Times are UTC with
// millisecond precision so they survive the wire format unchanged.
type Meta struct {
	CreatedBy string
	CreatedAt time.Time
	UpdatedBy string
	UpdatedAt time.Time
}

// Stamp normalises t to the precision carried on the wire
func Stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// Feature is one drawable annotation. ID is assigned once and never changes.
type Feature struct {
	ID       string
	Geometry Geometry
	Style    Style
	Text     Text
	Meta     Meta
}

// Clone returns a deep copy
func (f Feature) Clone() Feature {
	out := f
	out.Geometry = f.Geometry.clone()
	out.Style = f.Style.clone()
	return out
}
