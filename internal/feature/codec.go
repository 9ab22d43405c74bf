package feature

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

/*
LEARNING: TRANSPORT REPRESENTATION

A feature travels as a GeoJSON Feature: coordinates in [lng, lat] order and a
flat properties map. Bookkeeping keys are underscore-prefixed:

	{"type":"Feature",
	 "geometry":{"type":"Polygon","coordinates":[[[lng,lat],...,[lng,lat]]]},
	 "properties":{"_id":"...","_createdBy":"...","_createdAt":1700000000000,
	               "stroke":"#3388ff","fill":"#3388ff","opacity":0.5,"label":"Area"}}

Timestamps are epoch milliseconds; RFC3339 strings are accepted on input.
Style fields that do not apply to the geometry kind are neither written nor read.
*/

type wireFeature struct {
	Type       string         `json:"type"`
	Geometry   wireGeometry   `json:"geometry"`
	Properties wireProperties `json:"properties"`
}

type wireGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

type wireProperties struct {
	ID        string  `json:"_id,omitempty"`
	CreatedBy string  `json:"_createdBy,omitempty"`
	CreatedAt *msTime `json:"_createdAt,omitempty"`
	UpdatedBy string  `json:"_updatedBy,omitempty"`
	UpdatedAt *msTime `json:"_updatedAt,omitempty"`

	Stroke    string   `json:"stroke,omitempty"`
	Opacity   *float64 `json:"opacity,omitempty"`
	DashArray string   `json:"dashArray,omitempty"`
	Fill      string   `json:"fill,omitempty"`
	Label     string   `json:"label,omitempty"`
	Popup     string   `json:"popup,omitempty"`
	Icon      *Icon    `json:"icon,omitempty"`
}

// msTime is a timestamp encoded as epoch milliseconds
type msTime time.Time

func newMsTime(t time.Time) *msTime {
	if t.IsZero() {
		return nil
	}
	v := msTime(t)
	return &v
}

func (t *msTime) time() time.Time {
	if t == nil {
		return time.Time{}
	}
	return Stamp(time.Time(*t))
}

func (t msTime) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, time.Time(t).UnixMilli(), 10), nil
}

func (t *msTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		*t = msTime(parsed)
		return nil
	}
	var ms float64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", data, err)
	}
	*t = msTime(time.UnixMilli(int64(ms)))
	return nil
}

// Encode converts a feature to its transport representation
func Encode(f Feature) (json.RawMessage, error) {
	if err := f.Geometry.Validate(); err != nil {
		return nil, err
	}

	coords, err := encodeCoordinates(f.Geometry)
	if err != nil {
		return nil, err
	}

	style := f.Style.For(f.Geometry.Kind)
	wire := wireFeature{
		Type:     "Feature",
		Geometry: wireGeometry{Type: string(f.Geometry.Kind), Coordinates: coords},
		Properties: wireProperties{
			ID:        f.ID,
			CreatedBy: f.Meta.CreatedBy,
			CreatedAt: newMsTime(f.Meta.CreatedAt),
			UpdatedBy: f.Meta.UpdatedBy,
			UpdatedAt: newMsTime(f.Meta.UpdatedAt),
			Stroke:    style.Stroke,
			Opacity:   style.Opacity,
			DashArray: style.DashArray,
			Fill:      style.Fill,
			Label:     f.Text.Label,
			Popup:     f.Text.Popup,
			Icon:      style.Icon,
		},
	}

	raw, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to encode feature %s: %w", f.ID, err)
	}
	return raw, nil
}

// Decode parses a transport representation. A missing _id is not an error
// here; the reconciler decides whether to assign one.
func Decode(raw []byte) (Feature, error) {
	var wire wireFeature
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Feature{}, fmt.Errorf("failed to decode feature: %w", err)
	}

	geom, err := decodeCoordinates(Kind(wire.Geometry.Type), wire.Geometry.Coordinates)
	if err != nil {
		return Feature{}, err
	}
	if err := geom.Validate(); err != nil {
		return Feature{}, err
	}

	p := wire.Properties
	style := Style{
		Stroke:    p.Stroke,
		Fill:      p.Fill,
		Opacity:   p.Opacity,
		DashArray: p.DashArray,
		Icon:      p.Icon,
	}

	return Feature{
		ID:       p.ID,
		Geometry: geom,
		Style:    style.For(geom.Kind),
		Text:     Text{Label: p.Label, Popup: p.Popup},
		Meta: Meta{
			CreatedBy: p.CreatedBy,
			CreatedAt: p.CreatedAt.time(),
			UpdatedBy: p.UpdatedBy,
			UpdatedAt: p.UpdatedAt.time(),
		},
	}, nil
}

// EncodeAll encodes a feature collection as a JSON array
func EncodeAll(features []Feature) ([]byte, error) {
	items := make([]json.RawMessage, 0, len(features))
	for _, f := range features {
		raw, err := Encode(f)
		if err != nil {
			return nil, err
		}
		items = append(items, raw)
	}
	return json.Marshal(items)
}

// DecodeAll decodes a JSON array produced by EncodeAll. It fails as a whole
// if any element is invalid.
func DecodeAll(data []byte) ([]Feature, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode feature list: %w", err)
	}
	out := make([]Feature, 0, len(items))
	for i, raw := range items {
		f, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		if f.ID == "" {
			return nil, fmt.Errorf("feature %d: %w", i, ErrMissingID)
		}
		out = append(out, f)
	}
	return out, nil
}

type position [2]float64 // [lng, lat]

func toPositions(coords []LatLng) []position {
	out := make([]position, len(coords))
	for i, c := range coords {
		out[i] = position{c.Lng, c.Lat}
	}
	return out
}

func fromPositions(ps []position) []LatLng {
	out := make([]LatLng, len(ps))
	for i, p := range ps {
		out[i] = LatLng{Lat: p[1], Lng: p[0]}
	}
	return out
}

func encodeCoordinates(g Geometry) (json.RawMessage, error) {
	switch g.Kind {
	case KindPoint:
		return json.Marshal(position{g.Coords[0].Lng, g.Coords[0].Lat})
	case KindLineString:
		return json.Marshal(toPositions(g.Coords))
	case KindPolygon:
		// GeoJSON rings are closed
		ring := append(toPositions(g.Coords), position{g.Coords[0].Lng, g.Coords[0].Lat})
		return json.Marshal([][]position{ring})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownGeometry, g.Kind)
	}
}

func decodeCoordinates(kind Kind, raw json.RawMessage) (Geometry, error) {
	switch kind {
	case KindPoint:
		var p position
		if err := json.Unmarshal(raw, &p); err != nil {
			return Geometry{}, fmt.Errorf("%w: point coordinates: %v", ErrInvalidGeometry, err)
		}
		return Point(LatLng{Lat: p[1], Lng: p[0]}), nil
	case KindLineString:
		var ps []position
		if err := json.Unmarshal(raw, &ps); err != nil {
			return Geometry{}, fmt.Errorf("%w: line coordinates: %v", ErrInvalidGeometry, err)
		}
		return LineString(fromPositions(ps)...), nil
	case KindPolygon:
		var rings [][]position
		if err := json.Unmarshal(raw, &rings); err != nil {
			return Geometry{}, fmt.Errorf("%w: polygon coordinates: %v", ErrInvalidGeometry, err)
		}
		if len(rings) == 0 {
			return Geometry{}, fmt.Errorf("%w: polygon has no rings", ErrInvalidGeometry)
		}
		// Only the outer ring is kept; annotations are drawn without holes
		return Polygon(fromPositions(rings[0])...), nil
	default:
		return Geometry{}, fmt.Errorf("%w: %q", ErrUnknownGeometry, kind)
	}
}
