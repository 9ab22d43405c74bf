package feature

// StyleField identifies one style attribute
type StyleField uint8

const (
	FieldStroke StyleField = 1 << iota
	FieldFill
	FieldOpacity
	FieldDashArray
	FieldIcon
)

// Style applicability per geometry kind: markers have no fill or dash,
// lines have no fill or icon, polygons have no icon.
var applicable = map[Kind]StyleField{
	KindPoint:      FieldStroke | FieldOpacity | FieldIcon,
	KindLineString: FieldStroke | FieldOpacity | FieldDashArray,
	KindPolygon:    FieldStroke | FieldFill | FieldOpacity | FieldDashArray,
}

// Supports reports whether a style field applies to this kind
func (k Kind) Supports(f StyleField) bool {
	return applicable[k]&f != 0
}

// Icon describes a point marker image
type Icon struct {
	URL    string  `json:"url"`
	Size   [2]int  `json:"size,omitempty"`
	Anchor [2]int  `json:"anchor,omitempty"`
	Scale  float64 `json:"scale,omitempty"`
}

// Style holds rendering attributes. Opacity is 0..1; nil means renderer default.
type Style struct {
	Stroke    string
	Fill      string
	Opacity   *float64
	DashArray string
	Icon      *Icon
}

// For returns a copy with every field that does not apply to kind cleared
func (s Style) For(kind Kind) Style {
	out := s.clone()
	if !kind.Supports(FieldStroke) {
		out.Stroke = ""
	}
	if !kind.Supports(FieldFill) {
		out.Fill = ""
	}
	if !kind.Supports(FieldOpacity) {
		out.Opacity = nil
	}
	if !kind.Supports(FieldDashArray) {
		out.DashArray = ""
	}
	if !kind.Supports(FieldIcon) {
		out.Icon = nil
	}
	return out
}

func (s Style) clone() Style {
	out := s
	if s.Opacity != nil {
		v := *s.Opacity
		out.Opacity = &v
	}
	if s.Icon != nil {
		icon := *s.Icon
		out.Icon = &icon
	}
	return out
}

// Opacity is a helper for building styles inline
func Opacity(v float64) *float64 {
	return &v
}
