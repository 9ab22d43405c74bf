package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"mapsketch/internal/client"
	"mapsketch/internal/feature"
)

var errUsage = errors.New("usage")

const help = `commands:
  point LAT LNG [LABEL...]          add a point
  line LAT,LNG LAT,LNG ...          add a line (2+ vertices)
  polygon LAT,LNG LAT,LNG LAT,LNG   add a polygon (3+ vertices)
  move ID LAT,LNG [LAT,LNG ...]     replace a feature's geometry
  style ID key=value ...            stroke= fill= opacity= dash=
  label ID TEXT...                  set a feature's label
  rm ID                             remove a feature
  cursor LAT LNG                    share the cursor position
  view LAT LNG ZOOM                 share the viewport
  undo | redo | list | peers | help | quit`

// sketcher is the part of client.Client the shell drives
type sketcher interface {
	AddFeature(f feature.Feature) (feature.Feature, error)
	EditFeature(f feature.Feature) (feature.Feature, error)
	EditStyle(id string, style feature.Style, text *feature.Text) (feature.Feature, error)
	RemoveFeature(id string) (bool, error)
	Undo() (bool, error)
	Redo() (bool, error)
	MoveCursor(at feature.LatLng) (bool, error)
	ShareView(center feature.LatLng, zoom float64) error
	Features() []feature.Feature
	Feature(id string) (feature.Feature, bool)
	Peers() []client.Participant
}

// execute runs one input line. It reports true when the shell should exit.
func execute(s sketcher, line string, out io.Writer) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "quit", "exit":
		return true, nil

	case "help":
		fmt.Fprintln(out, help)

	case "point":
		if len(args) < 2 {
			return false, fmt.Errorf("%w: point LAT LNG [LABEL...]", errUsage)
		}
		at, err := parseLatLng(args[0], args[1])
		if err != nil {
			return false, err
		}
		f, err := s.AddFeature(feature.Feature{
			Geometry: feature.Point(at),
			Text:     feature.Text{Label: strings.Join(args[2:], " ")},
		})
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "added %s\n", f.ID)

	case "line", "polygon":
		coords, err := parseVertices(args)
		if err != nil {
			return false, err
		}
		geom := feature.LineString(coords...)
		if name == "polygon" {
			geom = feature.Polygon(coords...)
		}
		f, err := s.AddFeature(feature.Feature{Geometry: geom})
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "added %s\n", f.ID)

	case "move":
		if len(args) < 2 {
			return false, fmt.Errorf("%w: move ID LAT,LNG [LAT,LNG ...]", errUsage)
		}
		existing, ok := s.Feature(args[0])
		if !ok {
			return false, fmt.Errorf("%w: %s", client.ErrFeatureNotFound, args[0])
		}
		coords, err := parseVertices(args[1:])
		if err != nil {
			return false, err
		}
		existing.Geometry = feature.Geometry{Kind: existing.Geometry.Kind, Coords: coords}
		if existing.Geometry.Kind == feature.KindPolygon {
			existing.Geometry = feature.Polygon(coords...)
		}
		if _, err := s.EditFeature(existing); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "moved %s\n", existing.ID)

	case "style":
		if len(args) < 2 {
			return false, fmt.Errorf("%w: style ID key=value ...", errUsage)
		}
		existing, ok := s.Feature(args[0])
		if !ok {
			return false, fmt.Errorf("%w: %s", client.ErrFeatureNotFound, args[0])
		}
		style, err := parseStyle(existing.Style, args[1:])
		if err != nil {
			return false, err
		}
		if _, err := s.EditStyle(existing.ID, style, nil); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "styled %s\n", existing.ID)

	case "label":
		if len(args) < 1 {
			return false, fmt.Errorf("%w: label ID TEXT...", errUsage)
		}
		existing, ok := s.Feature(args[0])
		if !ok {
			return false, fmt.Errorf("%w: %s", client.ErrFeatureNotFound, args[0])
		}
		text := existing.Text
		text.Label = strings.Join(args[1:], " ")
		if _, err := s.EditStyle(existing.ID, existing.Style, &text); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "labelled %s\n", existing.ID)

	case "rm":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: rm ID", errUsage)
		}
		removed, err := s.RemoveFeature(args[0])
		if err != nil {
			return false, err
		}
		if !removed {
			fmt.Fprintf(out, "no feature %s\n", args[0])
		} else {
			fmt.Fprintf(out, "removed %s\n", args[0])
		}

	case "undo", "redo":
		step := s.Undo
		if name == "redo" {
			step = s.Redo
		}
		ok, err := step()
		if err != nil {
			return false, err
		}
		if !ok {
			fmt.Fprintf(out, "nothing to %s\n", name)
		} else {
			fmt.Fprintf(out, "%s: %d features\n", name, len(s.Features()))
		}

	case "cursor":
		if len(args) != 2 {
			return false, fmt.Errorf("%w: cursor LAT LNG", errUsage)
		}
		at, err := parseLatLng(args[0], args[1])
		if err != nil {
			return false, err
		}
		if _, err := s.MoveCursor(at); err != nil {
			return false, err
		}

	case "view":
		if len(args) != 3 {
			return false, fmt.Errorf("%w: view LAT LNG ZOOM", errUsage)
		}
		at, err := parseLatLng(args[0], args[1])
		if err != nil {
			return false, err
		}
		zoom, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return false, fmt.Errorf("invalid zoom %q", args[2])
		}
		if err := s.ShareView(at, zoom); err != nil {
			return false, err
		}

	case "list":
		features := s.Features()
		if len(features) == 0 {
			fmt.Fprintln(out, "no features")
		}
		for _, f := range features {
			fmt.Fprintf(out, "%s  %-10s %d vertices  %q\n", f.ID, f.Geometry.Kind, len(f.Geometry.Coords), f.Text.Label)
		}

	case "peers":
		peers := s.Peers()
		if len(peers) == 0 {
			fmt.Fprintln(out, "no peers")
		}
		for _, p := range peers {
			fmt.Fprintf(out, "%s  %s  %s\n", p.ID, p.Color, p.Name)
		}

	default:
		return false, fmt.Errorf("unknown command %q (try help)", name)
	}
	return false, nil
}

func parseLatLng(lat, lng string) (feature.LatLng, error) {
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return feature.LatLng{}, fmt.Errorf("invalid latitude %q", lat)
	}
	ln, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return feature.LatLng{}, fmt.Errorf("invalid longitude %q", lng)
	}
	return feature.LatLng{Lat: la, Lng: ln}, nil
}

// parseVertices reads "lat,lng" pairs
func parseVertices(args []string) ([]feature.LatLng, error) {
	out := make([]feature.LatLng, 0, len(args))
	for _, arg := range args {
		lat, lng, ok := strings.Cut(arg, ",")
		if !ok {
			return nil, fmt.Errorf("vertex %q is not LAT,LNG", arg)
		}
		at, err := parseLatLng(lat, lng)
		if err != nil {
			return nil, err
		}
		out = append(out, at)
	}
	return out, nil
}

func parseStyle(base feature.Style, args []string) (feature.Style, error) {
	style := base
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return base, fmt.Errorf("style %q is not key=value", arg)
		}
		switch strings.ToLower(key) {
		case "stroke":
			style.Stroke = value
		case "fill":
			style.Fill = value
		case "dash", "dasharray":
			style.DashArray = value
		case "opacity":
			o, err := strconv.ParseFloat(value, 64)
			if err != nil || o < 0 || o > 1 {
				return base, fmt.Errorf("opacity %q must be between 0 and 1", value)
			}
			style.Opacity = feature.Opacity(o)
		default:
			return base, fmt.Errorf("unknown style key %q", key)
		}
	}
	return style, nil
}
