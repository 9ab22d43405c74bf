package main

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"mapsketch/internal/client"
	"mapsketch/internal/feature"
	"mapsketch/internal/logging"

	"github.com/stretchr/testify/require"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

func newShell(t *testing.T) (*client.Client, func(line string) string) {
	t.Helper()
	c := client.New(client.Options{Name: "shell"})
	t.Cleanup(c.Close)

	return c, func(line string) string {
		var out bytes.Buffer
		done, err := execute(c, line, &out)
		require.NoError(t, err, line)
		require.False(t, done)
		return out.String()
	}
}

func addedID(t *testing.T, out string) string {
	t.Helper()
	id, ok := strings.CutPrefix(strings.TrimSpace(out), "added ")
	require.True(t, ok, out)
	return id
}

func TestExecute_DrawEditUndo(t *testing.T) {
	c, run := newShell(t)

	pointID := addedID(t, run("point 53.27 -9.05 Galway pier"))
	p, ok := c.Feature(pointID)
	require.True(t, ok)
	require.Equal(t, "Galway pier", p.Text.Label)
	require.Equal(t, feature.LatLng{Lat: 53.27, Lng: -9.05}, p.Geometry.Coords[0])

	polyID := addedID(t, run("polygon 53,-9 53.1,-9 53.1,-8.9"))
	run("style " + polyID + " stroke=#ff0000 fill=#00ff00 opacity=0.25 dash=2,2")
	poly, _ := c.Feature(polyID)
	require.Equal(t, "#ff0000", poly.Style.Stroke)
	require.Equal(t, "#00ff00", poly.Style.Fill)
	require.Equal(t, 0.25, *poly.Style.Opacity)
	require.Equal(t, "2,2", poly.Style.DashArray)

	run("label " + polyID + " north field")
	poly, _ = c.Feature(polyID)
	require.Equal(t, "north field", poly.Text.Label)

	run("move " + pointID + " 1,2")
	p, _ = c.Feature(pointID)
	require.Equal(t, feature.LatLng{Lat: 1, Lng: 2}, p.Geometry.Coords[0])

	require.Contains(t, run("list"), polyID)
	require.Contains(t, run("rm "+pointID), "removed")
	require.Contains(t, run("rm "+pointID), "no feature")

	require.Contains(t, run("undo"), "undo: 2 features")
	require.Contains(t, run("redo"), "redo: 1 features")
	require.Equal(t, "no peers\n", run("peers"))
}

func TestExecute_Errors(t *testing.T) {
	c := client.New(client.Options{Name: "shell"})
	defer c.Close()

	for _, line := range []string{
		"point 1",
		"point north 1",
		"line 1,1",
		"polygon 1,1 2,2",
		"line 1;1 2;2",
		"style missing stroke=#000",
		"rm",
		"view 1 2 close",
		"teleport",
	} {
		_, err := execute(c, line, io.Discard)
		require.Error(t, err, line)
	}

	id := addedID(t, func() string {
		var out bytes.Buffer
		_, err := execute(c, "point 1 1", &out)
		require.NoError(t, err)
		return out.String()
	}())
	_, err := execute(c, "style "+id+" opacity=2", io.Discard)
	require.Error(t, err)
	_, err = execute(c, "style "+id+" glow=1", io.Discard)
	require.Error(t, err)
}

func TestExecute_QuitAndBlank(t *testing.T) {
	c := client.New(client.Options{Name: "shell"})
	defer c.Close()

	done, err := execute(c, "   ", io.Discard)
	require.NoError(t, err)
	require.False(t, done)

	done, err = execute(c, "quit", io.Discard)
	require.NoError(t, err)
	require.True(t, done)
}
