package client

import (
	"context"
	"testing"
	"time"

	"mapsketch/internal/feature"
	"mapsketch/internal/models"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

const eventually = 2 * time.Second

func joinRoom(t *testing.T, r *testRelay, name, room string, renderer Renderer) *Client {
	t.Helper()
	before := r.registry.Size(room)

	c := New(Options{URL: r.url, Room: room, Name: name, Renderer: renderer})
	t.Cleanup(c.Close)
	require.NoError(t, c.Connect(context.Background()))
	r.waitForRoom(t, room, before+1)
	return c
}

func peerIDs(c *Client) []string {
	return lo.Map(c.Peers(), func(p Participant, _ int) string { return p.ID })
}

func TestClient_StartsWithUndoFloor(t *testing.T) {
	c := New(Options{Name: "solo"})
	defer c.Close()

	require.False(t, c.CanUndo())
	ok, err := c.Undo()
	require.NoError(t, err)
	require.False(t, ok)

	_, err = c.AddFeature(pin(1, 1))
	require.NoError(t, err, "local edits work without a connection")
	require.True(t, c.CanUndo())
	require.Equal(t, Disconnected, c.State())
}

func TestClient_PeersDiscoverEachOther(t *testing.T) {
	r := startRelay(t)
	ann := joinRoom(t, r, "Ann", "demo", nil)
	bob := joinRoom(t, r, "Bob", "demo", nil)

	require.Eventually(t, func() bool {
		return lo.Contains(peerIDs(ann), bob.Self().ID) && lo.Contains(peerIDs(bob), ann.Self().ID)
	}, eventually, 10*time.Millisecond)
	require.Equal(t, ColorForName("Bob"), ann.Peers()[0].Color)
}

func TestClient_PolygonLifecycleAcrossClients(t *testing.T) {
	r := startRelay(t)
	annView := newSpyRenderer()
	ann := joinRoom(t, r, "Ann", "demo", annView)
	bob := joinRoom(t, r, "Bob", "demo", nil)

	created, err := ann.AddFeature(feature.Feature{
		Geometry: triangle(),
		Style:    feature.Style{Stroke: "#3388ff", Fill: "#3388ff", Opacity: feature.Opacity(0.5)},
		Text:     feature.Text{Label: "field"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	require.Eventually(t, func() bool {
		_, ok := bob.Feature(created.ID)
		return ok
	}, eventually, 10*time.Millisecond)
	seen, _ := bob.Feature(created.ID)
	require.Equal(t, created.Geometry, seen.Geometry)
	require.Equal(t, ann.Self().ID, seen.Meta.CreatedBy)
	require.True(t, bob.CanUndo(), "remote changes are checkpointed")

	restyle := feature.Style{Stroke: "#ff0000", Fill: "#00ff00", Opacity: feature.Opacity(0.9), DashArray: "4 4"}
	edited, err := bob.EditStyle(created.ID, restyle, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, ok := ann.Feature(created.ID)
		return ok && got.Style.Stroke == "#ff0000"
	}, eventually, 10*time.Millisecond)
	got, _ := ann.Feature(created.ID)
	require.Equal(t, edited.Style, got.Style)
	require.Equal(t, bob.Self().ID, got.Meta.UpdatedBy)
	drawn, ok := annView.Drawn(created.ID)
	require.True(t, ok)
	require.Equal(t, edited.Style, drawn.Style)

	removed, err := ann.RemoveFeature(created.ID)
	require.NoError(t, err)
	require.True(t, removed)

	require.Eventually(t, func() bool {
		_, ok := bob.Feature(created.ID)
		return !ok
	}, eventually, 10*time.Millisecond)
	require.Empty(t, bob.Features())
}

func TestClient_RoomsAreIsolated(t *testing.T) {
	r := startRelay(t)
	ann := joinRoom(t, r, "Ann", "demo", nil)
	bob := joinRoom(t, r, "Bob", "demo", nil)
	carlView := newSpyRenderer()
	carl := joinRoom(t, r, "Carl", "other", carlView)

	for i := 0; i < 5; i++ {
		_, err := carl.MoveCursor(feature.LatLng{Lat: float64(i), Lng: float64(i)})
		require.NoError(t, err)
		time.Sleep(60 * time.Millisecond)
	}
	_, err := carl.AddFeature(pin(9, 9))
	require.NoError(t, err)

	// a message that does reach the demo room marks the point where Carl's would have landed
	_, err = bob.AddFeature(pin(1, 1))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(ann.Features()) == 1 }, eventually, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return lo.Contains(peerIDs(ann), bob.Self().ID)
	}, eventually, 10*time.Millisecond)
	require.NotContains(t, peerIDs(ann), carl.Self().ID)
	require.NotContains(t, peerIDs(bob), carl.Self().ID)
	require.Empty(t, carl.Peers())
	require.Len(t, carl.Features(), 1)
	require.Equal(t, 1, r.registry.Size("other"))
}

func TestClient_DisconnectDropsPeersButKeepsFeatures(t *testing.T) {
	r := startRelay(t)
	annView := newSpyRenderer()
	ann := joinRoom(t, r, "Ann", "demo", annView)
	bob := joinRoom(t, r, "Bob", "demo", nil)

	created, err := bob.AddFeature(pin(4, 4))
	require.NoError(t, err)
	_, err = bob.MoveCursor(feature.LatLng{Lat: 4, Lng: 4})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := ann.Feature(created.ID)
		return ok && annView.Cursors() == 1 && len(ann.Peers()) == 1
	}, eventually, 10*time.Millisecond)

	ann.Disconnect()
	require.Eventually(t, func() bool { return len(ann.Peers()) == 0 }, eventually, 10*time.Millisecond)
	require.Zero(t, annView.Cursors())
	_, ok := ann.Feature(created.ID)
	require.True(t, ok, "applied features survive a disconnect")
	r.waitForRoom(t, "demo", 1)

	// nothing reaches a disconnected client
	_, err = bob.AddFeature(pin(5, 5))
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)
	require.Len(t, ann.Features(), 1)
}

func TestClient_UndoIsNotBroadcast(t *testing.T) {
	r := startRelay(t)
	ann := joinRoom(t, r, "Ann", "demo", nil)
	bob := joinRoom(t, r, "Bob", "demo", nil)

	created, err := ann.AddFeature(pin(2, 2))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := bob.Feature(created.ID)
		return ok
	}, eventually, 10*time.Millisecond)

	ok, err := ann.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, ann.Features())

	// a later broadcast from Ann still lands after anything the undo might have sent
	marker, err := ann.AddFeature(pin(3, 3))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := bob.Feature(marker.ID)
		return ok
	}, eventually, 10*time.Millisecond)
	_, still := bob.Feature(created.ID)
	require.True(t, still, "peers are not told about an undo")

	ok, err = ann.Redo()
	require.NoError(t, err)
	require.False(t, ok, "the new add cleared the redo stack")
}

func TestClient_QueuedRemoteOpsAreDroppedOnDisconnect(t *testing.T) {
	r := startRelay(t)
	annView := newSpyRenderer()
	ann := joinRoom(t, r, "Ann", "demo", annView)
	bob := joinRoom(t, r, "Bob", "demo", nil)
	require.Eventually(t, func() bool { return len(ann.Peers()) == 1 }, eventually, 10*time.Millisecond)

	// hold Ann's loop so Bob's frames queue up behind it
	release := make(chan struct{})
	require.True(t, ann.loop.Post(func() { <-release }))
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})

	created, err := bob.AddFeature(pin(6, 6))
	require.NoError(t, err)
	_, err = bob.MoveCursor(feature.LatLng{Lat: 6, Lng: 6})
	require.NoError(t, err)
	time.Sleep(200 * time.Millisecond)

	ann.Disconnect()
	require.Equal(t, Disconnected, ann.State())
	close(release)

	_, ok := ann.Feature(created.ID)
	require.False(t, ok, "nothing is applied once Disconnect returns")
	require.False(t, ann.CanUndo())
	require.Empty(t, ann.Peers())
	require.Zero(t, annView.Cursors())
}

func TestClient_RepeatedRemoteEditCommitsOnce(t *testing.T) {
	c := New(Options{Name: "solo"})
	defer c.Close()

	peer := models.UserInfo{ID: "peer", Name: "Peer"}
	base := pin(1, 1)
	base.ID = "shared"
	base.Meta = feature.Meta{CreatedBy: "peer", CreatedAt: feature.Stamp(time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC))}
	edit := base.Clone()
	edit.Text.Label = "moved"
	edit.Meta.UpdatedBy = "peer"
	edit.Meta.UpdatedAt = feature.Stamp(time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC))

	envelope := func(kind models.MessageType, f feature.Feature) models.Envelope {
		raw, err := feature.Encode(f)
		require.NoError(t, err)
		return models.Envelope{Type: kind, Room: models.DefaultRoom, User: &peer, Feature: raw}
	}
	add := envelope(models.MessageTypeFeatureAdd, base)
	update := envelope(models.MessageTypeFeatureEdit, edit)

	depth, err := call(c.loop, func() (int, error) {
		c.dispatch(add)
		c.dispatch(update)
		c.dispatch(update)
		undo, _ := c.history.Depth()
		return undo, nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, depth, "floor, add and one edit")

	ok, err := c.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	got, _ := c.Feature("shared")
	require.Empty(t, got.Text.Label, "one undo reverts the edit")
}
