package client

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"mapsketch/internal/feature"
	"mapsketch/internal/models"

	"github.com/stretchr/testify/require"
)

func TestReconciler_AddAssignsIdentityAndEmits(t *testing.T) {
	rec, emitter, committer, renderer := newTestReconciler()

	f, err := rec.Add(feature.Feature{Geometry: triangle(), Style: feature.Style{Fill: "#ff0000", Icon: &feature.Icon{URL: "x"}}})
	require.NoError(t, err)
	require.NotEmpty(t, f.ID)
	require.Equal(t, testSelf.ID, f.Meta.CreatedBy)
	require.False(t, f.Meta.CreatedAt.IsZero())
	require.Nil(t, f.Style.Icon, "icons do not apply to polygons")

	_, drawn := renderer.Drawn(f.ID)
	require.True(t, drawn)
	require.Equal(t, []models.MessageType{models.MessageTypeFeatureAdd}, emitter.Types())
	require.Equal(t, 1, committer.commits)

	decoded, err := feature.Decode(emitter.sent[0].Feature)
	require.NoError(t, err)
	require.Equal(t, f, decoded)
}

func TestReconciler_AddRejectsInvalidGeometry(t *testing.T) {
	rec, emitter, committer, _ := newTestReconciler()

	_, err := rec.Add(feature.Feature{Geometry: feature.LineString(feature.LatLng{})})
	require.ErrorIs(t, err, feature.ErrInvalidGeometry)
	require.Zero(t, rec.Store().Len())
	require.Empty(t, emitter.sent)
	require.Zero(t, committer.commits)
}

func TestReconciler_IdentifierSetMatchesLiveFeatures(t *testing.T) {
	rec, _, _, _ := newTestReconciler()
	rng := rand.New(rand.NewSource(7))
	live := map[string]bool{}

	for i := 0; i < 300; i++ {
		ids := make([]string, 0, len(live))
		for id := range live {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		switch op := rng.Intn(3); {
		case op == 0 || len(ids) == 0:
			f, err := rec.Add(pin(rng.Float64(), rng.Float64()))
			require.NoError(t, err)
			require.False(t, live[f.ID], "ids are never reused")
			live[f.ID] = true
		case op == 1:
			id := ids[rng.Intn(len(ids))]
			f := pin(rng.Float64(), rng.Float64())
			f.ID = id
			_, err := rec.Edit(f)
			require.NoError(t, err)
		default:
			id := ids[rng.Intn(len(ids))]
			removed, err := rec.Remove(id)
			require.NoError(t, err)
			require.True(t, removed)
			delete(live, id)
		}

		got := rec.Store().IDs()
		require.Len(t, got, len(live))
		for _, id := range got {
			require.True(t, live[id], "orphan %s", id)
		}
	}
}

func TestReconciler_EditKeepsIdentityAndCreation(t *testing.T) {
	rec, emitter, committer, _ := newTestReconciler()
	created, err := rec.Add(pin(1, 1))
	require.NoError(t, err)

	rec.now = func() time.Time { return created.Meta.CreatedAt.Add(time.Minute) }
	moved := pin(2, 2)
	moved.ID = created.ID
	moved.Meta.CreatedBy = "someone else"

	got, err := rec.Edit(moved)
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)
	require.Equal(t, created.Meta.CreatedBy, got.Meta.CreatedBy)
	require.Equal(t, created.Meta.CreatedAt, got.Meta.CreatedAt)
	require.Equal(t, created.Meta.CreatedAt.Add(time.Minute), got.Meta.UpdatedAt)
	require.Equal(t, testSelf.ID, got.Meta.UpdatedBy)
	require.Equal(t, 2.0, got.Geometry.Coords[0].Lat)

	require.Equal(t, []models.MessageType{models.MessageTypeFeatureAdd, models.MessageTypeFeatureEdit}, emitter.Types())
	require.Equal(t, 2, committer.commits)
}

func TestReconciler_EditUnknownIDBecomesAdd(t *testing.T) {
	t.Run("local", func(t *testing.T) {
		rec, emitter, _, _ := newTestReconciler()
		f := pin(1, 1)
		f.ID = "never-seen"

		_, err := rec.Edit(f)
		require.NoError(t, err)
		_, ok := rec.Store().Get("never-seen")
		require.True(t, ok)
		require.Equal(t, []models.MessageType{models.MessageTypeFeatureAdd}, emitter.Types())
	})

	t.Run("remote", func(t *testing.T) {
		rec, emitter, committer, _ := newTestReconciler()
		f := pin(1, 1)
		f.ID = "never-seen"

		require.NoError(t, rec.ApplyRemoteEdit(f, "peer"))
		got, ok := rec.Store().Get("never-seen")
		require.True(t, ok)
		require.Equal(t, "peer", got.Meta.CreatedBy)
		require.Empty(t, emitter.sent)
		require.Zero(t, committer.commits)
	})
}

func TestReconciler_RemoteEditIsIdempotent(t *testing.T) {
	rec, _, _, _ := newTestReconciler()
	base, err := rec.Add(feature.Feature{Geometry: triangle()})
	require.NoError(t, err)

	edit := base.Clone()
	edit.Style = feature.Style{Stroke: "#00ff00", Opacity: feature.Opacity(0.3)}
	edit.Meta.UpdatedBy = "peer"
	edit.Meta.UpdatedAt = feature.Stamp(time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC))
	raw, err := feature.Encode(edit)
	require.NoError(t, err)

	apply := func() []feature.Feature {
		f, err := feature.Decode(raw)
		require.NoError(t, err)
		rec.now = func() time.Time { return time.Now().Add(time.Hour) }
		require.NoError(t, rec.ApplyRemoteEdit(f, "peer"))
		return rec.Store().All()
	}

	once := apply()
	twice := apply()
	require.Equal(t, once, twice)
	require.Equal(t, "#00ff00", twice[0].Style.Stroke)
}

func TestReconciler_RemoteEditOverwritesLocal(t *testing.T) {
	rec, _, _, _ := newTestReconciler()
	local, err := rec.Add(feature.Feature{Geometry: triangle(), Text: feature.Text{Label: "mine"}})
	require.NoError(t, err)

	remote := local.Clone()
	remote.Text.Label = "theirs"
	// an older update time does not protect the local copy
	remote.Meta.UpdatedAt = local.Meta.CreatedAt.Add(-time.Hour)
	require.NoError(t, rec.ApplyRemoteEdit(remote, "peer"))

	got, _ := rec.Store().Get(local.ID)
	require.Equal(t, "theirs", got.Text.Label)
	require.Equal(t, "peer", got.Meta.UpdatedBy)
}

func TestReconciler_RemoteOperationsAreNotEchoed(t *testing.T) {
	rec, emitter, committer, renderer := newTestReconciler()

	f := pin(3, 4)
	f.ID = "remote-1"
	require.NoError(t, rec.ApplyRemoteAdd(f, "peer"))
	f.Text.Label = "renamed"
	require.NoError(t, rec.ApplyRemoteEdit(f, "peer"))
	removed, err := rec.ApplyRemoteRemove("remote-1")
	require.NoError(t, err)
	require.True(t, removed)
	removed, err = rec.ApplyRemoteRemove("remote-1")
	require.NoError(t, err)
	require.False(t, removed)

	require.Empty(t, emitter.sent)
	require.Zero(t, committer.commits)
	require.Zero(t, committer.debounced)
	require.Equal(t, []string{"remote-1"}, renderer.erased)
	require.Equal(t, Idle, rec.Mode())
}

func TestReconciler_GuardAlwaysReleases(t *testing.T) {
	rec, emitter, _, _ := newTestReconciler()

	err := rec.ApplyRemote(func() error { panic("renderer exploded") })
	require.ErrorIs(t, err, ErrApplyPanicked)
	require.Equal(t, Idle, rec.Mode())

	err = rec.ApplyRemote(func() error { return fmt.Errorf("boom") })
	require.EqualError(t, err, "boom")
	require.Equal(t, Idle, rec.Mode())

	// the reconciler is not wedged: local work still emits
	_, err = rec.Add(pin(0, 0))
	require.NoError(t, err)
	require.Len(t, emitter.sent, 1)
}

func TestReconciler_ScopesDoNotNest(t *testing.T) {
	rec, _, _, _ := newTestReconciler()

	var inner error
	err := rec.ApplyRemote(func() error {
		require.Equal(t, ApplyingRemote, rec.Mode())
		inner = rec.ApplyRemote(func() error { return nil })
		return nil
	})
	require.NoError(t, err)
	require.ErrorIs(t, inner, ErrBusy)

	err = rec.ApplyRemote(func() error {
		return rec.Restore(nil)
	})
	require.ErrorIs(t, err, ErrBusy)
	require.Equal(t, Idle, rec.Mode())
}

func TestReconciler_EditStyleIsDebounced(t *testing.T) {
	rec, emitter, committer, renderer := newTestReconciler()
	line, err := rec.Add(feature.Feature{Geometry: feature.LineString(feature.LatLng{}, feature.LatLng{Lat: 1})})
	require.NoError(t, err)

	got, err := rec.EditStyle(line.ID, feature.Style{Stroke: "#abcdef", Fill: "#000000", DashArray: "5 5"}, nil)
	require.NoError(t, err)
	require.Equal(t, "#abcdef", got.Style.Stroke)
	require.Empty(t, got.Style.Fill, "fill does not apply to lines")
	require.Equal(t, "5 5", got.Style.DashArray)

	require.Equal(t, 1, committer.commits)
	require.Equal(t, 1, committer.debounced)
	require.Len(t, emitter.sent, 2)

	drawn, _ := renderer.Drawn(line.ID)
	require.Equal(t, "#abcdef", drawn.Style.Stroke)

	_, err = rec.EditStyle("missing", feature.Style{}, nil)
	require.ErrorIs(t, err, ErrFeatureNotFound)
}

func TestReconciler_LocalRemove(t *testing.T) {
	rec, emitter, committer, _ := newTestReconciler()
	f, err := rec.Add(pin(1, 1))
	require.NoError(t, err)

	removed, err := rec.Remove(f.ID)
	require.NoError(t, err)
	require.True(t, removed)
	require.Equal(t, 2, committer.commits)

	removed, err = rec.Remove(f.ID)
	require.NoError(t, err)
	require.False(t, removed)
	require.Equal(t, 2, committer.commits, "nothing changed, nothing to commit")
	require.Equal(t, models.MessageTypeFeatureRemove, emitter.sent[len(emitter.sent)-1].Type)
	require.Equal(t, f.ID, emitter.sent[len(emitter.sent)-1].ID)
}

func TestReconciler_RestoreIsSilentAndAtomic(t *testing.T) {
	rec, emitter, committer, renderer := newTestReconciler()
	keep, err := rec.Add(pin(1, 1))
	require.NoError(t, err)
	sentBefore, commitsBefore := len(emitter.sent), committer.commits

	replacement := pin(5, 5)
	replacement.ID = "restored"
	require.NoError(t, rec.Restore([]feature.Feature{replacement}))
	require.Equal(t, []string{"restored"}, rec.Store().IDs())
	_, stillDrawn := renderer.Drawn(keep.ID)
	require.False(t, stillDrawn)

	broken := feature.Feature{ID: "broken", Geometry: feature.Geometry{Kind: feature.KindPolygon}}
	err = rec.Restore([]feature.Feature{pin(9, 9), broken})
	require.Error(t, err)
	require.Equal(t, []string{"restored"}, rec.Store().IDs(), "failed restore rolls back")

	require.Len(t, emitter.sent, sentBefore)
	require.Equal(t, commitsBefore, committer.commits)
	require.Equal(t, Idle, rec.Mode())
}

func TestReconciler_FillsEachMissingCreationField(t *testing.T) {
	rec, _, _, _ := newTestReconciler()
	stamped := feature.Stamp(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	f, err := rec.Add(feature.Feature{Geometry: triangle(), Meta: feature.Meta{CreatedAt: stamped}})
	require.NoError(t, err)
	require.Equal(t, testSelf.ID, f.Meta.CreatedBy)
	require.Equal(t, stamped, f.Meta.CreatedAt)

	g, err := rec.Add(feature.Feature{Geometry: triangle(), Meta: feature.Meta{CreatedBy: "someone"}})
	require.NoError(t, err)
	require.Equal(t, "someone", g.Meta.CreatedBy)
	require.False(t, g.Meta.CreatedAt.IsZero())
}
