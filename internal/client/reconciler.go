package client

import (
	"errors"
	"fmt"
	"time"

	"mapsketch/internal/feature"
	"mapsketch/internal/logging"
	"mapsketch/internal/models"

	"github.com/google/uuid"
)

/*
LEARNING: ECHO SUPPRESSION

Every mutation goes through the same Add/Edit/Remove path whether it was made
locally, received from a peer, or replayed from history. What differs is the
mode the reconciler is in while it runs:

	Idle            -> store + render + emit + commit
	ApplyingRemote  -> store + render
	Restoring       -> store + render

Remote and restore work is scoped with guard.run, which always puts the mode
back to Idle, even when the apply panics.
*/

// ErrFeatureNotFound is returned when a style edit targets an id not in the store
var ErrFeatureNotFound = errors.New("feature not found")

// Emitter sends one outbound message. Room and user are stamped by the transport.
type Emitter interface {
	Send(env models.Envelope) error
}

// Committer records history checkpoints
type Committer interface {
	Commit()
	CommitDebounced()
}

type nopEmitter struct{}

func (nopEmitter) Send(models.Envelope) error { return nil }

type nopCommitter struct{}

func (nopCommitter) Commit()          {}
func (nopCommitter) CommitDebounced() {}

// Reconciler applies feature operations to the store
type Reconciler struct {
	store    Store
	renderer Renderer
	emitter  Emitter
	history  Committer
	self     func() Participant
	now      func() time.Time
	guard    guard
}

// NewReconciler creates a reconciler with no emitter or history attached
func NewReconciler(store Store, renderer Renderer, self func() Participant) *Reconciler {
	if renderer == nil {
		renderer = NopRenderer{}
	}
	return &Reconciler{
		store:    store,
		renderer: renderer,
		emitter:  nopEmitter{},
		history:  nopCommitter{},
		self:     self,
		now:      time.Now,
	}
}

// Attach wires the outbound and history collaborators
func (r *Reconciler) Attach(emitter Emitter, history Committer) {
	if emitter != nil {
		r.emitter = emitter
	}
	if history != nil {
		r.history = history
	}
}

func (r *Reconciler) Mode() Mode {
	return r.guard.Mode()
}

func (r *Reconciler) Store() Store {
	return r.store
}

// Add inserts a locally created feature, assigning an id if it has none
func (r *Reconciler) Add(f feature.Feature) (feature.Feature, error) {
	return r.add(f, r.self().ID)
}

// Edit overwrites a feature; an unknown id is treated as Add
func (r *Reconciler) Edit(f feature.Feature) (feature.Feature, error) {
	return r.edit(f, r.self().ID, false)
}

// EditStyle changes only style and text. The history commit is debounced.
func (r *Reconciler) EditStyle(id string, style feature.Style, text *feature.Text) (feature.Feature, error) {
	existing, ok := r.store.Get(id)
	if !ok {
		return feature.Feature{}, fmt.Errorf("%w: %s", ErrFeatureNotFound, id)
	}
	existing.Style = style
	if text != nil {
		existing.Text = *text
	}
	return r.edit(existing, r.self().ID, true)
}

// Remove deletes a feature by id. Unknown ids change nothing locally but the
// removal is still sent so peers holding a stale copy converge.
func (r *Reconciler) Remove(id string) (bool, error) {
	return r.remove(id)
}

// ApplyRemoteAdd applies a peer's feature:add without echoing it
func (r *Reconciler) ApplyRemoteAdd(f feature.Feature, sender string) error {
	return r.guard.run(ApplyingRemote, func() error {
		_, err := r.add(f, sender)
		return err
	})
}

// ApplyRemoteEdit applies a peer's feature:edit without echoing it
func (r *Reconciler) ApplyRemoteEdit(f feature.Feature, sender string) error {
	return r.guard.run(ApplyingRemote, func() error {
		_, err := r.edit(f, sender, false)
		return err
	})
}

// ApplyRemoteRemove applies a peer's feature:remove without echoing it
func (r *Reconciler) ApplyRemoteRemove(id string) (removed bool, err error) {
	err = r.guard.run(ApplyingRemote, func() error {
		removed, err = r.remove(id)
		return err
	})
	return removed, err
}

// ApplyRemote runs fn in ApplyingRemote mode
func (r *Reconciler) ApplyRemote(fn func() error) error {
	return r.guard.run(ApplyingRemote, fn)
}

// Restore replaces the whole store with features in Restoring mode. If the
// replay fails, the previous contents are put back.
func (r *Reconciler) Restore(features []feature.Feature) error {
	if r.guard.Mode() != Idle {
		return fmt.Errorf("%w: cannot restore while %s", ErrBusy, r.guard.Mode())
	}
	before := r.store.All()

	err := r.guard.run(Restoring, func() error {
		r.clear()
		for _, f := range features {
			if _, err := r.add(f, f.Meta.CreatedBy); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.clear()
		for _, f := range before {
			r.store.Put(f)
			r.renderer.Draw(f)
		}
		return fmt.Errorf("restore failed: %w", err)
	}
	return nil
}

func (r *Reconciler) add(f feature.Feature, author string) (feature.Feature, error) {
	if err := f.Geometry.Validate(); err != nil {
		return feature.Feature{}, err
	}

	f = f.Clone()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Meta.CreatedAt.IsZero() {
		f.Meta.CreatedAt = feature.Stamp(r.now())
	}
	if f.Meta.CreatedBy == "" {
		f.Meta.CreatedBy = author
	}
	f.Style = f.Style.For(f.Geometry.Kind)

	r.store.Put(f)
	r.renderer.Draw(f)

	if r.guard.Mode() == Idle {
		if err := r.emit(models.MessageTypeFeatureAdd, f); err != nil {
			return f, err
		}
		r.history.Commit()
	}
	return f, nil
}

func (r *Reconciler) edit(f feature.Feature, author string, debounce bool) (feature.Feature, error) {
	existing, ok := r.store.Get(f.ID)
	if f.ID == "" || !ok {
		return r.add(f, author)
	}
	if err := f.Geometry.Validate(); err != nil {
		return feature.Feature{}, err
	}

	updated := existing
	updated.Geometry = f.Clone().Geometry
	updated.Style = f.Style.For(f.Geometry.Kind)
	updated.Text = f.Text
	updated.Meta.UpdatedBy = author
	updated.Meta.UpdatedAt = feature.Stamp(r.now())
	// A peer's own update time is kept so re-applying the same message is a no-op
	if r.guard.Mode() == ApplyingRemote && !f.Meta.UpdatedAt.IsZero() {
		updated.Meta.UpdatedAt = f.Meta.UpdatedAt
	}

	r.store.Put(updated)
	r.renderer.Draw(updated)

	if r.guard.Mode() == Idle {
		if err := r.emit(models.MessageTypeFeatureEdit, updated); err != nil {
			return updated, err
		}
		if debounce {
			r.history.CommitDebounced()
		} else {
			r.history.Commit()
		}
	}
	return updated, nil
}

func (r *Reconciler) remove(id string) (bool, error) {
	removed := r.store.Delete(id)
	if removed {
		r.renderer.Erase(id)
	}

	if r.guard.Mode() == Idle {
		if err := r.emitter.Send(models.Envelope{Type: models.MessageTypeFeatureRemove, ID: id}); err != nil {
			return removed, fmt.Errorf("failed to send removal of %s: %w", id, err)
		}
		if removed {
			r.history.Commit()
		}
	}
	return removed, nil
}

func (r *Reconciler) emit(t models.MessageType, f feature.Feature) error {
	raw, err := feature.Encode(f)
	if err != nil {
		return err
	}
	if err := r.emitter.Send(models.Envelope{Type: t, Feature: raw}); err != nil {
		return fmt.Errorf("failed to send %s for %s: %w", t, f.ID, err)
	}
	return nil
}

// clear empties the store and erases every drawn feature
func (r *Reconciler) clear() {
	for _, id := range r.store.IDs() {
		r.renderer.Erase(id)
	}
	r.store.Clear()
	logging.Debug().Msg("feature store cleared")
}
