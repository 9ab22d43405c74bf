package client

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"mapsketch/internal/feature"
	"mapsketch/internal/logging"
)

const (
	DefaultHistoryCapacity = 50
	DefaultCommitDelay     = 300 * time.Millisecond
)

// ErrCorruptSnapshot is returned when a stored snapshot cannot be decoded
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

// History keeps undo and redo stacks of whole-store snapshots
type History struct {
	rec      *Reconciler
	capacity int
	delay    time.Duration
	post     func(func()) bool

	undo [][]byte
	redo [][]byte

	timer      *time.Timer
	generation uint64
	pending    bool
}

// HistoryOption configures a History
type HistoryOption func(*History)

// WithCapacity bounds the undo stack; the oldest snapshot is evicted first
func WithCapacity(n int) HistoryOption {
	return func(h *History) {
		if n >= 2 {
			h.capacity = n
		}
	}
}

// WithCommitDelay sets the quiet period before a debounced commit lands
func WithCommitDelay(d time.Duration) HistoryOption {
	return func(h *History) { h.delay = d }
}

// WithScheduler routes debounce timer expiry onto the event loop
func WithScheduler(post func(func()) bool) HistoryOption {
	return func(h *History) { h.post = post }
}

// NewHistory creates a history bound to the reconciler's store and registers
// itself as the reconciler's committer
func NewHistory(rec *Reconciler, opts ...HistoryOption) *History {
	h := &History{
		rec:      rec,
		capacity: DefaultHistoryCapacity,
		delay:    DefaultCommitDelay,
		post:     func(fn func()) bool { fn(); return true },
	}
	for _, opt := range opts {
		opt(h)
	}
	rec.history = h
	return h
}

// Commit snapshots the store. It is a no-op while a remote apply or a
// restore is in progress, and when the store matches the newest snapshot.
func (h *History) Commit() {
	if h.rec.Mode() != Idle {
		return
	}
	h.cancelPending()

	snap, err := feature.EncodeAll(h.rec.store.All())
	if err != nil {
		logging.Error().Err(err).Msg("❌ Failed to snapshot feature store")
		return
	}

	// an unchanged store adds nothing to undo
	if n := len(h.undo); n > 0 && bytes.Equal(h.undo[n-1], snap) {
		return
	}

	h.undo = append(h.undo, snap)
	if len(h.undo) > h.capacity {
		h.undo = h.undo[len(h.undo)-h.capacity:]
	}
	h.redo = nil
}

// CommitDebounced coalesces rapid changes into one commit after a quiet period
func (h *History) CommitDebounced() {
	if h.rec.Mode() != Idle {
		return
	}
	if h.timer != nil {
		h.timer.Stop()
	}
	h.generation++
	h.pending = true

	gen := h.generation
	h.timer = time.AfterFunc(h.delay, func() {
		h.post(func() {
			if h.pending && h.generation == gen {
				h.Commit()
			}
		})
	})
}

// Flush lands a pending debounced commit immediately
func (h *History) Flush() {
	if h.pending {
		h.Commit()
	}
}

func (h *History) cancelPending() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.pending = false
}

func (h *History) CanUndo() bool {
	return len(h.undo) >= 2
}

func (h *History) CanRedo() bool {
	return len(h.redo) > 0
}

// Depth reports the sizes of the undo and redo stacks
func (h *History) Depth() (undo, redo int) {
	return len(h.undo), len(h.redo)
}

// Undo restores the previous snapshot. The first snapshot is the floor.
func (h *History) Undo() (bool, error) {
	h.Flush()
	if !h.CanUndo() {
		return false, nil
	}

	top := h.undo[len(h.undo)-1]
	target := h.undo[len(h.undo)-2]
	if err := h.restore(target); err != nil {
		return false, err
	}

	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, top)
	return true, nil
}

// Redo re-applies the most recently undone snapshot
func (h *History) Redo() (bool, error) {
	h.Flush()
	if !h.CanRedo() {
		return false, nil
	}

	snap := h.redo[len(h.redo)-1]
	if err := h.restore(snap); err != nil {
		return false, err
	}

	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, snap)
	return true, nil
}

// restore decodes first so a corrupt snapshot never touches the store
func (h *History) restore(snap []byte) error {
	features, err := feature.DecodeAll(snap)
	if err != nil {
		logging.Warn().Err(err).Msg("⚠️ Snapshot could not be decoded, store left unchanged")
		return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return h.rec.Restore(features)
}
