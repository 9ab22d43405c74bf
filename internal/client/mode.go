package client

import (
	"errors"
	"fmt"
)

// Mode is the reconciler's re-entrancy state
type Mode int

const (
	// Idle: local mutations emit messages and commit history
	Idle Mode = iota
	// ApplyingRemote: a remote message is being applied; no emit, no commit
	ApplyingRemote
	// Restoring: history is replaying a snapshot; no emit, no commit
	Restoring
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case ApplyingRemote:
		return "applying-remote"
	case Restoring:
		return "restoring"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

var (
	// ErrBusy is returned when a scoped mode is entered while another is active
	ErrBusy = errors.New("reconciler busy")
	// ErrApplyPanicked wraps a panic recovered inside a scoped mode
	ErrApplyPanicked = errors.New("apply panicked")
)

// guard holds the current mode. Scopes do not nest, and the mode is reset to
// Idle on every exit path, including panics.
type guard struct {
	mode Mode
}

func (g *guard) Mode() Mode {
	return g.mode
}

func (g *guard) run(m Mode, fn func() error) (err error) {
	if g.mode != Idle {
		return fmt.Errorf("%w: cannot enter %s while %s", ErrBusy, m, g.mode)
	}
	g.mode = m
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrApplyPanicked, p)
		}
		g.mode = Idle
	}()
	return fn()
}
