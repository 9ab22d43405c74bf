package client

import (
	"errors"
	"sync"
)

// ErrLoopStopped is returned for work submitted after Stop
var ErrLoopStopped = errors.New("event loop stopped")

// Loop runs posted funcs one at a time, in order, on a single goroutine.
// All client state is owned by that goroutine.
type Loop struct {
	tasks    chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewLoop starts the loop goroutine
func NewLoop(buffer int) *Loop {
	l := &Loop{
		tasks: make(chan func(), buffer),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-l.quit:
			return
		}
	}
}

// Post queues fn. It blocks while the queue is full and reports false once
// the loop has stopped. Never call Do from inside a posted func.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.quit:
		return false
	}
}

// Do runs fn on the loop and waits for its result
func (l *Loop) Do(fn func() error) error {
	errc := make(chan error, 1)
	if !l.Post(func() { errc <- fn() }) {
		return ErrLoopStopped
	}
	select {
	case err := <-errc:
		return err
	case <-l.done:
		// fn may have finished just before the loop exited
		select {
		case err := <-errc:
			return err
		default:
			return ErrLoopStopped
		}
	}
}

// Stop ends the loop after the func currently running, if any
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.quit) })
	<-l.done
}

// call runs fn on the loop and returns its value
func call[T any](l *Loop, fn func() (T, error)) (T, error) {
	var out T
	err := l.Do(func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}
