package client

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoop_RunsInOrder(t *testing.T) {
	loop := NewLoop(4)
	defer loop.Stop()

	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 100; i++ {
		n := i
		require.True(t, loop.Post(func() {
			mu.Lock()
			got = append(got, n)
			mu.Unlock()
		}))
	}
	require.NoError(t, loop.Do(func() error { return nil }))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, n := range got {
		require.Equal(t, i, n)
	}
}

func TestLoop_DoReturnsResult(t *testing.T) {
	loop := NewLoop(1)
	defer loop.Stop()

	boom := errors.New("boom")
	require.ErrorIs(t, loop.Do(func() error { return boom }), boom)

	n, err := call(loop, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	require.Equal(t, 42, n)
}

func TestLoop_StopRejectsWork(t *testing.T) {
	loop := NewLoop(1)
	loop.Stop()
	loop.Stop()

	require.False(t, loop.Post(func() {}))
	require.ErrorIs(t, loop.Do(func() error { return nil }), ErrLoopStopped)
}
