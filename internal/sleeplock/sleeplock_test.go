package sleeplock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLock_OwnerTracking(t *testing.T) {
	l := New("buffer")
	ctx := context.Background()

	assert.Equal(t, "buffer", l.Name())
	assert.False(t, l.Locked())

	require.NoError(t, l.Acquire(ctx, 7))
	assert.True(t, l.Locked())
	assert.True(t, l.HeldBy(7))
	assert.False(t, l.HeldBy(8))

	assert.ErrorIs(t, l.Release(8), ErrNotHeld)
	require.NoError(t, l.Release(7))
	assert.ErrorIs(t, l.Release(7), ErrNotHeld, "double release")
	assert.False(t, l.Locked())
}

func TestLock_ZeroToken(t *testing.T) {
	l := New("buffer")

	assert.ErrorIs(t, l.Acquire(context.Background(), 0), ErrZeroToken)
	assert.False(t, l.TryAcquire(0))
	assert.False(t, l.HeldBy(0))
	assert.ErrorIs(t, l.Release(0), ErrNotHeld)
}

func TestLock_TryAcquire(t *testing.T) {
	l := New("buffer")

	require.True(t, l.TryAcquire(1))
	assert.False(t, l.TryAcquire(2))
	require.NoError(t, l.Release(1))
	assert.True(t, l.TryAcquire(2))
}

func TestLock_BlocksUntilRelease(t *testing.T) {
	l := New("buffer")
	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, 1))

	acquired := make(chan struct{})
	go func() {
		_ = l.Acquire(ctx, 2)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire did not block")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, l.Release(1))

	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("second acquire never woke up")
	}
	assert.True(t, l.HeldBy(2))
}

func TestLock_AcquireCanceled(t *testing.T) {
	l := New("buffer")
	require.NoError(t, l.Acquire(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx, 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, l.HeldBy(1))
}

func TestLock_MutualExclusion(t *testing.T) {
	l := New("buffer")
	ctx := context.Background()

	var inside atomic.Int32
	var wg sync.WaitGroup

	for w := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token := uint64(w + 1)
			for range 200 {
				if err := l.Acquire(ctx, token); err != nil {
					t.Error(err)
					return
				}
				if n := inside.Add(1); n != 1 {
					t.Errorf("%d holders inside", n)
				}
				inside.Add(-1)
				if err := l.Release(token); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
