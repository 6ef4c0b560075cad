package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsImpossibleConfig(t *testing.T) {
	t.Parallel()
	_, err := New(Config{MaxConcurrent: 0})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{MaxConcurrent: -3})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAcquire_BoundsConcurrency(t *testing.T) {
	t.Parallel()
	l, err := New(Config{MaxConcurrent: 1})
	require.NoError(t, err)

	ctx := context.Background()
	first, err := l.Acquire(ctx, "https://www.rp.pl/a")
	require.NoError(t, err)

	// Second acquire must block until the first permit is released.
	acquired := make(chan struct{})
	go func() {
		p, aErr := l.Acquire(ctx, "https://www.rp.pl/b")
		assert.NoError(t, aErr)
		p.Release()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while first permit was held")
	case <-time.After(50 * time.Millisecond):
	}

	first.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never succeeded after release")
	}
}

func TestAcquire_PerHostRate(t *testing.T) {
	t.Parallel()
	// 10 rps with burst 1: the second request on the same host waits ~100ms.
	l, err := New(Config{MaxConcurrent: 4, PerHostRPS: 10, PerHostBurst: 1})
	require.NoError(t, err)

	ctx := context.Background()
	p1, err := l.Acquire(ctx, "https://www.rp.pl/a")
	require.NoError(t, err)
	p1.Release()

	start := time.Now()
	p2, err := l.Acquire(ctx, "https://www.rp.pl/b")
	require.NoError(t, err)
	p2.Release()
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	// A different host has its own bucket and is not delayed.
	start = time.Now()
	p3, err := l.Acquire(ctx, "https://other.example.com/x")
	require.NoError(t, err)
	p3.Release()
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestAcquire_ContextCanceled(t *testing.T) {
	t.Parallel()
	l, err := New(Config{MaxConcurrent: 1})
	require.NoError(t, err)

	held, err := l.Acquire(context.Background(), "https://www.rp.pl/a")
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "https://www.rp.pl/b")
	require.Error(t, err)
}

func TestPermit_ReleaseIsIdempotent(t *testing.T) {
	t.Parallel()
	l, err := New(Config{MaxConcurrent: 1})
	require.NoError(t, err)

	p, err := l.Acquire(context.Background(), "https://www.rp.pl/a")
	require.NoError(t, err)
	p.Release()
	p.Release() // must not free a second slot

	q, err := l.Acquire(context.Background(), "https://www.rp.pl/b")
	require.NoError(t, err)
	q.Release()
}
