package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()
	calls := 0
	err := Do(context.Background(), fastPolicy(5), nil, func(context.Context) error {
		calls++
		if calls < 4 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
}

func TestDo_ExhaustsCeiling(t *testing.T) {
	t.Parallel()
	calls := 0
	wantErr := errors.New("still broken")
	err := Do(context.Background(), fastPolicy(5), nil, func(context.Context) error {
		calls++
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 5, calls)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	t.Parallel()
	permanent := errors.New("rejected as malformed")
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(err error) bool {
		return !errors.Is(err, permanent)
	}, func(context.Context) error {
		calls++
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_StopsOnContextCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}, nil,
		func(context.Context) error {
			calls++
			cancel()
			return errors.New("transient")
		})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

type pausedError struct {
	pause time.Duration
}

func (e *pausedError) Error() string                  { return "slow down" }
func (e *pausedError) RetryAfterDelay() time.Duration { return e.pause }

func TestDo_HonorsRequestedPause(t *testing.T) {
	t.Parallel()
	const pause = 60 * time.Millisecond
	calls := 0
	start := time.Now()
	err := Do(context.Background(), fastPolicy(3), nil, func(context.Context) error {
		calls++
		if calls == 1 {
			return &pausedError{pause: pause}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.GreaterOrEqual(t, time.Since(start), pause)
}

func TestDo_RequestedPauseShorterThanBackoff(t *testing.T) {
	t.Parallel()
	p := Policy{MaxAttempts: 2, BaseDelay: 30 * time.Millisecond, MaxDelay: 30 * time.Millisecond}
	start := time.Now()
	calls := 0
	err := Do(context.Background(), p, nil, func(context.Context) error {
		calls++
		if calls == 1 {
			return &pausedError{pause: time.Millisecond}
		}
		return nil
	})
	require.NoError(t, err)
	// The policy's own backoff still applies when the requested pause is
	// shorter: at least half the capped delay.
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestDo_RejectsInvalidPolicy(t *testing.T) {
	t.Parallel()
	err := Do(context.Background(), Policy{MaxAttempts: 0}, nil, func(context.Context) error { return nil })
	require.Error(t, err)
}

func TestBackoff_BoundedByMaxDelay(t *testing.T) {
	t.Parallel()
	p := Policy{MaxAttempts: 10, BaseDelay: 10 * time.Millisecond, MaxDelay: 80 * time.Millisecond}
	for attempt := 0; attempt < 10; attempt++ {
		d := p.Backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, p.MaxDelay)
	}
}
