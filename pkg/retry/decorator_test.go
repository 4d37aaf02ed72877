package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errTransient = errors.New("transient")

func fastPolicy(retries int) Policy {
	return Policy{
		MaxRetries:    retries,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		Multiplier:    2,
		RetryableFunc: func(err error) bool { return errors.Is(err, errTransient) },
	}
}

func TestRetrier_Do(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		r := NewRetrier(fastPolicy(3), zap.NewNop())
		err := r.Do(context.Background(), func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errTransient
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		permanent := errors.New("permanent")
		r := NewRetrier(fastPolicy(3), zap.NewNop())
		err := r.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return permanent
		})
		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("wraps last error when retries run out", func(t *testing.T) {
		r := NewRetrier(fastPolicy(2), zap.NewNop())
		err := r.Do(context.Background(), func(ctx context.Context) error {
			return errTransient
		})
		assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
		assert.ErrorIs(t, err, errTransient)
	})

	t.Run("honours cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		r := NewRetrier(fastPolicy(2), zap.NewNop())
		err := r.Do(ctx, func(ctx context.Context) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDoWithResult(t *testing.T) {
	r := NewRetrier(fastPolicy(1), zap.NewNop())
	attempts := 0
	v, err := DoWithResult(context.Background(), r, func(ctx context.Context) (int, error) {
		attempts++
		if attempts == 1 {
			return 0, errTransient
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestBackoff_Calculate(t *testing.T) {
	b := NewBackoff(Policy{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2})
	assert.Equal(t, time.Second, b.Calculate(1))
	assert.Equal(t, 2*time.Second, b.Calculate(2))
	assert.Equal(t, 4*time.Second, b.Calculate(3))
	assert.Equal(t, 5*time.Second, b.Calculate(4))
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.Error(t, Policy{MaxRetries: -1}.Validate())
	assert.Error(t, Policy{InitialDelay: time.Second, MaxDelay: time.Millisecond, Multiplier: 1}.Validate())
	assert.Panics(t, func() { NewRetrier(Policy{MaxRetries: -1}, nil) })
}
