package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func countingFetch(calls *int64, release <-chan struct{}) FetchFunc[string, int] {
	return func(ctx context.Context, key string) (int, error) {
		n := atomic.AddInt64(calls, 1)
		if release != nil {
			<-release
		}
		return int(n) * 10, nil
	}
}

func TestCachedValue_ConcurrentGetsShareOneFetch(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 64).Draw(rt, "callers")

		var calls int64
		release := make(chan struct{})
		cv := New("balances", Perpetual(), countingFetch(&calls, release), zap.NewNop())

		results := make([]int, n)
		var started, done sync.WaitGroup
		started.Add(n)
		done.Add(n)
		for i := 0; i < n; i++ {
			go func(i int) {
				defer done.Done()
				started.Done()
				v, err := cv.Get(context.Background(), "eth:0xabc")
				if err == nil {
					results[i] = v
				}
			}(i)
		}
		started.Wait()
		time.Sleep(10 * time.Millisecond)
		close(release)
		done.Wait()

		if got := atomic.LoadInt64(&calls); got != 1 {
			rt.Fatalf("expected exactly one fetch, got %d", got)
		}
		for i, v := range results {
			if v != 10 {
				rt.Fatalf("caller %d got %d", i, v)
			}
		}
	})
}

func TestCachedValue_PeriodicExpiresWithClock(t *testing.T) {
	clk := clock.NewTestClock(testNow)
	var calls int64
	cv := New("nonce", Periodic(30*time.Second), countingFetch(&calls, nil), zap.NewNop(),
		WithClock[string, int](clk))

	ctx := context.Background()
	v, err := cv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	clk.SetTime(testNow.Add(29 * time.Second))
	v, err = cv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	clk.SetTime(testNow.Add(31 * time.Second))
	v, err = cv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 20, v)
	assert.EqualValues(t, 2, atomic.LoadInt64(&calls))
}

func TestCachedValue_FailureDoesNotPoison(t *testing.T) {
	var calls int64
	cv := New("flaky", Perpetual(), func(ctx context.Context, key string) (int, error) {
		if atomic.AddInt64(&calls, 1) == 1 {
			return 0, errors.New("upstream down")
		}
		return 7, nil
	}, zap.NewNop())

	_, err := cv.Get(context.Background(), "k")
	require.Error(t, err)

	v, err := cv.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestCachedValue_InvalidateDuringFetchKeepsWaitersButDropsResult(t *testing.T) {
	var calls int64
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	cv := New("utxo", Perpetual(), func(ctx context.Context, key string) (int, error) {
		n := atomic.AddInt64(&calls, 1)
		if n == 1 {
			entered <- struct{}{}
			<-release
		}
		return int(n), nil
	}, zap.NewNop())

	ctx := context.Background()
	resCh := make(chan int, 1)
	go func() {
		v, err := cv.Get(ctx, "k")
		assert.NoError(t, err)
		resCh <- v
	}()

	<-entered
	cv.Invalidate(ctx, "k")
	close(release)

	assert.Equal(t, 1, <-resCh)

	v, err := cv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 2, v, "result invalidated in flight must not be stored")
}

func TestCachedValue_CallerCancellationDoesNotCancelFetch(t *testing.T) {
	var calls int64
	release := make(chan struct{})
	cv := New("fees", Perpetual(), countingFetch(&calls, release), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := cv.Get(ctx, "k")
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		v, err := cv.Get(context.Background(), "k")
		return err == nil && v == 10
	}, time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls))
}

func TestCachedValue_OnSubscriptionRefetchesAfterIdle(t *testing.T) {
	var calls int64
	cv := New("tiers", OnSubscription(), countingFetch(&calls, nil), zap.NewNop())
	ctx := context.Background()

	v, sub, err := cv.Subscribe(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	v, sub2, err := cv.Subscribe(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, 10, v, "second subscriber shares the value")

	sub.Release()
	sub2.Release()
	sub2.Release()

	v, sub3, err := cv.Subscribe(ctx, "user")
	require.NoError(t, err)
	defer sub3.Release()
	assert.Equal(t, 20, v)
}

func TestRegistry_LoginLogoutFlushesValues(t *testing.T) {
	reg := NewRegistry(RegistryOptions{Logger: zap.NewNop()})
	var calls int64
	cv := Register(reg, "kyc_tiers", OnLoginLogout(), countingFetch(&calls, nil))
	ctx := context.Background()

	_, err := cv.Get(ctx, "user")
	require.NoError(t, err)
	_, err = cv.Get(ctx, "user")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls))

	reg.Events().Publish(AuthEvent{Kind: AuthEventLogout, UserID: "u1"})

	v, err := cv.Get(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, 20, v)
	assert.Equal(t, []string{"kyc_tiers"}, reg.Names())
}

func TestRegistry_InvalidateAll(t *testing.T) {
	reg := NewRegistry(RegistryOptions{})
	var a, b int64
	cvA := Register(reg, "a", Perpetual(), countingFetch(&a, nil))
	cvB := Register(reg, "b", Periodic(time.Hour), countingFetch(&b, nil))
	ctx := context.Background()

	_, _ = cvA.Get(ctx, "k")
	_, _ = cvB.Get(ctx, "k")
	require.NoError(t, reg.InvalidateAll(ctx))
	_, _ = cvA.Get(ctx, "k")
	_, _ = cvB.Get(ctx, "k")

	assert.EqualValues(t, 2, atomic.LoadInt64(&a))
	assert.EqualValues(t, 2, atomic.LoadInt64(&b))
}

func TestCachedValue_ValidityAndInvalidateIf(t *testing.T) {
	clk := clock.NewTestClock(testNow)
	var calls int64
	cv := New("session", Perpetual(), countingFetch(&calls, nil), zap.NewNop(),
		WithClock[string, int](clk),
		WithValidity[string, int](func(v int, now time.Time) bool {
			return now.Before(testNow.Add(time.Minute))
		}))

	ctx := context.Background()
	v, err := cv.Get(ctx, "guid")
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	assert.False(t, cv.InvalidateIf(ctx, "guid", func(v int) bool { return v == 99 }))
	v, _ = cv.Get(ctx, "guid")
	assert.Equal(t, 10, v, "a non matching value stays cached")

	assert.True(t, cv.InvalidateIf(ctx, "guid", func(v int) bool { return v == 10 }))
	v, _ = cv.Get(ctx, "guid")
	assert.Equal(t, 20, v)

	clk.SetTime(testNow.Add(2 * time.Minute))
	v, _ = cv.Get(ctx, "guid")
	assert.Equal(t, 30, v, "invalid values are refetched")
}
