package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rail-service/txengine/pkg/metrics"
)

// FetchFunc loads the value for key from its source
type FetchFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// CachedValue is a keyed cache with at most one outstanding fetch per key.
//
// Invalidate removes the stored value without cancelling a fetch already in
// flight: that fetch still answers its waiters but its result is dropped, which
// is tracked through a per key generation counter.
type CachedValue[K comparable, V any] struct {
	name    string
	policy  Policy
	store   Store[V]
	fetch   FetchFunc[K, V]
	clock   clock.Clock
	logger  *zap.Logger
	keyFunc func(K) string
	valid   func(V, time.Time) bool

	group singleflight.Group

	mu          sync.Mutex
	generations map[string]uint64
	subscribers map[string]int
}

// Option customises a CachedValue
type Option[K comparable, V any] func(*CachedValue[K, V])

// WithKeyFunc sets how keys are turned into store keys
func WithKeyFunc[K comparable, V any](fn func(K) string) Option[K, V] {
	return func(c *CachedValue[K, V]) { c.keyFunc = fn }
}

// WithValidity adds a value-level freshness check on top of the policy, such as a
// token expiry. Values failing it are refetched like a miss.
func WithValidity[K comparable, V any](fn func(v V, now time.Time) bool) Option[K, V] {
	return func(c *CachedValue[K, V]) { c.valid = fn }
}

func WithClock[K comparable, V any](clk clock.Clock) Option[K, V] {
	return func(c *CachedValue[K, V]) { c.clock = clk }
}

func WithStore[K comparable, V any](store Store[V]) Option[K, V] {
	return func(c *CachedValue[K, V]) { c.store = store }
}

// New builds a cached value backed by an in-memory store unless WithStore is given
func New[K comparable, V any](name string, policy Policy, fetch FetchFunc[K, V], logger *zap.Logger, opts ...Option[K, V]) *CachedValue[K, V] {
	c := &CachedValue[K, V]{
		name:        name,
		policy:      policy,
		fetch:       fetch,
		clock:       clock.NewDefaultClock(),
		logger:      logger.With(zap.String("cache", name)),
		keyFunc:     func(k K) string { return fmt.Sprintf("%v", k) },
		generations: make(map[string]uint64),
		subscribers: make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = NewMemoryStore[V]()
	}
	return c
}

func (c *CachedValue[K, V]) Name() string   { return c.name }
func (c *CachedValue[K, V]) Policy() Policy { return c.policy }

// Get returns the stored value if it is fresh, otherwise fetches it once for all
// concurrent callers of the same key
func (c *CachedValue[K, V]) Get(ctx context.Context, key K) (V, error) {
	k := c.keyFunc(key)
	if v, ok := c.lookup(ctx, k); ok {
		metrics.CacheFetches.WithLabelValues(c.name, "hit").Inc()
		return v, nil
	}
	return c.load(ctx, key, k)
}

// GetForced drops the stored value and fetches
func (c *CachedValue[K, V]) GetForced(ctx context.Context, key K) (V, error) {
	k := c.keyFunc(key)
	c.invalidate(ctx, k)
	return c.load(ctx, key, k)
}

// Invalidate clears the stored value for key
func (c *CachedValue[K, V]) Invalidate(ctx context.Context, key K) {
	c.invalidate(ctx, c.keyFunc(key))
}

// InvalidateIf clears the stored value for key only when match accepts it, so a
// caller holding a rejected value does not discard a newer one. It reports whether
// the value was cleared.
func (c *CachedValue[K, V]) InvalidateIf(ctx context.Context, key K, match func(V) bool) bool {
	k := c.keyFunc(key)
	entry, ok, err := c.store.Get(ctx, k)
	if err != nil || !ok || !match(entry.Value) {
		return false
	}
	c.invalidate(ctx, k)
	return true
}

// InvalidateAll clears every stored value
func (c *CachedValue[K, V]) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	c.generations[""]++
	c.mu.Unlock()
	return c.store.Flush(ctx)
}

// Subscription is released when its holder no longer needs the value
type Subscription struct {
	once    sync.Once
	release func()
}

func (s *Subscription) Release() {
	s.once.Do(s.release)
}

// Subscribe returns the value and keeps it cached while the subscription is held.
// The first subscriber of an idle key always fetches.
func (c *CachedValue[K, V]) Subscribe(ctx context.Context, key K) (V, *Subscription, error) {
	k := c.keyFunc(key)

	c.mu.Lock()
	first := c.subscribers[k] == 0
	c.subscribers[k]++
	c.mu.Unlock()

	sub := &Subscription{release: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.subscribers[k]--; c.subscribers[k] <= 0 {
			delete(c.subscribers, k)
		}
	}}

	var (
		v   V
		err error
	)
	if first {
		v, err = c.GetForced(ctx, key)
	} else {
		v, err = c.Get(ctx, key)
	}
	if err != nil {
		sub.Release()
		return v, nil, err
	}
	return v, sub, nil
}

func (c *CachedValue[K, V]) invalidate(ctx context.Context, k string) {
	c.mu.Lock()
	c.generations[k]++
	c.mu.Unlock()
	if err := c.store.Delete(ctx, k); err != nil {
		c.logger.Warn("Failed to delete cached value", zap.String("key", k), zap.Error(err))
	}
}

func (c *CachedValue[K, V]) generation(k string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[k] + c.generations[""]
}

func (c *CachedValue[K, V]) idle(k string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribers[k] == 0
}

func (c *CachedValue[K, V]) lookup(ctx context.Context, k string) (V, bool) {
	var zero V
	if c.policy.Kind == PolicyOnSubscription && c.idle(k) {
		return zero, false
	}
	entry, ok, err := c.store.Get(ctx, k)
	if err != nil {
		c.logger.Warn("Cache store read failed, fetching", zap.String("key", k), zap.Error(err))
		return zero, false
	}
	now := c.clock.Now()
	if !ok || !c.policy.fresh(entry.FetchedAt, now) {
		return zero, false
	}
	if c.valid != nil && !c.valid(entry.Value, now) {
		return zero, false
	}
	return entry.Value, true
}

func (c *CachedValue[K, V]) load(ctx context.Context, key K, k string) (V, error) {
	var zero V
	fetchCtx := context.WithoutCancel(ctx)

	ch := c.group.DoChan(k, func() (interface{}, error) {
		gen := c.generation(k)

		// a caller may have missed the store just before the previous fetch finished
		if c.policy.Kind != PolicyOnSubscription {
			if v, ok := c.lookup(fetchCtx, k); ok {
				return v, nil
			}
		}

		v, err := c.fetch(fetchCtx, key)
		if err != nil {
			return nil, err
		}

		if c.generation(k) != gen {
			c.logger.Debug("Dropping fetch result invalidated in flight", zap.String("key", k))
			return v, nil
		}
		entry := Entry[V]{Value: v, FetchedAt: c.clock.Now()}
		if err := c.store.Set(fetchCtx, k, entry, c.policy.storeTTL()); err != nil {
			c.logger.Warn("Failed to store cached value", zap.String("key", k), zap.Error(err))
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			metrics.CacheFetches.WithLabelValues(c.name, "error").Inc()
			return zero, res.Err
		}
		if res.Shared {
			metrics.CacheFetches.WithLabelValues(c.name, "shared").Inc()
		} else {
			metrics.CacheFetches.WithLabelValues(c.name, "miss").Inc()
		}
		return res.Val.(V), nil
	}
}
