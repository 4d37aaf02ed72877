package cache

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/lightningnetwork/lnd/clock"
	"go.uber.org/zap"
)

// Invalidator is the type-erased view of a cached value kept by the registry
type Invalidator interface {
	Name() string
	InvalidateAll(ctx context.Context) error
}

// Registry owns every cached value of the process. It is built once in main and
// handed to repositories and services.
type Registry struct {
	mu     sync.Mutex
	values map[string]Invalidator
	events *AuthEvents
	clock  clock.Clock
	redis  RedisClient
	prefix string
	logger *zap.Logger
}

// RegistryOptions configures a registry. A nil Redis keeps values in memory.
type RegistryOptions struct {
	Events *AuthEvents
	Clock  clock.Clock
	Redis  RedisClient
	Prefix string
	Logger *zap.Logger
}

func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Events == nil {
		opts.Events = NewAuthEvents()
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewDefaultClock()
	}
	if opts.Prefix == "" {
		opts.Prefix = "txengine:cache"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	r := &Registry{
		values: make(map[string]Invalidator),
		events: opts.Events,
		clock:  opts.Clock,
		redis:  opts.Redis,
		prefix: opts.Prefix,
		logger: opts.Logger,
	}
	return r
}

func (r *Registry) Events() *AuthEvents { return r.events }
func (r *Registry) Clock() clock.Clock  { return r.clock }

// Register creates a cached value named name and tracks it. Values with the
// onLoginLogout policy are flushed on every auth event.
func Register[K comparable, V any](r *Registry, name string, policy Policy, fetch FetchFunc[K, V], opts ...Option[K, V]) *CachedValue[K, V] {
	base := []Option[K, V]{WithClock[K, V](r.clock)}
	if r.redis != nil {
		base = append(base, WithStore[K, V](NewRedisStore[V](r.redis, r.prefix+":"+name)))
	}
	cv := New(name, policy, fetch, r.logger, append(base, opts...)...)

	r.mu.Lock()
	r.values[name] = cv
	r.mu.Unlock()

	if policy.Kind == PolicyOnLoginLogout {
		r.events.Subscribe(func(ev AuthEvent) {
			if err := cv.InvalidateAll(context.Background()); err != nil {
				r.logger.Warn("Failed to flush cache on auth event",
					zap.String("cache", name), zap.String("event", string(ev.Kind)), zap.Error(err))
			}
		})
	}
	return cv
}

// Names lists registered caches
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.values))
	for name := range r.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InvalidateAll flushes every registered cache
func (r *Registry) InvalidateAll(ctx context.Context) error {
	r.mu.Lock()
	values := make([]Invalidator, 0, len(r.values))
	for _, v := range r.values {
		values = append(values, v)
	}
	r.mu.Unlock()

	var errs []error
	for _, v := range values {
		if err := v.InvalidateAll(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
