package cache

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Entry is a stored value and the time it was fetched
type Entry[V any] struct {
	Value     V         `json:"value"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Store persists entries for one cached value. A ttl of zero means no expiry.
type Store[V any] interface {
	Get(ctx context.Context, key string) (Entry[V], bool, error)
	Set(ctx context.Context, key string, entry Entry[V], ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Flush(ctx context.Context) error
}

// MemoryStore keeps entries in process
type MemoryStore[V any] struct {
	items *gocache.Cache
}

func NewMemoryStore[V any]() *MemoryStore[V] {
	return &MemoryStore[V]{items: gocache.New(gocache.NoExpiration, 5*time.Minute)}
}

func (s *MemoryStore[V]) Get(_ context.Context, key string) (Entry[V], bool, error) {
	raw, ok := s.items.Get(key)
	if !ok {
		return Entry[V]{}, false, nil
	}
	return raw.(Entry[V]), true, nil
}

func (s *MemoryStore[V]) Set(_ context.Context, key string, entry Entry[V], ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	s.items.Set(key, entry, ttl)
	return nil
}

func (s *MemoryStore[V]) Delete(_ context.Context, key string) error {
	s.items.Delete(key)
	return nil
}

func (s *MemoryStore[V]) Flush(context.Context) error {
	s.items.Flush()
	return nil
}

// RedisStore keeps JSON entries under prefix:key so several instances share them
type RedisStore[V any] struct {
	client RedisClient
	prefix string
}

func NewRedisStore[V any](client RedisClient, prefix string) *RedisStore[V] {
	return &RedisStore[V]{client: client, prefix: prefix + ":"}
}

func (s *RedisStore[V]) Get(ctx context.Context, key string) (Entry[V], bool, error) {
	var entry Entry[V]
	err := s.client.Get(ctx, s.prefix+key, &entry)
	if errors.Is(err, ErrMiss) {
		return Entry[V]{}, false, nil
	}
	if err != nil {
		return Entry[V]{}, false, err
	}
	return entry, true, nil
}

func (s *RedisStore[V]) Set(ctx context.Context, key string, entry Entry[V], ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, s.prefix+key, entry, ttl)
}

func (s *RedisStore[V]) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key)
}

func (s *RedisStore[V]) Flush(ctx context.Context) error {
	return s.client.DeletePrefix(ctx, s.prefix)
}
