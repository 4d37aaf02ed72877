package ratelimit

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// LocalLimiter is a per-process token bucket per ip or user, used when redis is
// not configured
type LocalLimiter struct {
	perMinute int
	buckets   *gocache.Cache
	mu        sync.Mutex
}

func NewLocalLimiter(perMinute int) *LocalLimiter {
	return &LocalLimiter{
		perMinute: perMinute,
		buckets:   gocache.New(10*time.Minute, 10*time.Minute),
	}
}

func (l *LocalLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets.Get(key); ok {
		return b.(*rate.Limiter)
	}
	b := rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)
	l.buckets.SetDefault(key, b)
	return b
}

// Check limits by user when known, otherwise by ip
func (l *LocalLimiter) Check(_ context.Context, ip, userID, _ string) (*CheckResult, error) {
	if l.perMinute <= 0 {
		return &CheckResult{Allowed: true, Remaining: -1}, nil
	}
	key, tier := "ip:"+ip, "ip"
	if userID != "" {
		key, tier = "user:"+userID, "user"
	}
	b := l.bucket(key)
	if !b.Allow() {
		return &CheckResult{
			Allowed:    false,
			RetryAfter: time.Minute / time.Duration(l.perMinute),
			LimitedBy:  tier,
		}, nil
	}
	return &CheckResult{Allowed: true, Remaining: int64(b.Tokens())}, nil
}
