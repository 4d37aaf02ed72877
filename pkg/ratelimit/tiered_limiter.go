package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Limiter decides whether a request may proceed
type Limiter interface {
	Check(ctx context.Context, ip, userID, endpoint string) (*CheckResult, error)
}

// TieredConfig defines tiered rate limiting configuration
type TieredConfig struct {
	IPLimit        int64
	IPWindow       time.Duration
	UserLimit      int64
	UserWindow     time.Duration
	EndpointLimits map[string]EndpointLimit
}

// EndpointLimit defines rate limit for a specific endpoint
type EndpointLimit struct {
	Limit  int64
	Window time.Duration
}

// CheckResult contains the result of a rate limit check
type CheckResult struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
	LimitedBy  string
}

// TieredLimiter implements sliding-window limits in redis, shared across replicas
type TieredLimiter struct {
	redis  *redis.Client
	config TieredConfig
	logger *zap.Logger
}

func NewTieredLimiter(redis *redis.Client, config TieredConfig, logger *zap.Logger) *TieredLimiter {
	return &TieredLimiter{redis: redis, config: config, logger: logger}
}

// Check applies the ip, user and endpoint tiers in order
func (l *TieredLimiter) Check(ctx context.Context, ip, userID, endpoint string) (*CheckResult, error) {
	tiers := []struct {
		name   string
		key    string
		limit  int64
		window time.Duration
	}{
		{"ip", ip, l.config.IPLimit, l.config.IPWindow},
		{"user", userID, l.config.UserLimit, l.config.UserWindow},
	}
	if endpointLimit, ok := l.config.EndpointLimits[endpoint]; ok {
		key := endpoint + ":" + ip
		if userID != "" {
			key = endpoint + ":" + userID
		}
		tiers = append(tiers, struct {
			name   string
			key    string
			limit  int64
			window time.Duration
		}{"endpoint", key, endpointLimit.Limit, endpointLimit.Window})
	}

	for _, tier := range tiers {
		if tier.limit <= 0 || tier.key == "" {
			continue
		}
		allowed, remaining, err := l.checkLimit(ctx, tier.name, tier.key, tier.limit, tier.window)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return &CheckResult{Allowed: false, Remaining: remaining, RetryAfter: tier.window, LimitedBy: tier.name}, nil
		}
	}
	return &CheckResult{Allowed: true, Remaining: -1}, nil
}

func (l *TieredLimiter) checkLimit(ctx context.Context, tier, key string, limit int64, window time.Duration) (bool, int64, error) {
	redisKey := fmt.Sprintf("ratelimit:%s:%s", tier, key)
	now := time.Now()
	windowStart := now.Add(-window)

	pipe := l.redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCount(ctx, redisKey, fmt.Sprintf("%d", windowStart.UnixNano()), "+inf")
	pipe.ZAdd(ctx, redisKey, &redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	pipe.Expire(ctx, redisKey, window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := countCmd.Val()
	remaining := limit - count - 1
	if remaining < 0 {
		remaining = 0
	}
	return count < limit, remaining, nil
}
