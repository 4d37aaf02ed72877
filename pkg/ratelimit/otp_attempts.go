package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// OTPAttemptTracker locks out second-factor checks after repeated failures,
// with exponential backoff
type OTPAttemptTracker struct {
	redis       *redis.Client
	logger      *zap.Logger
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

func NewOTPAttemptTracker(redis *redis.Client, logger *zap.Logger) *OTPAttemptTracker {
	return &OTPAttemptTracker{
		redis:       redis,
		logger:      logger,
		maxAttempts: 5,
		baseBackoff: 30 * time.Second,
		maxBackoff:  time.Hour,
	}
}

// Locked returns how long the user stays locked out, zero when not locked
func (t *OTPAttemptTracker) Locked(ctx context.Context, userID string) (time.Duration, error) {
	ttl, err := t.redis.TTL(ctx, "otp:locked:"+userID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("failed to check lock status: %w", err)
	}
	if ttl > 0 {
		return ttl, nil
	}
	return 0, nil
}

// RecordFailure counts a failed code and returns the lockout it triggered, if any
func (t *OTPAttemptTracker) RecordFailure(ctx context.Context, userID string) (time.Duration, error) {
	key := "otp:attempts:" + userID
	attempts, err := t.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment attempts: %w", err)
	}
	t.redis.Expire(ctx, key, time.Hour)

	if int(attempts) < t.maxAttempts {
		return 0, nil
	}
	exponent := int(attempts) - t.maxAttempts
	backoff := time.Duration(float64(t.baseBackoff) * math.Pow(2, float64(exponent)))
	if backoff > t.maxBackoff {
		backoff = t.maxBackoff
	}
	t.redis.Set(ctx, "otp:locked:"+userID, "1", backoff)
	t.logger.Warn("Second factor locked", zap.String("user_id", userID), zap.Int64("attempts", attempts), zap.Duration("lockout", backoff))
	return backoff, nil
}

// RecordSuccess clears failed attempts
func (t *OTPAttemptTracker) RecordSuccess(ctx context.Context, userID string) error {
	pipe := t.redis.Pipeline()
	pipe.Del(ctx, "otp:attempts:"+userID)
	pipe.Del(ctx, "otp:locked:"+userID)
	_, err := pipe.Exec(ctx)
	return err
}
