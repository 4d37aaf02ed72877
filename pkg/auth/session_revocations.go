package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lightningnetwork/lnd/clock"
)

// A logged-out token is stored under session:revoked:<HashToken(token)> until it
// would have expired. Logging out everywhere stores the logout time under
// session:revoked-before:<user id> and every older token of that user is rejected.
const (
	revokedTokenPrefix  = "session:revoked:"
	revokedBeforePrefix = "session:revoked-before:"
)

// RevocationStore is the part of the redis client the revocations use
type RevocationStore interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// SessionRevocations tracks API session tokens revoked by logout
type SessionRevocations struct {
	store RevocationStore
	clock clock.Clock
}

func NewSessionRevocations(store RevocationStore, clk clock.Clock) *SessionRevocations {
	return &SessionRevocations{store: store, clock: clk}
}

// Revoke rejects a session token until expiresAt. Tokens that already expired are not stored.
func (r *SessionRevocations) Revoke(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.clock.Now())
	if ttl <= 0 {
		return nil
	}
	if err := r.store.Set(ctx, revokedTokenPrefix+tokenHash, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke session token: %w", err)
	}
	return nil
}

func (r *SessionRevocations) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	exists, err := r.store.Exists(ctx, revokedTokenPrefix+tokenHash).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session revocation: %w", err)
	}
	return exists > 0, nil
}

// RevokeAll rejects every token the user was issued so far. accessTTL bounds how
// long such a token can stay valid, so the marker expires with it.
func (r *SessionRevocations) RevokeAll(ctx context.Context, userID string, accessTTL time.Duration) error {
	if err := r.store.Set(ctx, revokedBeforePrefix+userID, r.clock.Now().Unix(), accessTTL).Err(); err != nil {
		return fmt.Errorf("failed to revoke user sessions: %w", err)
	}
	return nil
}

// IsRevokedForUser reports whether a token issued at issuedAt predates the user's last RevokeAll
func (r *SessionRevocations) IsRevokedForUser(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	revokedAt, err := r.store.Get(ctx, revokedBeforePrefix+userID).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check user session revocation: %w", err)
	}
	return issuedAt.Unix() < revokedAt, nil
}
