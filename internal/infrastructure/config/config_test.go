package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithRequiredSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ENCRYPTION_KEY", "test-encryption-key")
	t.Setenv("NATIVE_WALLET_ENABLED", "true")
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Features.NativeWalletEnabled)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 30, cfg.Nabu.SessionTimeout)
	assert.Equal(t, "0.5", cfg.Stellar.BaseReserve)
	assert.Equal(t, 60, cfg.Polling.OrderMaxAttempts)
	assert.Equal(t, int64(1), cfg.Chain.EVMNetworks["ethereum"].ChainID)
	assert.Contains(t, cfg.Database.URL, "postgres://")
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ENCRYPTION_KEY", "key")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT secret")
}

func TestValidate_RejectsBadReserve(t *testing.T) {
	cfg := &Config{
		JWT:      JWTConfig{Secret: "s"},
		Security: SecurityConfig{EncryptionKey: "k"},
		Database: DatabaseConfig{URL: "postgres://x"},
		Stellar:  StellarConfig{BaseReserve: "half", BaseFee: "0.00001"},
		Cache:    CacheConfig{Backend: "memory"},
	}
	assert.Error(t, validate(cfg))

	cfg.Stellar.BaseReserve = "0.5"
	assert.NoError(t, validate(cfg))

	cfg.Cache.Backend = "disk"
	assert.Error(t, validate(cfg))
}
