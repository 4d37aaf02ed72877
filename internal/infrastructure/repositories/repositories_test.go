package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rail-service/txengine/internal/domain/entities"
	domainerrors "github.com/rail-service/txengine/internal/domain/errors"
	"github.com/rail-service/txengine/internal/infrastructure/cache"
	"github.com/rail-service/txengine/pkg/crypto"
)

type memoryRedis struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryRedis() *memoryRedis { return &memoryRedis{data: map[string][]byte{}} }

func (m *memoryRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = b
	return nil
}

func (m *memoryRedis) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	b, ok := m.data[key]
	m.mu.Unlock()
	if !ok {
		return cache.ErrMiss
	}
	return json.Unmarshal(b, dest)
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryRedis) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *memoryRedis) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
		}
	}
	return nil
}

func (m *memoryRedis) Ping(context.Context) error { return nil }
func (m *memoryRedis) Close() error               { return nil }
func (m *memoryRedis) Client() *redis.Client      { return nil }

type fakeEVMClient struct {
	balanceCalls int64
	balance      *big.Int
	nonce        uint64
	err          error
}

func (f *fakeEVMClient) EVMBalance(_ context.Context, _, _ string) (*big.Int, error) {
	atomic.AddInt64(&f.balanceCalls, 1)
	return f.balance, f.err
}

func (f *fakeEVMClient) EVMTransactionCount(_ context.Context, _, _ string) (uint64, error) {
	return f.nonce, f.err
}

func TestEVMBalanceRepository(t *testing.T) {
	ctx := context.Background()
	client := &fakeEVMClient{balance: big.NewInt(1_500_000_000_000_000_000)}
	registry := cache.NewRegistry(cache.RegistryOptions{Logger: zap.NewNop()})
	repo := NewEVMBalanceRepository(registry, client,
		map[string]entities.Currency{"ethereum": entities.ETH}, time.Minute, zap.NewNop())

	balance, err := repo.Balance(ctx, "ethereum", "0xAbC")
	require.NoError(t, err)
	assert.Equal(t, "1.5", balance.Amount().String())
	assert.Equal(t, entities.ETH, balance.Currency())

	_, err = repo.Balance(ctx, "ethereum", "0xabc")
	require.NoError(t, err)
	assert.EqualValues(t, 1, client.balanceCalls, "address case does not split the cache")

	repo.Invalidate(ctx, "ethereum", "0xabc")
	_, err = repo.Balance(ctx, "ethereum", "0xabc")
	require.NoError(t, err)
	assert.EqualValues(t, 2, client.balanceCalls)

	_, err = repo.Balance(ctx, "unknown", "0xabc")
	assert.Error(t, err)
}

func TestEVMNonceRepository_ErrorNotCached(t *testing.T) {
	ctx := context.Background()
	client := &fakeEVMClient{err: errors.New("boom")}
	registry := cache.NewRegistry(cache.RegistryOptions{Logger: zap.NewNop()})
	repo := NewEVMNonceRepository(registry, client, time.Minute, zap.NewNop())

	_, err := repo.Nonce(ctx, "polygon", "0x1")
	require.Error(t, err)

	client.err = nil
	client.nonce = 7
	nonce, err := repo.Nonce(ctx, "polygon", "0x1")
	require.NoError(t, err)
	assert.EqualValues(t, 7, nonce)
}

func TestRedisCredentialsRepository(t *testing.T) {
	ctx := context.Background()
	cipher, err := crypto.NewCipher("a-very-long-test-encryption-secret", "credentials")
	require.NoError(t, err)
	store := newMemoryRedis()
	repo := NewCredentialsRepository(false, nil, store, cipher, zap.NewNop())

	_, err = repo.Credentials(ctx, "guid-1")
	assert.True(t, domainerrors.IsNotFound(err))

	creds := entities.WalletCredentials{GUID: "guid-1", SharedKey: "shared", Email: "a@b.c", OTPSecret: "JBSWY3DPEHPK3PXP"}
	require.NoError(t, repo.SaveCredentials(ctx, creds))

	got, err := repo.Credentials(ctx, "guid-1")
	require.NoError(t, err)
	assert.Equal(t, creds, got)

	token, err := repo.OfflineToken(ctx, "guid-1")
	require.NoError(t, err)
	assert.Nil(t, token)

	require.NoError(t, repo.SaveOfflineToken(ctx, "guid-1", entities.OfflineToken{UserID: "u1", Token: "offline"}))
	token, err = repo.OfflineToken(ctx, "guid-1")
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "u1", token.UserID)
	assert.Equal(t, "offline", token.Token)

	raw := string(store.data["credentials:guid-1"])
	assert.NotContains(t, raw, "offline\"", "offline token is stored encrypted")
	assert.NotContains(t, raw, "\"shared\"")

	err = repo.SaveOfflineToken(ctx, "missing", entities.OfflineToken{Token: "x"})
	assert.True(t, domainerrors.IsNotFound(err))
}
