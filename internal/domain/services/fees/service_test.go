package fees

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rail-service/txengine/internal/domain/entities"
	"github.com/rail-service/txengine/internal/infrastructure/cache"
)

type fakeClient struct {
	calls map[string]int
	fail  map[string]bool
}

func (f *fakeClient) Fees(_ context.Context, asset entities.Currency, network string) (entities.FeeSchedule, error) {
	key := Target{Asset: asset, Network: network}.String()
	f.calls[key]++
	if f.fail[key] {
		return entities.FeeSchedule{}, errors.New("unavailable")
	}
	return entities.FeeSchedule{
		Asset:    asset,
		Network:  network,
		Regular:  decimal.NewFromInt(10),
		Priority: decimal.NewFromInt(5),
	}, nil
}

func TestService_FeesAreCachedPerTarget(t *testing.T) {
	client := &fakeClient{calls: map[string]int{}, fail: map[string]bool{}}
	svc := NewService(cache.NewRegistry(cache.RegistryOptions{}), client, time.Minute, zap.NewNop())
	ctx := context.Background()

	btc, err := svc.Fees(ctx, entities.BTC, "")
	require.NoError(t, err)
	assert.True(t, btc.Priority.Equal(btc.Regular), "priority is never below regular")

	_, err = svc.Fees(ctx, entities.BTC, "")
	require.NoError(t, err)
	_, err = svc.Fees(ctx, entities.ETH, "ethereum")
	require.NoError(t, err)

	assert.Equal(t, 1, client.calls["BTC"])
	assert.Equal(t, 1, client.calls["ETH@ethereum"])
}

func TestService_WarmContinuesPastFailures(t *testing.T) {
	client := &fakeClient{calls: map[string]int{}, fail: map[string]bool{"XLM": true}}
	svc := NewService(cache.NewRegistry(cache.RegistryOptions{}), client, time.Minute, zap.NewNop())

	err := svc.Warm(context.Background(), []Target{{Asset: entities.XLM}, {Asset: entities.BTC}})
	assert.Error(t, err)
	assert.Equal(t, 1, client.calls["BTC"])

	_, err = svc.Fees(context.Background(), entities.BTC, "")
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls["BTC"], "warmed value is served from cache")
}
