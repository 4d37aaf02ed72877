package limits

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rail-service/txengine/internal/domain/entities"
	"github.com/rail-service/txengine/pkg/logger"
)

type mockTierSource struct {
	tiers       entities.UserTiers
	canPurchase bool
	err         error
}

func (m *mockTierSource) Tiers(context.Context, string) (entities.UserTiers, error) {
	return m.tiers, m.err
}

func (m *mockTierSource) CanPurchaseCrypto(context.Context, string) (bool, error) {
	return m.canPurchase, m.err
}

type mockPriceSource struct {
	rate  decimal.Decimal
	calls int
}

func (m *mockPriceSource) Price(_ context.Context, base, quote entities.Currency) (entities.PriceQuote, error) {
	m.calls++
	return entities.PriceQuote{Base: base, Quote: quote, Rate: m.rate}, nil
}

func usd(s string) entities.MoneyValue {
	v, _ := entities.MoneyFromString(s, entities.USD)
	return v
}

func card(min, max string) *entities.PaymentMethod {
	return &entities.PaymentMethod{
		ID:       "card-1",
		Type:     entities.PaymentMethodCard,
		Currency: entities.USD,
		Min:      usd(min),
		Max:      usd(max),
	}
}

func tier2() entities.UserTiers {
	return entities.UserTiers{Tiers: []entities.TierState{
		{Tier: entities.KYCTierBasic, State: entities.KYCStateVerified},
		{Tier: entities.KYCTierAdvanced, State: entities.KYCStateVerified},
	}}
}

func newTestService(tiers TierSource, prices PriceSource) *Service {
	return NewService(tiers, prices, logger.NewLogger(zap.NewNop()))
}

func TestTradeLimits_Tier2CappedByPaymentMethod(t *testing.T) {
	prices := &mockPriceSource{rate: decimal.NewFromInt(1)}
	svc := newTestService(&mockTierSource{tiers: tier2(), canPurchase: true}, prices)

	limits, err := svc.TradeLimits(context.Background(), "guid", entities.USD, card("10", "5000"))
	require.NoError(t, err)

	assert.Equal(t, "10.00 USD", limits.Minimum.String())
	assert.Equal(t, "5000.00 USD", limits.Maximum.String())
	require.NotNil(t, limits.Daily)
	assert.Equal(t, "25000.00 USD", limits.Daily.String())
	assert.Equal(t, 0, prices.calls)
}

func TestTradeLimits_ConvertsTierTable(t *testing.T) {
	prices := &mockPriceSource{rate: decimal.RequireFromString("0.9")}
	tiers := entities.UserTiers{Tiers: []entities.TierState{{Tier: entities.KYCTierBasic, State: entities.KYCStateVerified}}}
	svc := newTestService(&mockTierSource{tiers: tiers, canPurchase: true}, prices)

	limits, err := svc.TradeLimits(context.Background(), "guid", entities.EUR, nil)
	require.NoError(t, err)

	assert.Equal(t, "4.50 EUR", limits.Minimum.String())
	assert.Equal(t, "900.00 EUR", limits.Maximum.String())
	assert.Equal(t, 1, prices.calls)
}

func TestTradeLimits_CannotPurchaseUsesPaymentMethod(t *testing.T) {
	svc := newTestService(&mockTierSource{canPurchase: false}, &mockPriceSource{})

	limits, err := svc.TradeLimits(context.Background(), "guid", entities.USD, card("20", "300"))
	require.NoError(t, err)
	assert.Equal(t, usd("20"), limits.Minimum)
	assert.Equal(t, usd("300"), limits.Maximum)
	assert.Nil(t, limits.Daily)

	limits, err = svc.TradeLimits(context.Background(), "guid", entities.USD, nil)
	require.NoError(t, err)
	assert.True(t, limits.Maximum.IsZero())
}

func TestTradeLimits_TierError(t *testing.T) {
	boom := errors.New("nabu down")
	svc := newTestService(&mockTierSource{err: boom}, &mockPriceSource{})

	_, err := svc.TradeLimits(context.Background(), "guid", entities.USD, nil)
	assert.ErrorIs(t, err, boom)
}
