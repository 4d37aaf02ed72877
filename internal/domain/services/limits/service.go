// Package limits derives buy limits from the user's KYC tier and funding method.
package limits

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rail-service/txengine/internal/domain/entities"
	"github.com/rail-service/txengine/pkg/logger"
)

// TierSource reports the user's KYC standing
type TierSource interface {
	Tiers(ctx context.Context, guid string) (entities.UserTiers, error)
	CanPurchaseCrypto(ctx context.Context, guid string) (bool, error)
}

// PriceSource converts the USD tier table into the user's fiat currency
type PriceSource interface {
	Price(ctx context.Context, base, quote entities.Currency) (entities.PriceQuote, error)
}

// Service computes trade limits
type Service struct {
	tiers  TierSource
	prices PriceSource
	logger *logger.Logger
}

// NewService creates a new limits service
func NewService(tiers TierSource, prices PriceSource, logger *logger.Logger) *Service {
	return &Service{
		tiers:  tiers,
		prices: prices,
		logger: logger,
	}
}

// TradeLimits returns the buy limits in fiat for the user. Users who cannot purchase
// yet get the payment method limits so the form stays usable until KYC completes.
func (s *Service) TradeLimits(ctx context.Context, guid string, fiat entities.Currency, method *entities.PaymentMethod) (entities.TransactionLimits, error) {
	canPurchase, err := s.tiers.CanPurchaseCrypto(ctx, guid)
	if err != nil {
		return entities.TransactionLimits{}, fmt.Errorf("failed to check purchase eligibility: %w", err)
	}
	if !canPurchase {
		return paymentMethodLimits(fiat, method), nil
	}

	tiers, err := s.tiers.Tiers(ctx, guid)
	if err != nil {
		return entities.TransactionLimits{}, fmt.Errorf("failed to get user tier: %w", err)
	}
	tier := tiers.LatestApprovedTier()
	if tier < entities.KYCTierBasic {
		// SDD verified users trade at the basic tier
		tier = entities.KYCTierBasic
	}
	config := entities.GetLimitConfigForTier(tier)

	rate := decimal.NewFromInt(1)
	if fiat.Code != entities.USD.Code {
		quote, err := s.prices.Price(ctx, entities.USD, fiat)
		if err != nil {
			return entities.TransactionLimits{}, fmt.Errorf("failed to convert limits to %s: %w", fiat.Code, err)
		}
		rate = quote.Rate
	}

	usd := func(d decimal.Decimal) entities.MoneyValue {
		return entities.NewMoneyValue(d, entities.USD).Convert(rate, fiat)
	}
	daily := usd(config.DailyLimit)
	limits := entities.TransactionLimits{
		Minimum: usd(config.Minimum),
		Maximum: usd(config.MaxOrder),
		Daily:   &daily,
	}

	if method != nil && method.Currency.Code == fiat.Code {
		if greater, err := method.Min.GreaterThan(limits.Minimum); err == nil && greater {
			limits.Minimum = method.Min
		}
		if less, err := method.Max.LessThan(limits.Maximum); err == nil && less {
			limits.Maximum = method.Max
		}
	}

	s.logger.Debug("Computed trade limits",
		"tier", tier.String(),
		"currency", fiat.Code,
		"minimum", limits.Minimum.String(),
		"maximum", limits.Maximum.String())
	return limits, nil
}

func paymentMethodLimits(fiat entities.Currency, method *entities.PaymentMethod) entities.TransactionLimits {
	if method == nil || method.Currency.Code != fiat.Code {
		return entities.TransactionLimits{Minimum: entities.Zero(fiat), Maximum: entities.Zero(fiat)}
	}
	return entities.TransactionLimits{Minimum: method.Min, Maximum: method.Max}
}
