package entities

import (
	"github.com/shopspring/decimal"
)

// KYCTier represents user verification level for trade limits
type KYCTier int

const (
	KYCTierUnverified KYCTier = 0 // No KYC completed
	KYCTierBasic      KYCTier = 1 // Basic identity verification
	KYCTierAdvanced   KYCTier = 2 // Full verification, required for buying with most methods
)

func (t KYCTier) String() string {
	switch t {
	case KYCTierBasic:
		return "tier1"
	case KYCTierAdvanced:
		return "tier2"
	default:
		return "tier0"
	}
}

// KYCState is the review state of one tier
type KYCState string

const (
	KYCStateNone        KYCState = "none"
	KYCStatePending     KYCState = "pending"
	KYCStateUnderReview KYCState = "under_review"
	KYCStateRejected    KYCState = "rejected"
	KYCStateVerified    KYCState = "verified"
	KYCStateExpired     KYCState = "expired"
)

// TierState pairs a tier with its review state
type TierState struct {
	Tier  KYCTier  `json:"tier"`
	State KYCState `json:"state"`
}

// UserTiers is the KYC tier overview of a user
type UserTiers struct {
	Tiers []TierState `json:"tiers"`
}

// LatestApprovedTier returns the highest verified tier
func (u UserTiers) LatestApprovedTier() KYCTier {
	latest := KYCTierUnverified
	for _, t := range u.Tiers {
		if t.State == KYCStateVerified && t.Tier > latest {
			latest = t.Tier
		}
	}
	return latest
}

// StateFor returns the state of tier, none when absent
func (u UserTiers) StateFor(tier KYCTier) KYCState {
	for _, t := range u.Tiers {
		if t.Tier == tier {
			return t.State
		}
	}
	return KYCStateNone
}

func (u UserTiers) IsTier2Approved() bool {
	return u.StateFor(KYCTierAdvanced) == KYCStateVerified
}

// SimplifiedDueDiligenceResponse reports SDD eligibility
type SimplifiedDueDiligenceResponse struct {
	Eligible bool    `json:"eligible"`
	Tier     KYCTier `json:"tier"`
}

// SimplifiedDueDiligenceVerification reports the SDD verification task
type SimplifiedDueDiligenceVerification struct {
	Verified     bool `json:"verified"`
	TaskComplete bool `json:"taskComplete"`
}

// Buy limits (USD)
var (
	// Minimum buy keeps order fees proportionate
	MinBuyAmount = decimal.NewFromFloat(5.00)

	// Tier 1 (Basic KYC) limits
	Tier1MaxOrderLimit = decimal.NewFromFloat(1000.00)
	Tier1DailyBuyLimit = decimal.NewFromFloat(1000.00)

	// Tier 2 (Advanced KYC) limits
	Tier2MaxOrderLimit = decimal.NewFromFloat(10000.00)
	Tier2DailyBuyLimit = decimal.NewFromFloat(25000.00)

	// Unverified users may not buy
	UnverifiedMaxOrderLimit = decimal.Zero
	UnverifiedDailyBuyLimit = decimal.Zero
)

// TradeLimitConfig holds buy limits for a specific KYC tier, in USD
type TradeLimitConfig struct {
	Tier       KYCTier
	Minimum    decimal.Decimal
	MaxOrder   decimal.Decimal
	DailyLimit decimal.Decimal
}

// GetLimitConfigForTier returns the limit configuration for a KYC tier
func GetLimitConfigForTier(tier KYCTier) TradeLimitConfig {
	switch tier {
	case KYCTierAdvanced:
		return TradeLimitConfig{
			Tier:       KYCTierAdvanced,
			Minimum:    MinBuyAmount,
			MaxOrder:   Tier2MaxOrderLimit,
			DailyLimit: Tier2DailyBuyLimit,
		}
	case KYCTierBasic:
		return TradeLimitConfig{
			Tier:       KYCTierBasic,
			Minimum:    MinBuyAmount,
			MaxOrder:   Tier1MaxOrderLimit,
			DailyLimit: Tier1DailyBuyLimit,
		}
	default:
		return TradeLimitConfig{
			Tier:       KYCTierUnverified,
			Minimum:    MinBuyAmount,
			MaxOrder:   UnverifiedMaxOrderLimit,
			DailyLimit: UnverifiedDailyBuyLimit,
		}
	}
}
