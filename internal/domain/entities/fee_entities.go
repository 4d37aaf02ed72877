package entities

import "github.com/shopspring/decimal"

// FeeLevel is the user-selected fee tier
type FeeLevel string

const (
	FeeLevelNone     FeeLevel = "none"
	FeeLevelRegular  FeeLevel = "regular"
	FeeLevelPriority FeeLevel = "priority"
	FeeLevelCustom   FeeLevel = "custom"
)

// FeeSelection records the selected level and the levels an engine offers
type FeeSelection struct {
	SelectedLevel   FeeLevel    `json:"selectedLevel"`
	AvailableLevels []FeeLevel  `json:"availableLevels"`
	CustomAmount    *MoneyValue `json:"customAmount,omitempty"`
	Asset           Currency    `json:"asset"`
}

// Offers reports whether level is one of the available levels
func (f FeeSelection) Offers(level FeeLevel) bool {
	for _, l := range f.AvailableLevels {
		if l == level {
			return true
		}
	}
	return false
}

// FeeSchedule is a per-asset fee quote. Units depend on the asset:
// sat/vbyte for bitcoin, wei per gas for EVM networks, stroops per operation for stellar.
type FeeSchedule struct {
	Asset    Currency        `json:"asset"`
	Network  string          `json:"network,omitempty"`
	Regular  decimal.Decimal `json:"regular"`
	Priority decimal.Decimal `json:"priority"`
	GasLimit uint64          `json:"gasLimit,omitempty"`
}

// ForLevel returns the rate for level; custom and none use the regular rate
func (f FeeSchedule) ForLevel(level FeeLevel) decimal.Decimal {
	if level == FeeLevelPriority {
		return f.Priority
	}
	return f.Regular
}
