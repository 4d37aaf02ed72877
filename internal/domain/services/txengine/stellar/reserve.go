package stellar

import (
	"github.com/shopspring/decimal"

	"github.com/rail-service/txengine/internal/domain/entities"
)

// Stroop is the smallest XLM unit
var Stroop = entities.MoneyFromMinorInt64(1, entities.XLM)

// MinRequiredReserve is the balance an account with subentries must keep:
// (2 + subentries) * baseReserve
func MinRequiredReserve(subentries uint32, baseReserve entities.MoneyValue) entities.MoneyValue {
	factor := decimal.NewFromInt(2 + int64(subentries))
	return entities.NewMoneyValue(baseReserve.Amount().Mul(factor), baseReserve.Currency())
}

// MaxSpendable is balance minus fee and reserve, floored at zero
func MaxSpendable(balance, fee, reserve entities.MoneyValue) (entities.MoneyValue, error) {
	spendable, err := balance.Sub(fee)
	if err != nil {
		return entities.MoneyValue{}, err
	}
	spendable, err = spendable.Sub(reserve)
	if err != nil {
		return entities.MoneyValue{}, err
	}
	return spendable.FloorAtZero(), nil
}
