package entities

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ErrCurrencyMismatch is returned by arithmetic across two different currencies
var ErrCurrencyMismatch = errors.New("currency mismatch")

// MoneyValue is an exact amount of a currency expressed in major units (BTC, not satoshi).
// The amount never carries more decimal places than the currency precision.
type MoneyValue struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoneyValue truncates amount to the currency precision
func NewMoneyValue(amount decimal.Decimal, currency Currency) MoneyValue {
	return MoneyValue{amount: amount.Truncate(currency.Precision), currency: currency}
}

// MoneyFromString parses a decimal string such as "0.015"
func MoneyFromString(amount string, currency Currency) (MoneyValue, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return MoneyValue{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return NewMoneyValue(d, currency), nil
}

// MoneyFromMinor builds a value from minor units (satoshi, wei, stroop, cents)
func MoneyFromMinor(minor *big.Int, currency Currency) MoneyValue {
	return MoneyValue{amount: decimal.NewFromBigInt(minor, -currency.Precision), currency: currency}
}

// MoneyFromMinorInt64 is MoneyFromMinor for values that fit in int64
func MoneyFromMinorInt64(minor int64, currency Currency) MoneyValue {
	return MoneyValue{amount: decimal.New(minor, -currency.Precision), currency: currency}
}

func Zero(currency Currency) MoneyValue {
	return MoneyValue{amount: decimal.Zero, currency: currency}
}

func (m MoneyValue) Amount() decimal.Decimal { return m.amount }
func (m MoneyValue) Currency() Currency      { return m.currency }
func (m MoneyValue) IsZero() bool            { return m.amount.IsZero() }
func (m MoneyValue) IsPositive() bool        { return m.amount.IsPositive() }
func (m MoneyValue) IsNegative() bool        { return m.amount.IsNegative() }

// Minor returns the amount in minor units
func (m MoneyValue) Minor() *big.Int {
	return m.amount.Shift(m.currency.Precision).BigInt()
}

// MinorInt64 returns the amount in minor units; callers must know it fits
func (m MoneyValue) MinorInt64() int64 {
	return m.amount.Shift(m.currency.Precision).IntPart()
}

func (m MoneyValue) sameCurrency(other MoneyValue) error {
	if m.currency.Code != other.currency.Code {
		return fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.currency.Code, other.currency.Code)
	}
	return nil
}

func (m MoneyValue) Add(other MoneyValue) (MoneyValue, error) {
	if err := m.sameCurrency(other); err != nil {
		return MoneyValue{}, err
	}
	return MoneyValue{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

func (m MoneyValue) Sub(other MoneyValue) (MoneyValue, error) {
	if err := m.sameCurrency(other); err != nil {
		return MoneyValue{}, err
	}
	return MoneyValue{amount: m.amount.Sub(other.amount), currency: m.currency}, nil
}

// Compare returns -1, 0 or 1 like decimal.Cmp
func (m MoneyValue) Compare(other MoneyValue) (int, error) {
	if err := m.sameCurrency(other); err != nil {
		return 0, err
	}
	return m.amount.Cmp(other.amount), nil
}

// GreaterThan is Compare > 0; currency mismatches report false with the error
func (m MoneyValue) GreaterThan(other MoneyValue) (bool, error) {
	c, err := m.Compare(other)
	return c > 0, err
}

func (m MoneyValue) LessThan(other MoneyValue) (bool, error) {
	c, err := m.Compare(other)
	return c < 0, err
}

// FloorAtZero clamps negative amounts to zero
func (m MoneyValue) FloorAtZero() MoneyValue {
	if m.amount.IsNegative() {
		return Zero(m.currency)
	}
	return m
}

// Convert multiplies by rate (units of target per one unit of m's currency) and
// rounds down to the target precision
func (m MoneyValue) Convert(rate decimal.Decimal, target Currency) MoneyValue {
	return NewMoneyValue(m.amount.Mul(rate), target)
}

// ConvertInverse divides by rate, the price of one unit of target in m's currency
func (m MoneyValue) ConvertInverse(rate decimal.Decimal, target Currency) MoneyValue {
	if rate.IsZero() {
		return Zero(target)
	}
	return NewMoneyValue(m.amount.DivRound(rate, target.Precision+8), target)
}

// MaxMoney returns the larger of two same-currency values
func MaxMoney(a, b MoneyValue) (MoneyValue, error) {
	c, err := a.Compare(b)
	if err != nil {
		return MoneyValue{}, err
	}
	if c >= 0 {
		return a, nil
	}
	return b, nil
}

func (m MoneyValue) String() string {
	return m.amount.StringFixed(m.currency.Precision) + " " + m.currency.Code
}

type moneyJSON struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (m MoneyValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.amount.String(), Currency: m.currency.Code})
}

func (m *MoneyValue) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	currency, err := CurrencyByCode(raw.Currency)
	if err != nil {
		return err
	}
	v, err := MoneyFromString(raw.Amount, currency)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
