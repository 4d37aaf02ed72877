package entities

import (
	"fmt"
	"strings"
)

// CurrencyKind separates on-chain assets from fiat
type CurrencyKind string

const (
	CurrencyKindCrypto CurrencyKind = "crypto"
	CurrencyKindFiat   CurrencyKind = "fiat"
)

// Currency identifies an asset and the number of decimal places it is divisible into
type Currency struct {
	Code      string       `json:"code"`
	Kind      CurrencyKind `json:"kind"`
	Precision int32        `json:"precision"`
}

var (
	BTC   = Currency{Code: "BTC", Kind: CurrencyKindCrypto, Precision: 8}
	ETH   = Currency{Code: "ETH", Kind: CurrencyKindCrypto, Precision: 18}
	MATIC = Currency{Code: "MATIC", Kind: CurrencyKindCrypto, Precision: 18}
	XLM   = Currency{Code: "XLM", Kind: CurrencyKindCrypto, Precision: 7}

	USD = Currency{Code: "USD", Kind: CurrencyKindFiat, Precision: 2}
	EUR = Currency{Code: "EUR", Kind: CurrencyKindFiat, Precision: 2}
	GBP = Currency{Code: "GBP", Kind: CurrencyKindFiat, Precision: 2}
)

var currencies = map[string]Currency{
	BTC.Code:   BTC,
	ETH.Code:   ETH,
	MATIC.Code: MATIC,
	XLM.Code:   XLM,
	USD.Code:   USD,
	EUR.Code:   EUR,
	GBP.Code:   GBP,
}

// CurrencyByCode looks up a supported currency, case-insensitively
func CurrencyByCode(code string) (Currency, error) {
	c, ok := currencies[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Currency{}, fmt.Errorf("unsupported currency %q", code)
	}
	return c, nil
}

func (c Currency) IsFiat() bool   { return c.Kind == CurrencyKindFiat }
func (c Currency) IsCrypto() bool { return c.Kind == CurrencyKindCrypto }
func (c Currency) String() string { return c.Code }
