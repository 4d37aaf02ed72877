package entities

// ConfirmationType identifies a line item shown before a transaction is executed
type ConfirmationType string

const (
	ConfirmationAmount                  ConfirmationType = "amount"
	ConfirmationSource                  ConfirmationType = "source"
	ConfirmationDestination             ConfirmationType = "destination"
	ConfirmationFeeSelection            ConfirmationType = "fee_selection"
	ConfirmationNetworkFee              ConfirmationType = "network_fee"
	ConfirmationTotal                   ConfirmationType = "total"
	ConfirmationMemo                    ConfirmationType = "memo"
	ConfirmationLargeTransactionWarning ConfirmationType = "large_transaction_warning"
	ConfirmationExchangeRate            ConfirmationType = "exchange_rate"
	ConfirmationBuyCryptoValue          ConfirmationType = "buy_crypto_value"
	ConfirmationPurchase                ConfirmationType = "purchase"
	ConfirmationPaymentMethod           ConfirmationType = "payment_method"
)

// MemoKind is the stellar memo flavour
type MemoKind string

const (
	MemoKindText MemoKind = "text"
	MemoKindID   MemoKind = "id"
)

// Memo is an optional note attached to a stellar payment
type Memo struct {
	Kind  MemoKind `json:"kind"`
	Value string   `json:"value"`
}

// Confirmation is one ordered line item. Only the fields relevant to its Type are set.
type Confirmation struct {
	Type         ConfirmationType `json:"type"`
	Label        string           `json:"label,omitempty"`
	Value        *MoneyValue      `json:"value,omitempty"`
	FiatValue    *MoneyValue      `json:"fiatValue,omitempty"`
	Fee          *MoneyValue      `json:"fee,omitempty"`
	FeeFiatValue *MoneyValue      `json:"feeFiatValue,omitempty"`
	FeeLevel     FeeLevel         `json:"feeLevel,omitempty"`
	Memo         *Memo            `json:"memo,omitempty"`
	Required     bool             `json:"required,omitempty"`
	Acknowledged bool             `json:"acknowledged,omitempty"`
}

func moneyPtr(m MoneyValue) *MoneyValue { return &m }

// AmountConfirmation shows the amount being sent and its fiat value
func AmountConfirmation(amount, fiat MoneyValue) Confirmation {
	return Confirmation{Type: ConfirmationAmount, Value: moneyPtr(amount), FiatValue: moneyPtr(fiat)}
}

func SourceConfirmation(label string) Confirmation {
	return Confirmation{Type: ConfirmationSource, Label: label}
}

func DestinationConfirmation(label string) Confirmation {
	return Confirmation{Type: ConfirmationDestination, Label: label}
}

func FeeSelectionConfirmation(level FeeLevel, fee MoneyValue) Confirmation {
	return Confirmation{Type: ConfirmationFeeSelection, FeeLevel: level, Fee: moneyPtr(fee)}
}

func NetworkFeeConfirmation(fee, feeFiat MoneyValue) Confirmation {
	return Confirmation{Type: ConfirmationNetworkFee, Fee: moneyPtr(fee), FeeFiatValue: moneyPtr(feeFiat)}
}

// TotalConfirmation shows amount plus fee, each with its fiat value
func TotalConfirmation(amount, amountFiat, fee, feeFiat MoneyValue) Confirmation {
	return Confirmation{
		Type:         ConfirmationTotal,
		Value:        moneyPtr(amount),
		FiatValue:    moneyPtr(amountFiat),
		Fee:          moneyPtr(fee),
		FeeFiatValue: moneyPtr(feeFiat),
	}
}

func MemoConfirmation(memo *Memo, required bool) Confirmation {
	return Confirmation{Type: ConfirmationMemo, Memo: memo, Required: required}
}

func LargeTransactionWarning(fiat MoneyValue) Confirmation {
	return Confirmation{Type: ConfirmationLargeTransactionWarning, FiatValue: moneyPtr(fiat)}
}

// ExchangeRateConfirmation shows the price of one unit of the crypto currency
func ExchangeRateConfirmation(oneUnitPrice MoneyValue) Confirmation {
	return Confirmation{Type: ConfirmationExchangeRate, Value: moneyPtr(oneUnitPrice)}
}

// BuyCryptoValueConfirmation shows the crypto amount an order delivers
func BuyCryptoValueConfirmation(crypto MoneyValue) Confirmation {
	return Confirmation{Type: ConfirmationBuyCryptoValue, Value: moneyPtr(crypto)}
}

// PurchaseConfirmation is the part of the total that buys crypto, net of fees
func PurchaseConfirmation(purchase MoneyValue) Confirmation {
	return Confirmation{Type: ConfirmationPurchase, Value: moneyPtr(purchase)}
}

func PaymentMethodConfirmation(label string, total MoneyValue) Confirmation {
	return Confirmation{Type: ConfirmationPaymentMethod, Label: label, Value: moneyPtr(total)}
}
