package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethodType is how a buy is funded
type PaymentMethodType string

const (
	PaymentMethodCard         PaymentMethodType = "PAYMENT_CARD"
	PaymentMethodBankTransfer PaymentMethodType = "BANK_TRANSFER"
	PaymentMethodFunds        PaymentMethodType = "FUNDS"
)

// PaymentMethod is a funding source with its own limits
type PaymentMethod struct {
	ID       string            `json:"id"`
	Type     PaymentMethodType `json:"type"`
	Label    string            `json:"label"`
	Currency Currency          `json:"currency"`
	Min      MoneyValue        `json:"min"`
	Max      MoneyValue        `json:"max"`
}

// OrderState is the server-side state of a buy order
type OrderState string

const (
	OrderStatePendingConfirmation OrderState = "PENDING_CONFIRMATION"
	OrderStatePendingDeposit      OrderState = "PENDING_DEPOSIT"
	OrderStateDepositMatched      OrderState = "DEPOSIT_MATCHED"
	OrderStateFinished            OrderState = "FINISHED"
	OrderStateCancelled           OrderState = "CANCELED"
	OrderStateFailed              OrderState = "FAILED"
	OrderStateExpired             OrderState = "EXPIRED"
)

// IsFinal reports whether no further transitions are expected
func (s OrderState) IsFinal() bool {
	switch s {
	case OrderStateFinished, OrderStateCancelled, OrderStateFailed, OrderStateExpired:
		return true
	}
	return false
}

// BuyOrder is a custodial buy order
type BuyOrder struct {
	ID              string            `json:"id"`
	State           OrderState        `json:"state"`
	InputValue      MoneyValue        `json:"inputValue"`
	OutputValue     MoneyValue        `json:"outputValue"`
	Fee             MoneyValue        `json:"fee"`
	Price           decimal.Decimal   `json:"price"`
	PaymentMethodID string            `json:"paymentMethodId"`
	PaymentType     PaymentMethodType `json:"paymentType"`
	CreatedAt       time.Time         `json:"createdAt"`
	ExpiresAt       time.Time         `json:"expiresAt,omitempty"`
}

// CreateOrderRequest opens a provisional order to learn its authoritative fee
type CreateOrderRequest struct {
	Pair            string            `json:"pair"`
	Action          string            `json:"action"`
	Input           MoneyValue        `json:"input"`
	OutputCurrency  string            `json:"outputCurrency"`
	PaymentMethodID string            `json:"paymentMethodId,omitempty"`
	PaymentType     PaymentMethodType `json:"paymentType"`
	Pending         bool              `json:"pending"`
}

// PriceQuote is an exchange rate between two currencies
type PriceQuote struct {
	Base      Currency        `json:"base"`
	Quote     Currency        `json:"quote"`
	Rate      decimal.Decimal `json:"rate"`
	Timestamp time.Time       `json:"timestamp"`
}
