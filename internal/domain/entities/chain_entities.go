package entities

import (
	"time"

	"github.com/google/uuid"
)

// UnspentOutput is a spendable bitcoin output, value in satoshis
type UnspentOutput struct {
	TxHash        string `json:"txHash"`
	Index         uint32 `json:"index"`
	Value         int64  `json:"value"`
	Script        string `json:"script"`
	Confirmations int64  `json:"confirmations"`
}

// StellarAccount is the ledger state of a stellar account. Exists is false for
// destinations that have never been funded.
type StellarAccount struct {
	AccountID     string     `json:"accountId"`
	Balance       MoneyValue `json:"balance"`
	Sequence      int64      `json:"sequence"`
	SubentryCount uint32     `json:"subentryCount"`
	Exists        bool       `json:"exists"`
}

// ExecutedTransaction is the audit record written after a successful execute
type ExecutedTransaction struct {
	ID              uuid.UUID             `json:"id" db:"id"`
	SessionID       string                `json:"sessionId" db:"session_id"`
	Engine          string                `json:"engine" db:"engine"`
	SourceAccountID string                `json:"sourceAccountId" db:"source_account_id"`
	Destination     string                `json:"destination" db:"destination"`
	Currency        string                `json:"currency" db:"currency"`
	Amount          string                `json:"amount" db:"amount"`
	Fee             string                `json:"fee" db:"fee"`
	ResultKind      TransactionResultKind `json:"resultKind" db:"result_kind"`
	TxHash          *string               `json:"txHash,omitempty" db:"tx_hash"`
	OrderID         *string               `json:"orderId,omitempty" db:"order_id"`
	CreatedAt       time.Time             `json:"createdAt" db:"created_at"`
}
