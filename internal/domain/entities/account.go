package entities

import "fmt"

// AccountKind distinguishes where the funds of a source account live
type AccountKind string

const (
	AccountKindNonCustodial  AccountKind = "non_custodial"
	AccountKindCustodial     AccountKind = "custodial"
	AccountKindPaymentMethod AccountKind = "payment_method"
)

// SourceAccount is the account a transaction draws from. PaymentMethod is set only
// for payment method sources.
type SourceAccount struct {
	ID            string         `json:"id"`
	Label         string         `json:"label"`
	Kind          AccountKind    `json:"kind"`
	Currency      Currency       `json:"currency"`
	Network       string         `json:"network,omitempty"`
	Address       string         `json:"address,omitempty"`
	PaymentMethod *PaymentMethod `json:"paymentMethod,omitempty"`
}

// TargetKind identifies the concrete destination type
type TargetKind string

const (
	TargetKindAddress          TargetKind = "address"
	TargetKindCustodialAccount TargetKind = "custodial_account"
)

// TransactionTarget is the destination of a transaction
type TransactionTarget struct {
	Kind      TargetKind `json:"kind"`
	Label     string     `json:"label,omitempty"`
	Currency  Currency   `json:"currency"`
	Network   string     `json:"network,omitempty"`
	Address   string     `json:"address,omitempty"`
	AccountID string     `json:"accountId,omitempty"`
	Memo      *Memo      `json:"memo,omitempty"`
}

// DisplayLabel is the label shown in destination confirmations
func (t TransactionTarget) DisplayLabel() string {
	if t.Label != "" {
		return t.Label
	}
	if t.Address != "" {
		return t.Address
	}
	return fmt.Sprintf("%s account", t.Currency.Code)
}

// DisplayLabel is the label shown in source confirmations
func (s SourceAccount) DisplayLabel() string {
	if s.Label != "" {
		return s.Label
	}
	return fmt.Sprintf("%s wallet", s.Currency.Code)
}
