// Package txengine defines the transaction engine lifecycle shared by every asset
// family: initialize, update the amount, build confirmations, validate, execute.
//
// Callers drive one PendingTransaction through an engine sequentially. Engines do
// not lock around a pending transaction; a session owns both for its lifetime.
package txengine

import (
	"context"

	"github.com/rail-service/txengine/internal/domain/entities"
)

// Kind names an engine implementation
type Kind string

const (
	KindBitcoin  Kind = "bitcoin"
	KindEthereum Kind = "ethereum"
	KindStellar  Kind = "stellar"
	KindBuy      Kind = "buy"
)

// RefreshFunc asks the owner of an engine to rebuild confirmations, for example
// after a quote expires
type RefreshFunc func()

// Engine is implemented by the bitcoin, ethereum, stellar and buy engines only.
// Every engine embeds Base, which provides the unexported method that closes the set.
type Engine interface {
	Kind() Kind

	// Start binds the engine to one source and target. Every other method fails
	// with ErrEngineNotStarted before Start.
	Start(source entities.SourceAccount, target entities.TransactionTarget, refresh RefreshFunc)

	// AssertInputsValid panics when the source or target do not belong to the
	// engine. It guards wiring mistakes, not user input.
	AssertInputsValid()

	InitializeTransaction(ctx context.Context) (entities.PendingTransaction, error)
	Update(ctx context.Context, amount entities.MoneyValue, pending entities.PendingTransaction) (entities.PendingTransaction, error)
	DoOptionUpdateRequest(ctx context.Context, pending entities.PendingTransaction, option entities.Confirmation) (entities.PendingTransaction, error)
	DoBuildConfirmations(ctx context.Context, pending entities.PendingTransaction) (entities.PendingTransaction, error)

	// DoValidateAll returns the pending transaction with its validation state set.
	// A failing check also comes back as a *entities.ValidationFailure error.
	DoValidateAll(ctx context.Context, pending entities.PendingTransaction) (entities.PendingTransaction, error)
	DoUpdateFeeLevel(ctx context.Context, pending entities.PendingTransaction, level entities.FeeLevel, custom *entities.MoneyValue) (entities.PendingTransaction, error)
	Execute(ctx context.Context, pending entities.PendingTransaction, secondPassword string) (entities.TransactionResult, error)
	Restart(ctx context.Context, target entities.TransactionTarget, pending entities.PendingTransaction) (entities.PendingTransaction, error)

	// Stop releases anything the engine holds for the transaction
	Stop(ctx context.Context)

	base() *Base
}

// OrderEngine is an engine backed by a server-side order that must be cancelled
// when the transaction is abandoned
type OrderEngine interface {
	Engine
	CancelOrder(ctx context.Context, orderID string) error
}

// PriceService quotes the price of one unit of base in quote
type PriceService interface {
	Price(ctx context.Context, base, quote entities.Currency) (entities.PriceQuote, error)
}

// SourceOf returns the source account an engine was started with
func SourceOf(e Engine) entities.SourceAccount { return e.base().source }

// TargetOf returns the current target of an engine
func TargetOf(e Engine) entities.TransactionTarget { return e.base().target }
