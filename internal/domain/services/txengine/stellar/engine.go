// Package stellar is the ledger-reserve engine for XLM payments. Spendable
// balance keeps the account's minimum reserve, exchange destinations need a memo
// and every payment is dry run against the ledger rules before it is signed.
package stellar

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rail-service/txengine/internal/domain/entities"
	domainerrors "github.com/rail-service/txengine/internal/domain/errors"
	"github.com/rail-service/txengine/internal/domain/services/txengine"
	"github.com/rail-service/txengine/internal/infrastructure/adapters/signer"
	"github.com/rail-service/txengine/pkg/logger"
)

type AccountSource interface {
	Account(ctx context.Context, accountID string) (entities.StellarAccount, error)
	Invalidate(ctx context.Context, accountID string)
}

type FeeSource interface {
	Fees(ctx context.Context, asset entities.Currency, network string) (entities.FeeSchedule, error)
}

type Signer interface {
	SignStellar(ctx context.Context, req signer.StellarSignRequest, secondPassword string) (string, error)
}

type Submitter interface {
	StellarSubmit(ctx context.Context, envelope string) (string, error)
}

// Config holds the ledger parameters, in XLM
type Config struct {
	BaseReserve       decimal.Decimal
	BaseFee           decimal.Decimal
	ExchangeAddresses []string
}

type Engine struct {
	txengine.Base

	baseReserve entities.MoneyValue
	baseFee     entities.MoneyValue
	exchanges   ExchangeDirectory
	accounts    AccountSource
	fees        FeeSource
	signer      Signer
	submitter   Submitter
}

func NewEngine(cfg Config, accounts AccountSource, fees FeeSource, sign Signer, submitter Submitter, prices txengine.PriceService, fiat entities.Currency, log *logger.Logger) *Engine {
	return &Engine{
		Base:        txengine.NewBase(txengine.KindStellar, prices, fiat, log),
		baseReserve: entities.NewMoneyValue(cfg.BaseReserve, entities.XLM),
		baseFee:     entities.NewMoneyValue(cfg.BaseFee, entities.XLM),
		exchanges:   NewExchangeDirectory(cfg.ExchangeAddresses),
		accounts:    accounts,
		fees:        fees,
		signer:      sign,
		submitter:   submitter,
	}
}

func (e *Engine) AssertInputsValid() {
	e.RequireInputs([]entities.Currency{entities.XLM}, entities.AccountKindNonCustodial, entities.TargetKindAddress)
	e.Require(e.Target().Currency.Code == entities.XLM.Code, "target currency %s", e.Target().Currency.Code)
}

func (e *Engine) memoRequired() bool {
	return e.exchanges.IsExchangeAddress(e.Target().Address)
}

// fee is the per-operation fee from the fee service, never below the ledger base fee.
// The base fee is used when the fee service is unavailable.
func (e *Engine) fee(ctx context.Context) entities.MoneyValue {
	schedule, err := e.fees.Fees(ctx, entities.XLM, "")
	if err != nil {
		e.Logger().Warn("Using base fee, fee service unavailable", "error", err)
		return e.baseFee
	}
	fee := entities.MoneyFromMinor(schedule.Regular.BigInt(), entities.XLM)
	if less, _ := fee.LessThan(e.baseFee); less {
		return e.baseFee
	}
	return fee
}

// account loads ledger details; an unfunded account has a zero XLM balance
func (e *Engine) account(ctx context.Context, accountID string) (entities.StellarAccount, error) {
	account, err := e.accounts.Account(ctx, accountID)
	if err != nil {
		return account, fmt.Errorf("failed to fetch stellar account: %w", err)
	}
	if account.AccountID == "" {
		account.AccountID = accountID
	}
	if !account.Exists || account.Balance.Currency().Code == "" {
		account.Balance = entities.Zero(entities.XLM)
	}
	return account, nil
}

func withMemo(pending entities.PendingTransaction, memo *entities.Memo) entities.PendingTransaction {
	if emptyMemo(memo) {
		return pending.WithoutEngineState(entities.EngineStateMemo)
	}
	return pending.WithEngineState(entities.EngineStateMemo, *memo)
}

func (e *Engine) InitializeTransaction(ctx context.Context) (entities.PendingTransaction, error) {
	if err := e.CheckStarted(); err != nil {
		return entities.PendingTransaction{}, err
	}
	pending := e.NewPendingTransaction(entities.XLM, entities.FeeLevelRegular)
	pending = withMemo(pending, e.Target().Memo)
	return e.Update(ctx, pending.Amount, pending)
}

// Update sets available to the balance minus fee and minimum reserve
func (e *Engine) Update(ctx context.Context, amount entities.MoneyValue, pending entities.PendingTransaction) (out entities.PendingTransaction, err error) {
	ctx, done := e.Trace(ctx, "update")
	defer func() { done(err) }()

	if err = e.CheckStarted(); err != nil {
		return pending, err
	}
	if err = txengine.CheckAmountCurrency(amount, entities.XLM); err != nil {
		return pending, err
	}
	account, err := e.account(ctx, e.Source().Address)
	if err != nil {
		return pending, err
	}
	fee := e.fee(ctx)
	reserve := MinRequiredReserve(account.SubentryCount, e.baseReserve)
	available, err := MaxSpendable(account.Balance, fee, reserve)
	if err != nil {
		return pending, err
	}
	return pending.Update(amount, available, fee, fee), nil
}

func (e *Engine) DoBuildConfirmations(ctx context.Context, pending entities.PendingTransaction) (out entities.PendingTransaction, err error) {
	ctx, done := e.Trace(ctx, "build_confirmations")
	defer func() { done(err) }()

	if err = e.CheckStarted(); err != nil {
		return pending, err
	}
	confirmations, err := e.TransferConfirmations(ctx, pending)
	if err != nil {
		return pending, err
	}
	confirmations = append(confirmations, entities.MemoConfirmation(pending.Memo(), e.memoRequired()))
	return pending.WithConfirmations(confirmations), nil
}

// DoOptionUpdateRequest stores a memo entered by the user
func (e *Engine) DoOptionUpdateRequest(ctx context.Context, pending entities.PendingTransaction, option entities.Confirmation) (entities.PendingTransaction, error) {
	if option.Type != entities.ConfirmationMemo {
		return e.Base.DoOptionUpdateRequest(ctx, pending, option)
	}
	pending = withMemo(pending, option.Memo)
	if pending.HasConfirmation(entities.ConfirmationMemo) {
		pending = pending.ReplaceConfirmation(entities.MemoConfirmation(pending.Memo(), e.memoRequired()))
	}
	return pending, nil
}

func (e *Engine) DoValidateAll(ctx context.Context, pending entities.PendingTransaction) (out entities.PendingTransaction, err error) {
	ctx, done := e.Trace(ctx, "validate")
	defer func() { done(err) }()

	if err = e.CheckStarted(); err != nil {
		return pending, err
	}
	return e.Validated(pending, e.validate(ctx, pending))
}

func (e *Engine) validate(ctx context.Context, pending entities.PendingTransaction) error {
	target := e.Target().Address
	if !IsValidAccountID(target) {
		return entities.NewValidationFailure(entities.ValidationInvalidAddress, "%q is not a stellar account id", target)
	}

	source, err := e.account(ctx, e.Source().Address)
	if err != nil {
		return err
	}
	fee := e.fee(ctx)
	total, err := pending.Amount.Add(fee)
	if err != nil {
		return err
	}
	if over, _ := total.GreaterThan(source.Balance); over {
		return entities.NewValidationFailure(entities.ValidationInsufficientFunds, "amount plus fee %s exceeds balance %s", total, source.Balance)
	}

	if err := ValidateMemo(pending.Memo(), e.memoRequired()); err != nil {
		return err
	}

	destination, err := e.account(ctx, target)
	if err != nil {
		return err
	}
	err = DryRun(SendDetails{
		Source:      source,
		Destination: destination,
		Value:       pending.Amount,
		Fee:         fee,
		Memo:        pending.Memo(),
	}, e.baseReserve)
	var rejected *DryRunError
	if errors.As(err, &rejected) {
		return rejected.ValidationFailure()
	}
	return err
}

// DoUpdateFeeLevel accepts only the regular level
func (e *Engine) DoUpdateFeeLevel(ctx context.Context, pending entities.PendingTransaction, level entities.FeeLevel, custom *entities.MoneyValue) (entities.PendingTransaction, error) {
	if level != entities.FeeLevelRegular {
		return pending, fmt.Errorf("%w: %s", domainerrors.ErrUnsupportedFeeLevel, level)
	}
	return e.Update(ctx, pending.Amount, pending.WithFeeLevel(level, custom))
}

// Restart drops the previous memo and applies the one carried by the new target
func (e *Engine) Restart(ctx context.Context, target entities.TransactionTarget, pending entities.PendingTransaction) (entities.PendingTransaction, error) {
	pending, err := e.Base.Restart(ctx, target, pending)
	if err != nil {
		return pending, err
	}
	return withMemo(pending, target.Memo), nil
}

// Execute pays an existing destination or creates it with the amount as its
// starting balance.
func (e *Engine) Execute(ctx context.Context, pending entities.PendingTransaction, secondPassword string) (result entities.TransactionResult, err error) {
	ctx, done := e.Trace(ctx, "execute")
	defer func() { done(err) }()

	if err = e.BeginExecute(); err != nil {
		return result, err
	}
	broadcast := false
	defer func() {
		if err != nil && !broadcast {
			e.AbortExecute()
		}
	}()

	target := e.Target().Address
	if !IsValidAccountID(target) {
		return result, entities.NewValidationFailure(entities.ValidationInvalidAddress, "%s", target)
	}
	source, err := e.account(ctx, e.Source().Address)
	if err != nil {
		return result, err
	}
	destination, err := e.account(ctx, target)
	if err != nil {
		return result, err
	}
	operation := signer.StellarOperationPayment
	if !destination.Exists {
		operation = signer.StellarOperationCreateAccount
	}

	envelope, err := e.signer.SignStellar(ctx, signer.StellarSignRequest{
		AccountID:   e.Source().ID,
		Source:      e.Source().Address,
		Operation:   operation,
		Destination: target,
		Amount:      pending.Amount.Amount().StringFixed(entities.XLM.Precision),
		FeeStroops:  pending.FeeAmount.MinorInt64(),
		Sequence:    source.Sequence + 1,
		Memo:        pending.Memo(),
	}, secondPassword)
	if err != nil {
		return result, fmt.Errorf("%w: %w", domainerrors.ErrSigningFailed, err)
	}

	broadcast = true
	hash, err := e.submitter.StellarSubmit(ctx, envelope)
	e.accounts.Invalidate(ctx, e.Source().Address)
	e.accounts.Invalidate(ctx, target)
	if err != nil {
		return result, fmt.Errorf("%w: %w", domainerrors.ErrBroadcastFailed, err)
	}

	e.Logger().Info("Stellar transaction submitted", "tx_hash", hash, "operation", string(operation))
	return entities.HashedResult(hash, pending.Amount), nil
}

var _ txengine.Engine = (*Engine)(nil)
