package txengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/atomic"

	"github.com/rail-service/txengine/internal/domain/entities"
	domainerrors "github.com/rail-service/txengine/internal/domain/errors"
	"github.com/rail-service/txengine/pkg/logger"
	"github.com/rail-service/txengine/pkg/metrics"
	"github.com/rail-service/txengine/pkg/tracing"
)

// Base carries the state and helpers every engine shares. Engines embed it by value.
type Base struct {
	kind   Kind
	prices PriceService
	fiat   entities.Currency
	logger *logger.Logger

	source  entities.SourceAccount
	target  entities.TransactionTarget
	refresh RefreshFunc
	started bool

	executing *atomic.Bool
}

// NewBase builds the shared part of an engine. fiat is the currency confirmations
// are converted into.
func NewBase(kind Kind, prices PriceService, fiat entities.Currency, log *logger.Logger) Base {
	if log == nil {
		log = logger.NewLogger(nil)
	}
	return Base{
		kind:      kind,
		prices:    prices,
		fiat:      fiat,
		logger:    log.With("engine", string(kind)),
		executing: atomic.NewBool(false),
	}
}

func (b *Base) base() *Base { return b }

func (b *Base) Kind() Kind { return b.kind }

func (b *Base) Start(source entities.SourceAccount, target entities.TransactionTarget, refresh RefreshFunc) {
	b.source = source
	b.target = target
	b.refresh = refresh
	b.started = true
	b.executing.Store(false)
}

func (b *Base) Source() entities.SourceAccount { return b.source }
func (b *Base) Target() entities.TransactionTarget { return b.target }
func (b *Base) FiatCurrency() entities.Currency { return b.fiat }
func (b *Base) Logger() *logger.Logger { return b.logger }
func (b *Base) SetTarget(t entities.TransactionTarget) { b.target = t }

// CheckStarted fails with ErrEngineNotStarted until Start has been called
func (b *Base) CheckStarted() error {
	if !b.started {
		return domainerrors.ErrEngineNotStarted
	}
	return nil
}

// Refresh notifies the engine owner that confirmations are stale
func (b *Base) Refresh() {
	if b.refresh != nil {
		b.refresh()
	}
}

// Stop is a no-op for engines without server-side state
func (b *Base) Stop(context.Context) {}

// DoOptionUpdateRequest rejects options; engines with options override it
func (b *Base) DoOptionUpdateRequest(_ context.Context, pending entities.PendingTransaction, option entities.Confirmation) (entities.PendingTransaction, error) {
	return pending, fmt.Errorf("%w: %s", domainerrors.ErrUnsupportedOption, option.Type)
}

// Restart rebinds the target and drops confirmations built for the previous one.
// Amount and fee selection are kept.
func (b *Base) Restart(_ context.Context, target entities.TransactionTarget, pending entities.PendingTransaction) (entities.PendingTransaction, error) {
	if err := b.CheckStarted(); err != nil {
		return pending, err
	}
	b.SetTarget(target)
	pending = pending.WithConfirmations(nil).WithValidationState(entities.ValidationUninitialized)
	return pending, nil
}

// Require panics when cond is false. It reports wiring mistakes.
func (b *Base) Require(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf("%s engine: %s", b.kind, fmt.Sprintf(format, args...)))
	}
}

// RequireInputs checks the source currency and the target kind
func (b *Base) RequireInputs(currencies []entities.Currency, sourceKind entities.AccountKind, targetKind entities.TargetKind) {
	b.Require(b.started, "not started")
	supported := false
	for _, c := range currencies {
		if b.source.Currency.Code == c.Code {
			supported = true
			break
		}
	}
	b.Require(supported, "unsupported source currency %s", b.source.Currency.Code)
	b.Require(b.source.Kind == sourceKind, "source kind %s, want %s", b.source.Kind, sourceKind)
	b.Require(b.target.Kind == targetKind, "target kind %s, want %s", b.target.Kind, targetKind)
}

// NewPendingTransaction is a zero-amount transaction in currency with the given fee levels
func (b *Base) NewPendingTransaction(currency entities.Currency, levels ...entities.FeeLevel) entities.PendingTransaction {
	selected := entities.FeeLevelNone
	if len(levels) > 0 {
		selected = levels[0]
	} else {
		levels = []entities.FeeLevel{entities.FeeLevelNone}
	}
	zero := entities.Zero(currency)
	return entities.PendingTransaction{
		Amount:              zero,
		Available:           zero,
		FeeAmount:           zero,
		FeeForFullAvailable: zero,
		FeeSelection: entities.FeeSelection{
			SelectedLevel:   selected,
			AvailableLevels: levels,
			Asset:           currency,
		},
		SelectedFiatCurrency: b.fiat,
		ValidationState:      entities.ValidationUninitialized,
	}
}

// CheckAmountCurrency rejects amounts that are not in currency
func CheckAmountCurrency(amount entities.MoneyValue, currency entities.Currency) error {
	if amount.Currency().Code != currency.Code {
		return fmt.Errorf("%w: amount in %s, engine sends %s", entities.ErrCurrencyMismatch, amount.Currency().Code, currency.Code)
	}
	return nil
}

// Rate fetches a fresh price of one unit of from in to
func (b *Base) Rate(ctx context.Context, from, to entities.Currency) (decimal.Decimal, error) {
	if from.Code == to.Code {
		return decimal.NewFromInt(1), nil
	}
	quote, err := b.prices.Price(ctx, from, to)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s/%s: %w", domainerrors.ErrPriceUnavailable, from.Code, to.Code, err)
	}
	return quote.Rate, nil
}

// FiatValue converts value into the fiat currency of the pending transaction
func (b *Base) FiatValue(ctx context.Context, value entities.MoneyValue, fiat entities.Currency) (entities.MoneyValue, error) {
	rate, err := b.Rate(ctx, value.Currency(), fiat)
	if err != nil {
		return entities.MoneyValue{}, err
	}
	return value.Convert(rate, fiat), nil
}

// TransferConfirmations builds the line items common to on-chain sends, in display
// order: amount, source, destination, fee selection, network fee, total.
// The fee must be in the same currency as the amount.
func (b *Base) TransferConfirmations(ctx context.Context, pending entities.PendingTransaction) ([]entities.Confirmation, error) {
	fiat := pending.SelectedFiatCurrency
	if fiat.Code == "" {
		fiat = b.fiat
	}
	rate, err := b.Rate(ctx, pending.Amount.Currency(), fiat)
	if err != nil {
		return nil, err
	}
	total, err := pending.Amount.Add(pending.FeeAmount)
	if err != nil {
		return nil, err
	}
	amountFiat := pending.Amount.Convert(rate, fiat)
	feeFiat := pending.FeeAmount.Convert(rate, fiat)
	totalFiat := total.Convert(rate, fiat)

	return []entities.Confirmation{
		entities.AmountConfirmation(pending.Amount, amountFiat),
		entities.SourceConfirmation(b.source.DisplayLabel()),
		entities.DestinationConfirmation(b.target.DisplayLabel()),
		entities.FeeSelectionConfirmation(pending.FeeLevel(), pending.FeeAmount),
		entities.NetworkFeeConfirmation(pending.FeeAmount, feeFiat),
		entities.TotalConfirmation(total, totalFiat, pending.FeeAmount, feeFiat),
	}, nil
}

// Validated records the outcome of a validation pass on pending. Validation
// failures are expected user input and are logged at debug; anything else is
// reported as unknownError with the original error.
func (b *Base) Validated(pending entities.PendingTransaction, err error) (entities.PendingTransaction, error) {
	state := entities.ValidationStateOf(err)
	pending = pending.WithValidationState(state)
	if err == nil {
		return pending, nil
	}
	metrics.ValidationFailures.WithLabelValues(string(b.kind), string(state)).Inc()
	var failure *entities.ValidationFailure
	if errors.As(err, &failure) {
		b.logger.Debug("Transaction validation failed", "state", string(state), "reason", failure.Message)
	} else {
		b.logger.Warn("Transaction validation errored", "error", err)
	}
	return pending, err
}

// BeginExecute guards against executing the same started transaction twice
func (b *Base) BeginExecute() error {
	if err := b.CheckStarted(); err != nil {
		return err
	}
	if !b.executing.CompareAndSwap(false, true) {
		return domainerrors.ErrAlreadySent
	}
	return nil
}

// AbortExecute allows another Execute after a failure that happened before
// anything was broadcast
func (b *Base) AbortExecute() {
	b.executing.Store(false)
}

// Trace starts a span for an engine operation. The returned func ends it and
// records the operation metric.
func (b *Base) Trace(ctx context.Context, operation string) (context.Context, func(error)) {
	ctx, span := tracing.StartSpan(ctx, "txengine."+operation,
		attribute.String("engine", string(b.kind)),
		attribute.String("source.currency", b.source.Currency.Code))
	return ctx, func(err error) {
		metrics.ObserveEngine(string(b.kind), operation, err)
		tracing.EndSpan(span, err)
	}
}
