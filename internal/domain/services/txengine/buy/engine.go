// Package buy is the fiat purchase engine. The source is a payment method, the
// target a custodial crypto account, and executing confirms a server-side order
// created while building confirmations.
package buy

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rail-service/txengine/internal/domain/entities"
	domainerrors "github.com/rail-service/txengine/internal/domain/errors"
	"github.com/rail-service/txengine/internal/domain/services/nabuauth"
	"github.com/rail-service/txengine/internal/domain/services/txengine"
	"github.com/rail-service/txengine/pkg/logger"
)

// OrderClient is the nabu simple-buy API
type OrderClient interface {
	CreateOrder(ctx context.Context, token string, req entities.CreateOrderRequest) (entities.BuyOrder, error)
	ConfirmOrder(ctx context.Context, token, orderID string) (entities.BuyOrder, error)
	CancelOrder(ctx context.Context, token, orderID string) error
	Order(ctx context.Context, token, orderID string) (entities.BuyOrder, error)
}

type LimitsSource interface {
	TradeLimits(ctx context.Context, guid string, fiat entities.Currency, method *entities.PaymentMethod) (entities.TransactionLimits, error)
}

type Engine struct {
	txengine.Base

	guid   string
	orders OrderClient
	auth   nabuauth.Authenticator
	limits LimitsSource

	mu          sync.Mutex
	order       *entities.BuyOrder
	orderAmount entities.MoneyValue // amount the order was created for
	fiatLimits  entities.TransactionLimits
}

// NewEngine builds an engine acting for the wallet guid
func NewEngine(guid string, orders OrderClient, auth nabuauth.Authenticator, limits LimitsSource, prices txengine.PriceService, fiat entities.Currency, log *logger.Logger) *Engine {
	return &Engine{
		Base:   txengine.NewBase(txengine.KindBuy, prices, fiat, log),
		guid:   guid,
		orders: orders,
		auth:   auth,
		limits: limits,
	}
}

func (e *Engine) AssertInputsValid() {
	source := e.Source()
	e.Require(source.Kind == entities.AccountKindPaymentMethod, "source kind %s, want %s", source.Kind, entities.AccountKindPaymentMethod)
	e.Require(source.PaymentMethod != nil, "source has no payment method")
	e.Require(source.Currency.IsFiat(), "source currency %s is not fiat", source.Currency.Code)
	e.Require(e.Target().Kind == entities.TargetKindCustodialAccount, "target kind %s", e.Target().Kind)
	e.Require(e.Target().Currency.IsCrypto(), "target currency %s is not crypto", e.Target().Currency.Code)
}

func (e *Engine) fiat() entities.Currency   { return e.Source().Currency }
func (e *Engine) crypto() entities.Currency { return e.Target().Currency }

func (e *Engine) pair() string {
	return e.crypto().Code + "-" + e.fiat().Code
}

// price is the fiat price of one unit of the crypto currency
func (e *Engine) price(ctx context.Context) (decimal.Decimal, error) {
	return e.Rate(ctx, e.crypto(), e.fiat())
}

// inCurrency converts a fiat amount into currency, which is the fiat or the crypto
func (e *Engine) inCurrency(ctx context.Context, fiat entities.MoneyValue, currency entities.Currency) (entities.MoneyValue, error) {
	if currency.Code == fiat.Currency().Code {
		return fiat, nil
	}
	rate, err := e.price(ctx)
	if err != nil {
		return entities.MoneyValue{}, err
	}
	return fiat.ConvertInverse(rate, currency), nil
}

// toFiat converts an amount in the fiat or the crypto currency to fiat
func (e *Engine) toFiat(ctx context.Context, amount entities.MoneyValue) (entities.MoneyValue, error) {
	if amount.Currency().Code == e.fiat().Code {
		return amount, nil
	}
	rate, err := e.price(ctx)
	if err != nil {
		return entities.MoneyValue{}, err
	}
	return amount.Convert(rate, e.fiat()), nil
}

func (e *Engine) checkAmountCurrency(amount entities.MoneyValue) error {
	switch amount.Currency().Code {
	case e.fiat().Code, e.crypto().Code:
		return nil
	}
	return fmt.Errorf("%w: amount in %s, want %s or %s", entities.ErrCurrencyMismatch, amount.Currency().Code, e.fiat().Code, e.crypto().Code)
}

// InitializeTransaction loads the trade limits for the payment method. Fees are
// only known once an order exists, so they start at zero.
func (e *Engine) InitializeTransaction(ctx context.Context) (out entities.PendingTransaction, err error) {
	ctx, done := e.Trace(ctx, "initialize")
	defer func() { done(err) }()

	if err = e.CheckStarted(); err != nil {
		return entities.PendingTransaction{}, err
	}
	limits, err := e.limits.TradeLimits(ctx, e.guid, e.fiat(), e.Source().PaymentMethod)
	if err != nil {
		return entities.PendingTransaction{}, err
	}
	e.mu.Lock()
	e.fiatLimits = limits
	e.mu.Unlock()

	pending := e.NewPendingTransaction(e.fiat())
	pending.SelectedFiatCurrency = e.fiat()
	return e.Update(ctx, pending.Amount, pending)
}

// Update accepts the amount in fiat or crypto. Limits and available follow the
// amount's currency.
func (e *Engine) Update(ctx context.Context, amount entities.MoneyValue, pending entities.PendingTransaction) (out entities.PendingTransaction, err error) {
	ctx, done := e.Trace(ctx, "update")
	defer func() { done(err) }()

	if err = e.CheckStarted(); err != nil {
		return pending, err
	}
	if err = e.checkAmountCurrency(amount); err != nil {
		return pending, err
	}

	e.mu.Lock()
	fiatLimits := e.fiatLimits
	e.mu.Unlock()

	currency := amount.Currency()
	available, err := e.inCurrency(ctx, e.Source().PaymentMethod.Max, currency)
	if err != nil {
		return pending, err
	}
	minimum, err := e.inCurrency(ctx, fiatLimits.Minimum, currency)
	if err != nil {
		return pending, err
	}
	maximum, err := e.inCurrency(ctx, fiatLimits.Maximum, currency)
	if err != nil {
		return pending, err
	}
	limits := &entities.TransactionLimits{Minimum: minimum, Maximum: maximum, Daily: fiatLimits.Daily}

	if changed, _ := amount.Compare(pending.Amount); changed != 0 || amount.Currency().Code != pending.Amount.Currency().Code {
		pending = e.dropOrder(ctx, pending)
	}

	zero := entities.Zero(currency)
	pending = pending.Update(amount, available, zero, zero)
	pending.Limits = limits
	return pending, nil
}

// dropOrder cancels an order created for a previous amount
func (e *Engine) dropOrder(ctx context.Context, pending entities.PendingTransaction) entities.PendingTransaction {
	id := OrderID(pending)
	if id == "" {
		return pending
	}
	if err := e.CancelOrder(ctx, id); err != nil {
		e.Logger().Warn("Failed to cancel stale buy order", "order_id", id, "error", err)
	}
	return pending.WithoutEngineState(entities.EngineStateOrderID)
}

// OrderID returns the order memoized on pending, or empty
func OrderID(pending entities.PendingTransaction) string {
	v, ok := pending.EngineStateValue(entities.EngineStateOrderID)
	if !ok {
		return ""
	}
	id, _ := v.(string)
	return id
}

// createOrder returns the engine's order while it still matches the pending amount.
// An order for another amount is cancelled before its replacement is created.
func (e *Engine) createOrder(ctx context.Context, pending entities.PendingTransaction) (entities.BuyOrder, error) {
	var stale string
	e.mu.Lock()
	if e.order != nil {
		if same, err := e.orderAmount.Compare(pending.Amount); err == nil && same == 0 {
			order := *e.order
			e.mu.Unlock()
			return order, nil
		}
		stale = e.order.ID
	}
	e.mu.Unlock()

	if stale != "" {
		if err := e.CancelOrder(ctx, stale); err != nil {
			e.Logger().Warn("Failed to cancel stale buy order", "order_id", stale, "error", err)
		}
	}

	input, err := e.toFiat(ctx, pending.Amount)
	if err != nil {
		return entities.BuyOrder{}, err
	}
	method := e.Source().PaymentMethod
	req := entities.CreateOrderRequest{
		Pair:           e.pair(),
		Action:         "BUY",
		Input:          input,
		OutputCurrency: e.crypto().Code,
		PaymentType:    method.Type,
		Pending:        true,
	}
	if method.Type != entities.PaymentMethodFunds {
		req.PaymentMethodID = method.ID
	}
	order, err := nabuauth.Do(ctx, e.auth, e.guid, func(ctx context.Context, token string) (entities.BuyOrder, error) {
		return e.orders.CreateOrder(ctx, token, req)
	})
	if err != nil {
		e.Logger().Error("Buy order creation failed", "pair", req.Pair, "error", err)
		return entities.BuyOrder{}, fmt.Errorf("%w: %w", domainerrors.ErrOrderNotCreated, err)
	}
	e.Logger().Info("Buy order created", "order_id", order.ID, "pair", req.Pair)

	e.mu.Lock()
	e.order = &order
	e.orderAmount = pending.Amount
	e.mu.Unlock()
	return order, nil
}

// DoBuildConfirmations creates the order, whose fee is authoritative, and lists
// the purchase from its values
func (e *Engine) DoBuildConfirmations(ctx context.Context, pending entities.PendingTransaction) (out entities.PendingTransaction, err error) {
	ctx, done := e.Trace(ctx, "build_confirmations")
	defer func() { done(err) }()

	if err = e.CheckStarted(); err != nil {
		return pending, err
	}
	order, err := e.createOrder(ctx, pending)
	if err != nil {
		return pending, err
	}
	pending = pending.WithEngineState(entities.EngineStateOrderID, order.ID)

	rate, err := e.price(ctx)
	if err != nil {
		return pending, err
	}
	total := order.InputValue
	if total.Currency().Code == "" {
		if total, err = e.toFiat(ctx, pending.Amount); err != nil {
			return pending, err
		}
	}
	crypto := order.OutputValue
	if crypto.Currency().Code == "" {
		crypto = total.ConvertInverse(rate, e.crypto())
	}
	fee := order.Fee
	if fee.Currency().Code == "" {
		fee = entities.Zero(total.Currency())
	}
	purchase, err := total.Sub(fee)
	if err != nil {
		return pending, err
	}

	return pending.WithConfirmations([]entities.Confirmation{
		entities.BuyCryptoValueConfirmation(crypto),
		entities.ExchangeRateConfirmation(entities.NewMoneyValue(rate, e.fiat())),
		entities.PurchaseConfirmation(purchase),
		entities.NetworkFeeConfirmation(fee, fee),
		entities.TotalConfirmation(total, total, fee, fee),
		entities.PaymentMethodConfirmation(e.Source().DisplayLabel(), total),
	}), nil
}

func (e *Engine) DoValidateAll(ctx context.Context, pending entities.PendingTransaction) (out entities.PendingTransaction, err error) {
	ctx, done := e.Trace(ctx, "validate")
	defer func() { done(err) }()

	if err = e.CheckStarted(); err != nil {
		return pending, err
	}
	return e.Validated(pending, e.validate(pending))
}

func (e *Engine) validate(pending entities.PendingTransaction) error {
	amount := pending.Amount
	if e.checkAmountCurrency(amount) != nil {
		return entities.NewValidationFailure(entities.ValidationIncorrectSourceCurrency, "amount in %s", amount.Currency().Code)
	}
	if over, err := amount.GreaterThan(pending.MaxSpendable()); err != nil || over {
		return entities.NewValidationFailure(entities.ValidationOverMaximumLimit, "amount %s above %s", amount, pending.MaxSpendable())
	}
	if below, err := amount.LessThan(pending.MinSpendable()); err != nil || below || !amount.IsPositive() {
		return entities.NewValidationFailure(entities.ValidationBelowMinimumLimit, "amount %s below %s", amount, pending.MinSpendable())
	}
	if method := e.Source().PaymentMethod; method.Currency.Code != e.fiat().Code {
		return entities.NewValidationFailure(entities.ValidationIncorrectSourceCurrency, "payment method in %s", method.Currency.Code)
	}
	e.mu.Lock()
	order := e.order
	e.mu.Unlock()
	if order != nil && order.OutputValue.Currency().Code != "" && order.OutputValue.Currency().Code != e.crypto().Code {
		return entities.NewValidationFailure(entities.ValidationIncorrectDestinationCurrency, "order delivers %s", order.OutputValue.Currency().Code)
	}
	return nil
}

// DoUpdateFeeLevel always fails, buy fees are set by the order
func (e *Engine) DoUpdateFeeLevel(_ context.Context, pending entities.PendingTransaction, _ entities.FeeLevel, _ *entities.MoneyValue) (entities.PendingTransaction, error) {
	return pending, domainerrors.ErrFeesAreFixed
}

// Execute confirms the order created for pending
func (e *Engine) Execute(ctx context.Context, pending entities.PendingTransaction, _ string) (result entities.TransactionResult, err error) {
	ctx, done := e.Trace(ctx, "execute")
	defer func() { done(err) }()

	if err = e.BeginExecute(); err != nil {
		return result, err
	}
	id := OrderID(pending)
	if id == "" {
		e.AbortExecute()
		return result, domainerrors.ErrOrderNotCreated
	}

	order, err := nabuauth.Do(ctx, e.auth, e.guid, func(ctx context.Context, token string) (entities.BuyOrder, error) {
		return e.orders.ConfirmOrder(ctx, token, id)
	})
	if err != nil {
		e.Logger().Error("Buy order confirmation failed", "order_id", id, "error", err)
		return result, err
	}
	e.mu.Lock()
	e.order = nil
	e.mu.Unlock()

	e.Logger().Info("Buy order confirmed", "order_id", order.ID, "state", string(order.State))
	return entities.UnHashedResult(pending.Amount, &order), nil
}

// CancelOrder cancels orderID server-side and forgets it
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	err := e.auth.Authenticate(ctx, e.guid, func(ctx context.Context, token string) error {
		return e.orders.CancelOrder(ctx, token, orderID)
	})
	if err != nil {
		return err
	}
	e.mu.Lock()
	if e.order != nil && e.order.ID == orderID {
		e.order = nil
	}
	e.mu.Unlock()
	e.Logger().Info("Buy order cancelled", "order_id", orderID)
	return nil
}

var _ txengine.OrderEngine = (*Engine)(nil)
