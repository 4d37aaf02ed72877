// Package bitcoin is the UTXO transaction engine. Amounts move in satoshi through
// txauthor coin selection; signing happens in the external signer.
package bitcoin

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/shopspring/decimal"

	"github.com/rail-service/txengine/internal/domain/entities"
	domainerrors "github.com/rail-service/txengine/internal/domain/errors"
	"github.com/rail-service/txengine/internal/domain/services/txengine"
	"github.com/rail-service/txengine/internal/infrastructure/adapters/signer"
	"github.com/rail-service/txengine/pkg/logger"
)

type UnspentOutputSource interface {
	UnspentOutputs(ctx context.Context, address string) ([]entities.UnspentOutput, error)
	Invalidate(ctx context.Context, address string)
}

type FeeSource interface {
	Fees(ctx context.Context, asset entities.Currency, network string) (entities.FeeSchedule, error)
}

type Signer interface {
	SignBitcoin(ctx context.Context, req signer.BitcoinSignRequest, secondPassword string) (string, error)
}

type Broadcaster interface {
	BTCPush(ctx context.Context, rawTx string) (string, error)
}

// Config holds the chain parameters and the fiat value above which a send needs
// an explicit acknowledgement. A zero threshold disables the warning.
type Config struct {
	Params               *chaincfg.Params
	LargeTransactionFiat decimal.Decimal
}

// ParamsForNetwork maps a configured network name to chain parameters
func ParamsForNetwork(name string) (*chaincfg.Params, error) {
	switch name {
	case "", "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	}
	return nil, fmt.Errorf("unknown bitcoin network %q", name)
}

type Engine struct {
	txengine.Base

	cfg      Config
	utxos    UnspentOutputSource
	fees     FeeSource
	signer   Signer
	chain    Broadcaster
	selector *CoinSelector
}

func NewEngine(cfg Config, utxos UnspentOutputSource, fees FeeSource, sign Signer, chain Broadcaster, prices txengine.PriceService, fiat entities.Currency, log *logger.Logger) *Engine {
	if cfg.Params == nil {
		cfg.Params = &chaincfg.MainNetParams
	}
	return &Engine{
		Base:     txengine.NewBase(txengine.KindBitcoin, prices, fiat, log),
		cfg:      cfg,
		utxos:    utxos,
		fees:     fees,
		signer:   sign,
		chain:    chain,
		selector: NewCoinSelector(),
	}
}

func sats(m entities.MoneyValue) btcutil.Amount { return btcutil.Amount(m.MinorInt64()) }

func btc(a btcutil.Amount) entities.MoneyValue {
	return entities.MoneyFromMinorInt64(int64(a), entities.BTC)
}

func (e *Engine) AssertInputsValid() {
	e.RequireInputs([]entities.Currency{entities.BTC}, entities.AccountKindNonCustodial, entities.TargetKindAddress)
	e.Require(e.Target().Currency.Code == entities.BTC.Code, "target currency %s", e.Target().Currency.Code)
}

func (e *Engine) script(address string) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, e.cfg.Params)
	if err != nil {
		return nil, err
	}
	if !addr.IsForNet(e.cfg.Params) {
		return nil, fmt.Errorf("address %s is not for %s", address, e.cfg.Params.Name)
	}
	return txscript.PayToAddrScript(addr)
}

// proposal gathers the outputs and fee rate for amount. An undecodable destination
// is sized like the change output so the estimate stays useful until validation
// reports the address.
func (e *Engine) proposal(ctx context.Context, amount entities.MoneyValue, level entities.FeeLevel) (Proposal, error) {
	change, err := e.script(e.Source().Address)
	if err != nil {
		return Proposal{}, fmt.Errorf("invalid source address: %w", err)
	}
	destination, err := e.script(e.Target().Address)
	if err != nil {
		destination = change
	}
	outputs, err := e.utxos.UnspentOutputs(ctx, e.Source().Address)
	if err != nil {
		return Proposal{}, fmt.Errorf("failed to fetch unspent outputs: %w", err)
	}
	schedule, err := e.fees.Fees(ctx, entities.BTC, "")
	if err != nil {
		return Proposal{}, fmt.Errorf("failed to fetch bitcoin fees: %w", err)
	}
	return Proposal{
		DestinationScript: destination,
		ChangeScript:      change,
		Amount:            sats(amount),
		FeeRate:           btcutil.Amount(schedule.ForLevel(level).IntPart()),
		Outputs:           outputs,
	}, nil
}

func (e *Engine) InitializeTransaction(ctx context.Context) (entities.PendingTransaction, error) {
	if err := e.CheckStarted(); err != nil {
		return entities.PendingTransaction{}, err
	}
	pending := e.NewPendingTransaction(entities.BTC, entities.FeeLevelRegular, entities.FeeLevelPriority)
	return e.Update(ctx, pending.Amount, pending)
}

// Update never fails on coin selection: an infeasible amount leaves the sweep
// amount as available so the user can be offered what can actually be sent.
func (e *Engine) Update(ctx context.Context, amount entities.MoneyValue, pending entities.PendingTransaction) (out entities.PendingTransaction, err error) {
	ctx, done := e.Trace(ctx, "update")
	defer func() { done(err) }()

	if err = e.CheckStarted(); err != nil {
		return pending, err
	}
	if err = txengine.CheckAmountCurrency(amount, entities.BTC); err != nil {
		return pending, err
	}
	p, err := e.proposal(ctx, amount, pending.FeeLevel())
	if err != nil {
		return pending, err
	}

	candidate, selErr := e.selector.Select(p)
	var fee, available, feeForFull btcutil.Amount
	var coinErr *CoinSelectionError
	switch {
	case selErr == nil:
		fee, available, feeForFull = candidate.Fee, candidate.SweepAmount, candidate.SweepFee
	case errors.As(selErr, &coinErr):
		fee, available, feeForFull = coinErr.FinalFee, coinErr.SweepAmount, coinErr.SweepFee
		e.Logger().Debug("Coin selection fell back to sweep", "kind", string(coinErr.Kind), "sweep", int64(coinErr.SweepAmount))
	}
	return pending.Update(amount, btc(available), btc(fee), btc(feeForFull)), nil
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

	threshold := e.cfg.LargeTransactionFiat
	if threshold.IsPositive() && confirmations[0].FiatValue != nil &&
		confirmations[0].FiatValue.Amount().GreaterThan(threshold) {
		warning := entities.LargeTransactionWarning(*confirmations[0].FiatValue)
		if prev, ok := pending.Confirmation(entities.ConfirmationLargeTransactionWarning); ok {
			warning.Acknowledged = prev.Acknowledged
		}
		confirmations = append(confirmations, warning)
	}
	return pending.WithConfirmations(confirmations), nil
}

// DoOptionUpdateRequest accepts the acknowledgement of a large transaction warning
func (e *Engine) DoOptionUpdateRequest(ctx context.Context, pending entities.PendingTransaction, option entities.Confirmation) (entities.PendingTransaction, error) {
	if option.Type != entities.ConfirmationLargeTransactionWarning {
		return e.Base.DoOptionUpdateRequest(ctx, pending, option)
	}
	current, ok := pending.Confirmation(entities.ConfirmationLargeTransactionWarning)
	if !ok {
		return pending, nil
	}
	current.Acknowledged = option.Acknowledged
	return pending.ReplaceConfirmation(current), nil
}

func (e *Engine) DoValidateAll(ctx context.Context, pending entities.PendingTransaction) (out entities.PendingTransaction, err error) {
	_, done := e.Trace(ctx, "validate")
	defer func() { done(err) }()

	if err = e.CheckStarted(); err != nil {
		return pending, err
	}
	return e.Validated(pending, e.validate(pending))
}

func (e *Engine) validate(pending entities.PendingTransaction) error {
	if err := e.validateAmount(pending); err != nil {
		return err
	}
	if _, err := e.script(e.Target().Address); err != nil {
		return entities.NewValidationFailure(entities.ValidationInvalidAddress, "%s", err.Error())
	}
	if warning, ok := pending.Confirmation(entities.ConfirmationLargeTransactionWarning); ok && !warning.Acknowledged {
		return entities.NewValidationFailure(entities.ValidationOptionInvalid, "large transaction warning not acknowledged")
	}
	return nil
}

func (e *Engine) validateAmount(pending entities.PendingTransaction) error {
	amount := pending.Amount
	if amount.Currency().Code != entities.BTC.Code {
		return entities.NewValidationFailure(entities.ValidationIncorrectSourceCurrency, "%s", amount.Currency().Code)
	}
	if amount.Minor().Cmp(big.NewInt(int64(MaxSupply))) > 0 {
		return entities.NewValidationFailure(entities.ValidationOverMaximumLimit, "amount exceeds the bitcoin supply")
	}

	destination, err := e.script(e.Target().Address)
	if err != nil {
		destination, err = e.script(e.Source().Address)
		if err != nil {
			return entities.NewValidationFailure(entities.ValidationInvalidAddress, "%s", err.Error())
		}
	}
	sat := sats(amount)
	if sat <= 0 || e.selector.IsDust(sat, destination) {
		return entities.NewValidationFailure(entities.ValidationInvalidAmount, "amount %s is below the dust threshold", amount)
	}

	if over, _ := amount.GreaterThan(pending.MaxSpendable()); over {
		return entities.NewValidationFailure(entities.ValidationInsufficientFunds, "amount %s exceeds available %s", amount, pending.MaxSpendable())
	}
	return nil
}

func (e *Engine) DoUpdateFeeLevel(ctx context.Context, pending entities.PendingTransaction, level entities.FeeLevel, custom *entities.MoneyValue) (entities.PendingTransaction, error) {
	if !pending.FeeSelection.Offers(level) {
		return pending, fmt.Errorf("%w: %s", domainerrors.ErrUnsupportedFeeLevel, level)
	}
	return e.Update(ctx, pending.Amount, pending.WithFeeLevel(level, custom))
}

// Execute selects coins again against the current outputs, has the signer sign the
// result and broadcasts it
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

	if _, err = e.script(e.Target().Address); err != nil {
		return result, entities.NewValidationFailure(entities.ValidationInvalidAddress, "%s", err.Error())
	}
	p, err := e.proposal(ctx, pending.Amount, pending.FeeLevel())
	if err != nil {
		return result, err
	}
	candidate, err := e.selector.Select(p)
	if err != nil {
		var coinErr *CoinSelectionError
		if errors.As(err, &coinErr) && coinErr.Kind == BelowDustThreshold {
			return result, entities.NewValidationFailure(entities.ValidationInvalidAmount, "%s", err.Error())
		}
		return result, entities.NewValidationFailure(entities.ValidationInsufficientFunds, "%s", err.Error())
	}

	var buf bytes.Buffer
	if err = candidate.Tx.Tx.Serialize(&buf); err != nil {
		return result, fmt.Errorf("serialize transaction: %w", err)
	}
	prev := make([]signer.PrevOutput, len(candidate.Tx.PrevScripts))
	for i, script := range candidate.Tx.PrevScripts {
		prev[i] = signer.PrevOutput{Script: hex.EncodeToString(script), Value: int64(candidate.Tx.PrevInputValues[i])}
	}

	signed, err := e.signer.SignBitcoin(ctx, signer.BitcoinSignRequest{
		AccountID:   e.Source().ID,
		UnsignedTx:  hex.EncodeToString(buf.Bytes()),
		PrevOutputs: prev,
	}, secondPassword)
	if err != nil {
		return result, fmt.Errorf("%w: %w", domainerrors.ErrSigningFailed, err)
	}

	broadcast = true
	hash, err := e.chain.BTCPush(ctx, signed)
	e.utxos.Invalidate(ctx, e.Source().Address)
	if err != nil {
		return result, fmt.Errorf("%w: %w", domainerrors.ErrBroadcastFailed, err)
	}

	e.Logger().Info("Bitcoin transaction broadcast", "tx_hash", hash, "fee", int64(candidate.Fee))
	return entities.HashedResult(hash, pending.Amount), nil
}

var _ txengine.Engine = (*Engine)(nil)
