// Package ethereum is the account/nonce engine for EVM networks. Balance and nonce
// come from separately cached repositories keyed by network and address.
package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"

	"github.com/rail-service/txengine/internal/domain/entities"
	domainerrors "github.com/rail-service/txengine/internal/domain/errors"
	"github.com/rail-service/txengine/internal/domain/services/txengine"
	"github.com/rail-service/txengine/internal/infrastructure/adapters/signer"
	"github.com/rail-service/txengine/pkg/logger"
)

type BalanceSource interface {
	Balance(ctx context.Context, network, address string) (entities.MoneyValue, error)
	Invalidate(ctx context.Context, network, address string)
}

type NonceSource interface {
	Nonce(ctx context.Context, network, address string) (uint64, error)
	Invalidate(ctx context.Context, network, address string)
}

type FeeSource interface {
	Fees(ctx context.Context, asset entities.Currency, network string) (entities.FeeSchedule, error)
}

// ChainClient checks the mempool and broadcasts
type ChainClient interface {
	EVMHasPendingTransaction(ctx context.Context, network, address string) (bool, error)
	EVMPush(ctx context.Context, network, rawTx string) (string, error)
}

type Signer interface {
	SignEVM(ctx context.Context, req signer.EVMSignRequest, secondPassword string) (string, error)
}

// Network describes one EVM chain
type Network struct {
	Name     string
	ChainID  int64
	Currency entities.Currency
	GasLimit uint64
}

type Engine struct {
	txengine.Base

	networks map[string]Network
	balances BalanceSource
	nonces   NonceSource
	fees     FeeSource
	chain    ChainClient
	signer   Signer
}

func NewEngine(networks map[string]Network, balances BalanceSource, nonces NonceSource, fees FeeSource, chain ChainClient, sign Signer, prices txengine.PriceService, fiat entities.Currency, log *logger.Logger) *Engine {
	return &Engine{
		Base:     txengine.NewBase(txengine.KindEthereum, prices, fiat, log),
		networks: networks,
		balances: balances,
		nonces:   nonces,
		fees:     fees,
		chain:    chain,
		signer:   sign,
	}
}

func (e *Engine) network() (Network, error) {
	n, ok := e.networks[e.Source().Network]
	if !ok {
		return Network{}, fmt.Errorf("unknown evm network %q", e.Source().Network)
	}
	return n, nil
}

func (e *Engine) AssertInputsValid() {
	currencies := make([]entities.Currency, 0, len(e.networks))
	for _, n := range e.networks {
		currencies = append(currencies, n.Currency)
	}
	e.RequireInputs(currencies, entities.AccountKindNonCustodial, entities.TargetKindAddress)
	n, err := e.network()
	e.Require(err == nil, "%v", err)
	e.Require(n.Currency.Code == e.Source().Currency.Code, "source currency %s on %s", e.Source().Currency.Code, n.Name)
	e.Require(e.Target().Currency.Code == n.Currency.Code, "target currency %s", e.Target().Currency.Code)
}

// fee is gas price at level times the gas limit, in the native currency
func (e *Engine) fee(ctx context.Context, n Network, level entities.FeeLevel) (entities.MoneyValue, *big.Int, uint64, error) {
	schedule, err := e.fees.Fees(ctx, n.Currency, n.Name)
	if err != nil {
		return entities.MoneyValue{}, nil, 0, fmt.Errorf("failed to fetch %s fees: %w", n.Name, err)
	}
	gasLimit := n.GasLimit
	if gasLimit == 0 {
		gasLimit = schedule.GasLimit
	}
	if gasLimit == 0 {
		gasLimit = params.TxGas
	}
	gasPrice := schedule.ForLevel(level).BigInt()
	total := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
	return entities.MoneyFromMinor(total, n.Currency), gasPrice, gasLimit, nil
}

func (e *Engine) InitializeTransaction(ctx context.Context) (entities.PendingTransaction, error) {
	if err := e.CheckStarted(); err != nil {
		return entities.PendingTransaction{}, err
	}
	n, err := e.network()
	if err != nil {
		return entities.PendingTransaction{}, err
	}
	pending := e.NewPendingTransaction(n.Currency, entities.FeeLevelRegular, entities.FeeLevelPriority)
	return e.Update(ctx, pending.Amount, pending)
}

// Update sets available to the balance minus the fee, floored at zero
func (e *Engine) Update(ctx context.Context, amount entities.MoneyValue, pending entities.PendingTransaction) (out entities.PendingTransaction, err error) {
	ctx, done := e.Trace(ctx, "update")
	defer func() { done(err) }()

	if err = e.CheckStarted(); err != nil {
		return pending, err
	}
	n, err := e.network()
	if err != nil {
		return pending, err
	}
	if err = txengine.CheckAmountCurrency(amount, n.Currency); err != nil {
		return pending, err
	}
	balance, err := e.balances.Balance(ctx, n.Name, e.Source().Address)
	if err != nil {
		return pending, fmt.Errorf("failed to fetch balance: %w", err)
	}
	fee, _, _, err := e.fee(ctx, n, pending.FeeLevel())
	if err != nil {
		return pending, err
	}
	available, err := balance.Sub(fee)
	if err != nil {
		return pending, err
	}
	return pending.Update(amount, available.FloorAtZero(), fee, fee), nil
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
	return pending.WithConfirmations(confirmations), nil
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
	n, err := e.network()
	if err != nil {
		return err
	}
	amount := pending.Amount
	if amount.Currency().Code != n.Currency.Code {
		return entities.NewValidationFailure(entities.ValidationIncorrectSourceCurrency, "%s", amount.Currency().Code)
	}
	if amount.Minor().Sign() < 1 {
		return entities.NewValidationFailure(entities.ValidationBelowMinimumLimit, "amount must be at least 1 wei")
	}

	balance, err := e.balances.Balance(ctx, n.Name, e.Source().Address)
	if err != nil {
		return fmt.Errorf("failed to fetch balance: %w", err)
	}
	fee, _, _, err := e.fee(ctx, n, pending.FeeLevel())
	if err != nil {
		return err
	}
	if covers, _ := balance.GreaterThan(fee); !covers {
		return entities.NewValidationFailure(entities.ValidationInsufficientFunds, "balance %s does not cover fee %s", balance, fee)
	}
	total, err := amount.Add(fee)
	if err != nil {
		return err
	}
	if over, _ := total.GreaterThan(balance); over {
		return entities.NewValidationFailure(entities.ValidationInsufficientFunds, "amount plus fee %s exceeds balance %s", total, balance)
	}

	inFlight, err := e.chain.EVMHasPendingTransaction(ctx, n.Name, e.Source().Address)
	if err != nil {
		return fmt.Errorf("failed to check pending transactions: %w", err)
	}
	if inFlight {
		return entities.NewValidationFailure(entities.ValidationTransactionInFlight, "a previous transaction is still pending")
	}

	if !common.IsHexAddress(e.Target().Address) {
		return entities.NewValidationFailure(entities.ValidationInvalidAddress, "%q is not a hex address", e.Target().Address)
	}
	return nil
}

func (e *Engine) DoUpdateFeeLevel(ctx context.Context, pending entities.PendingTransaction, level entities.FeeLevel, custom *entities.MoneyValue) (entities.PendingTransaction, error) {
	if !pending.FeeSelection.Offers(level) {
		return pending, fmt.Errorf("%w: %s", domainerrors.ErrUnsupportedFeeLevel, level)
	}
	return e.Update(ctx, pending.Amount, pending.WithFeeLevel(level, custom))
}

// Execute builds a legacy transaction at the cached nonce, has it signed for the
// network chain ID and pushes it. Balance and nonce are invalidated afterwards.
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

	n, err := e.network()
	if err != nil {
		return result, err
	}
	if !common.IsHexAddress(e.Target().Address) {
		return result, entities.NewValidationFailure(entities.ValidationInvalidAddress, "%s", e.Target().Address)
	}
	source := e.Source().Address
	nonce, err := e.nonces.Nonce(ctx, n.Name, source)
	if err != nil {
		return result, fmt.Errorf("failed to fetch nonce: %w", err)
	}
	_, gasPrice, gasLimit, err := e.fee(ctx, n, pending.FeeLevel())
	if err != nil {
		return result, err
	}

	to := common.HexToAddress(e.Target().Address)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    pending.Amount.Minor(),
	})
	raw, err := tx.MarshalBinary()
	if err != nil {
		return result, fmt.Errorf("encode transaction: %w", err)
	}

	signed, err := e.signer.SignEVM(ctx, signer.EVMSignRequest{
		AccountID:  e.Source().ID,
		Network:    n.Name,
		ChainID:    n.ChainID,
		UnsignedTx: hexutil.Encode(raw),
	}, secondPassword)
	if err != nil {
		return result, fmt.Errorf("%w: %w", domainerrors.ErrSigningFailed, err)
	}

	broadcast = true
	hash, err := e.chain.EVMPush(ctx, n.Name, signed)
	e.balances.Invalidate(ctx, n.Name, source)
	e.nonces.Invalidate(ctx, n.Name, source)
	if err != nil {
		return result, fmt.Errorf("%w: %w", domainerrors.ErrBroadcastFailed, err)
	}

	e.Logger().Info("EVM transaction broadcast", "network", n.Name, "tx_hash", hash, "nonce", nonce)
	return entities.HashedResult(hash, pending.Amount), nil
}

var _ txengine.Engine = (*Engine)(nil)
