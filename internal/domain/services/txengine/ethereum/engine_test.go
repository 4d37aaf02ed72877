package ethereum

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/rail-service/txengine/internal/domain/entities"
	domainerrors "github.com/rail-service/txengine/internal/domain/errors"
	"github.com/rail-service/txengine/internal/infrastructure/adapters/signer"
	"github.com/rail-service/txengine/pkg/logger"
)

const (
	sourceAddress = "0x1111111111111111111111111111111111111111"
	targetAddress = "0x2222222222222222222222222222222222222222"
	gwei          = 1_000_000_000
)

type fakeChain struct {
	balance     *big.Int
	nonce       uint64
	pending     bool
	pushed      []string
	invalidated map[string]int
}

func newFakeChain(balanceWei int64) *fakeChain {
	return &fakeChain{balance: big.NewInt(balanceWei), invalidated: map[string]int{}}
}

type balances struct{ *fakeChain }

func (b balances) Balance(_ context.Context, _, _ string) (entities.MoneyValue, error) {
	return entities.MoneyFromMinor(b.balance, entities.ETH), nil
}
func (b balances) Invalidate(context.Context, string, string) { b.invalidated["balance"]++ }

type nonces struct{ *fakeChain }

func (n nonces) Nonce(context.Context, string, string) (uint64, error) { return n.nonce, nil }
func (n nonces) Invalidate(context.Context, string, string)            { n.invalidated["nonce"]++ }

func (f *fakeChain) EVMHasPendingTransaction(context.Context, string, string) (bool, error) {
	return f.pending, nil
}

func (f *fakeChain) EVMPush(_ context.Context, _ string, raw string) (string, error) {
	f.pushed = append(f.pushed, raw)
	return "0xhash", nil
}

type fakeFees struct{}

func (fakeFees) Fees(_ context.Context, asset entities.Currency, network string) (entities.FeeSchedule, error) {
	return entities.FeeSchedule{
		Asset:    asset,
		Network:  network,
		Regular:  decimal.NewFromInt(10 * gwei),
		Priority: decimal.NewFromInt(20 * gwei),
	}, nil
}

type fakeSigner struct{ req signer.EVMSignRequest }

func (f *fakeSigner) SignEVM(_ context.Context, req signer.EVMSignRequest, _ string) (string, error) {
	f.req = req
	return "0xsigned", nil
}

type fixedPrice struct{}

func (fixedPrice) Price(_ context.Context, base, quote entities.Currency) (entities.PriceQuote, error) {
	return entities.PriceQuote{Base: base, Quote: quote, Rate: decimal.NewFromInt(3000)}, nil
}

var networks = map[string]Network{
	"ethereum": {Name: "ethereum", ChainID: 1, Currency: entities.ETH, GasLimit: 21000},
	"polygon":  {Name: "polygon", ChainID: 137, Currency: entities.MATIC},
}

func newEngine(chain *fakeChain, sign *fakeSigner) *Engine {
	e := NewEngine(networks, balances{chain}, nonces{chain}, fakeFees{}, chain, sign, fixedPrice{}, entities.USD, logger.NewLogger(zap.NewNop()))
	e.Start(
		entities.SourceAccount{ID: "eth-acct", Kind: entities.AccountKindNonCustodial, Currency: entities.ETH, Network: "ethereum", Address: sourceAddress},
		entities.TransactionTarget{Kind: entities.TargetKindAddress, Currency: entities.ETH, Network: "ethereum", Address: targetAddress},
		nil,
	)
	return e
}

func wei(n int64) entities.MoneyValue { return entities.MoneyFromMinorInt64(n, entities.ETH) }

func assertMoney(t assert.TestingT, want, got entities.MoneyValue) {
	assert.Equal(t, want.String(), got.String())
}

// 10 gwei * 21000 gas
const regularFee = 210_000 * gwei

func TestEngine_AssertInputsValid(t *testing.T) {
	e := newEngine(newFakeChain(0), &fakeSigner{})
	assert.NotPanics(t, e.AssertInputsValid)

	e.Start(entities.SourceAccount{Kind: entities.AccountKindNonCustodial, Currency: entities.MATIC, Network: "ethereum"},
		entities.TransactionTarget{Kind: entities.TargetKindAddress, Currency: entities.MATIC}, nil)
	assert.Panics(t, e.AssertInputsValid)
}

func TestEngine_AvailableIsBalanceMinusFee(t *testing.T) {
	ctx := context.Background()
	e := newEngine(newFakeChain(regularFee+5000), &fakeSigner{})

	pending, err := e.InitializeTransaction(ctx)
	require.NoError(t, err)
	assertMoney(t, wei(5000), pending.Available)
	assertMoney(t, wei(regularFee), pending.FeeAmount)

	poor := newEngine(newFakeChain(100), &fakeSigner{})
	pending, err = poor.InitializeTransaction(ctx)
	require.NoError(t, err)
	assert.True(t, pending.Available.IsZero())
}

func TestEngine_Validation(t *testing.T) {
	ctx := context.Background()
	chain := newFakeChain(regularFee + 1_000_000)
	e := newEngine(chain, &fakeSigner{})
	pending, err := e.InitializeTransaction(ctx)
	require.NoError(t, err)

	pending, err = e.Update(ctx, wei(0), pending)
	require.NoError(t, err)
	_, err = e.DoValidateAll(ctx, pending)
	assert.ErrorIs(t, err, entities.ErrBelowMinimumLimit)

	pending, err = e.Update(ctx, wei(1_000_001), pending)
	require.NoError(t, err)
	_, err = e.DoValidateAll(ctx, pending)
	assert.ErrorIs(t, err, entities.ErrInsufficientFunds)

	pending, err = e.Update(ctx, wei(1_000_000), pending)
	require.NoError(t, err)
	chain.pending = true
	validated, err := e.DoValidateAll(ctx, pending)
	assert.Equal(t, entities.ValidationTransactionInFlight, entities.ValidationStateOf(err))
	assert.Equal(t, entities.ValidationTransactionInFlight, validated.ValidationState)

	chain.pending = false
	e.SetTarget(entities.TransactionTarget{Kind: entities.TargetKindAddress, Currency: entities.ETH, Address: "0x123"})
	_, err = e.DoValidateAll(ctx, pending)
	assert.ErrorIs(t, err, entities.ErrInvalidAddress)
}

func TestEngine_AvailableAmountsValidate(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		extra := rapid.Int64Range(1, 1_000_000_000_000_000_000).Draw(t, "extra")
		e := newEngine(newFakeChain(regularFee+extra), &fakeSigner{})
		ctx := context.Background()

		pending, err := e.InitializeTransaction(ctx)
		require.NoError(t, err)
		amount := rapid.Int64Range(1, pending.Available.MinorInt64()).Draw(t, "amount")
		pending, err = e.Update(ctx, wei(amount), pending)
		require.NoError(t, err)

		pending, err = e.DoValidateAll(ctx, pending)
		require.NoError(t, err)
		assert.Equal(t, entities.ValidationCanExecute, pending.ValidationState)
	})
}

func TestEngine_ConfirmationsRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newEngine(newFakeChain(2_000_000_000_000_000_000), &fakeSigner{})
	pending, err := e.InitializeTransaction(ctx)
	require.NoError(t, err)

	amount, err := entities.MoneyFromString("1.000000000000000001", entities.ETH)
	require.NoError(t, err)
	pending, err = e.Update(ctx, amount, pending)
	require.NoError(t, err)
	pending, err = e.DoBuildConfirmations(ctx, pending)
	require.NoError(t, err)

	c, ok := pending.Confirmation(entities.ConfirmationAmount)
	require.True(t, ok)
	assertMoney(t, amount, *c.Value)

	total, ok := pending.Confirmation(entities.ConfirmationTotal)
	require.True(t, ok)
	want, _ := amount.Add(wei(regularFee))
	assertMoney(t, want, *total.Value)
}

func TestEngine_PriorityFee(t *testing.T) {
	ctx := context.Background()
	e := newEngine(newFakeChain(1_000_000_000_000_000_000), &fakeSigner{})
	pending, err := e.InitializeTransaction(ctx)
	require.NoError(t, err)

	pending, err = e.DoUpdateFeeLevel(ctx, pending, entities.FeeLevelPriority, nil)
	require.NoError(t, err)
	assertMoney(t, wei(2*regularFee), pending.FeeAmount)
}

func TestEngine_ExecuteBuildsLegacyTransaction(t *testing.T) {
	ctx := context.Background()
	chain := newFakeChain(1_000_000_000_000_000_000)
	chain.nonce = 7
	sign := &fakeSigner{}
	e := newEngine(chain, sign)

	pending, err := e.InitializeTransaction(ctx)
	require.NoError(t, err)
	pending, err = e.Update(ctx, wei(12345), pending)
	require.NoError(t, err)

	result, err := e.Execute(ctx, pending, "")
	require.NoError(t, err)
	assert.Equal(t, "0xhash", result.TxHash)
	assert.Equal(t, []string{"0xsigned"}, chain.pushed)
	assert.Equal(t, 1, chain.invalidated["balance"])
	assert.Equal(t, 1, chain.invalidated["nonce"])

	assert.Equal(t, int64(1), sign.req.ChainID)
	raw, err := hexutil.Decode(sign.req.UnsignedTx)
	require.NoError(t, err)
	var tx types.Transaction
	require.NoError(t, tx.UnmarshalBinary(raw))
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, big.NewInt(12345), tx.Value())
	assert.Equal(t, uint64(21000), tx.Gas())
	assert.Equal(t, big.NewInt(10*gwei), tx.GasPrice())
	assert.Equal(t, common.HexToAddress(targetAddress), *tx.To())

	_, err = e.Execute(ctx, pending, "")
	assert.True(t, errors.Is(err, domainerrors.ErrAlreadySent))
}

func TestEngine_ExecuteReportsAddressVerbatim(t *testing.T) {
	ctx := context.Background()
	e := newEngine(newFakeChain(1_000_000_000_000_000_000), &fakeSigner{})
	pending, err := e.InitializeTransaction(ctx)
	require.NoError(t, err)
	pending, err = e.Update(ctx, wei(12345), pending)
	require.NoError(t, err)

	e.SetTarget(entities.TransactionTarget{Kind: entities.TargetKindAddress, Currency: entities.ETH, Network: "ethereum", Address: "0x%d%s"})
	_, err = e.Execute(ctx, pending, "")
	var failure *entities.ValidationFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, entities.ValidationInvalidAddress, failure.State)
	assert.Equal(t, "0x%d%s", failure.Message)
}

func TestEngine_UnknownNetwork(t *testing.T) {
	e := newEngine(newFakeChain(0), &fakeSigner{})
	e.Start(entities.SourceAccount{Kind: entities.AccountKindNonCustodial, Currency: entities.ETH, Network: "base"},
		entities.TransactionTarget{Kind: entities.TargetKindAddress, Currency: entities.ETH}, nil)
	_, err := e.InitializeTransaction(context.Background())
	assert.Error(t, err)
}
