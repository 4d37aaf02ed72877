package stellar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/rail-service/txengine/internal/domain/entities"
)

func xlm(t require.TestingT, s string) entities.MoneyValue {
	m, err := entities.MoneyFromString(s, entities.XLM)
	require.NoError(t, err)
	return m
}

func TestMinRequiredReserve(t *testing.T) {
	assert.Equal(t, "1.0000000 XLM", MinRequiredReserve(0, xlm(t, "0.5")).String())
	assert.Equal(t, "2.5000000 XLM", MinRequiredReserve(3, xlm(t, "0.5")).String())
}

func TestMaxSpendableFloorsAtZero(t *testing.T) {
	spendable, err := MaxSpendable(xlm(t, "10"), xlm(t, "0.00001"), xlm(t, "1"))
	require.NoError(t, err)
	assert.Equal(t, xlm(t, "8.99999").String(), spendable.String())

	spendable, err = MaxSpendable(xlm(t, "0.5"), xlm(t, "0.00001"), xlm(t, "1"))
	require.NoError(t, err)
	assert.True(t, spendable.IsZero())

	_, err = MaxSpendable(xlm(t, "1"), entities.Zero(entities.BTC), xlm(t, "1"))
	assert.ErrorIs(t, err, entities.ErrCurrencyMismatch)
}

func TestReserveFormula(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.Uint32Range(0, 1000).Draw(t, "subentries")
		baseReserve := rapid.Int64Range(1, 100_000_000).Draw(t, "baseReserve")
		balance := rapid.Int64Range(0, 1_000_000_000_000).Draw(t, "balance")
		fee := rapid.Int64Range(100, 10_000).Draw(t, "fee")

		reserve := MinRequiredReserve(n, entities.MoneyFromMinorInt64(baseReserve, entities.XLM))
		assert.Equal(t, (2+int64(n))*baseReserve, reserve.MinorInt64())

		spendable, err := MaxSpendable(
			entities.MoneyFromMinorInt64(balance, entities.XLM),
			entities.MoneyFromMinorInt64(fee, entities.XLM),
			reserve,
		)
		require.NoError(t, err)
		want := balance - fee - reserve.MinorInt64()
		if want < 0 {
			want = 0
		}
		assert.Equal(t, want, spendable.MinorInt64())
	})
}
