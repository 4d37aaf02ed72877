package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rail-service/txengine/internal/domain/entities"
	"github.com/rail-service/txengine/internal/infrastructure/config"
)

func TestEVMNetworks(t *testing.T) {
	networks, currencies, err := evmNetworks(map[string]config.EVMNetworkConfig{
		"ethereum": {ChainID: 1, NativeCurrency: "eth", GasLimit: 21000},
		"polygon":  {ChainID: 137, NativeCurrency: "MATIC"},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(137), networks["polygon"].ChainID)
	assert.Equal(t, "polygon", networks["polygon"].Name)
	assert.Equal(t, uint64(21000), networks["ethereum"].GasLimit)
	assert.Equal(t, entities.ETH, currencies["ethereum"])
	assert.Equal(t, entities.MATIC, currencies["polygon"])

	_, _, err = evmNetworks(map[string]config.EVMNetworkConfig{"bsc": {ChainID: 56, NativeCurrency: "BNB"}})
	assert.Error(t, err)
}
