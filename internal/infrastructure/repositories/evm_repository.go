package repositories

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rail-service/txengine/internal/domain/entities"
	"github.com/rail-service/txengine/internal/infrastructure/cache"
)

// EVMChainClient is the part of the chain client the EVM repositories read from
type EVMChainClient interface {
	EVMBalance(ctx context.Context, network, address string) (*big.Int, error)
	EVMTransactionCount(ctx context.Context, network, address string) (uint64, error)
}

// EVMKey identifies an account on one EVM network
type EVMKey struct {
	Network string
	Address string
}

func (k EVMKey) String() string {
	return k.Network + ":" + strings.ToLower(k.Address)
}

func evmKeyFunc(k EVMKey) string { return k.String() }

// EVMBalanceRepository caches native balances per (network, address)
type EVMBalanceRepository struct {
	balances *cache.CachedValue[EVMKey, entities.MoneyValue]
}

// NewEVMBalanceRepository resolves the native currency of each network from currencies
func NewEVMBalanceRepository(registry *cache.Registry, client EVMChainClient, currencies map[string]entities.Currency, ttl time.Duration, logger *zap.Logger) *EVMBalanceRepository {
	fetch := func(ctx context.Context, key EVMKey) (entities.MoneyValue, error) {
		currency, ok := currencies[key.Network]
		if !ok {
			return entities.MoneyValue{}, fmt.Errorf("unknown evm network %q", key.Network)
		}
		wei, err := client.EVMBalance(ctx, key.Network, key.Address)
		if err != nil {
			logger.Warn("Failed to fetch evm balance", zap.String("key", key.String()), zap.Error(err))
			return entities.MoneyValue{}, err
		}
		return entities.MoneyFromMinor(wei, currency), nil
	}
	return &EVMBalanceRepository{
		balances: cache.Register(registry, "evm_balance", cache.Periodic(ttl), fetch,
			cache.WithKeyFunc[EVMKey, entities.MoneyValue](evmKeyFunc)),
	}
}

func (r *EVMBalanceRepository) Balance(ctx context.Context, network, address string) (entities.MoneyValue, error) {
	return r.balances.Get(ctx, EVMKey{Network: network, Address: address})
}

func (r *EVMBalanceRepository) Invalidate(ctx context.Context, network, address string) {
	r.balances.Invalidate(ctx, EVMKey{Network: network, Address: address})
}

// EVMNonceRepository caches the next nonce per (network, address)
type EVMNonceRepository struct {
	nonces *cache.CachedValue[EVMKey, uint64]
}

func NewEVMNonceRepository(registry *cache.Registry, client EVMChainClient, ttl time.Duration, logger *zap.Logger) *EVMNonceRepository {
	fetch := func(ctx context.Context, key EVMKey) (uint64, error) {
		nonce, err := client.EVMTransactionCount(ctx, key.Network, key.Address)
		if err != nil {
			logger.Warn("Failed to fetch evm nonce", zap.String("key", key.String()), zap.Error(err))
		}
		return nonce, err
	}
	return &EVMNonceRepository{
		nonces: cache.Register(registry, "evm_nonce", cache.Periodic(ttl), fetch,
			cache.WithKeyFunc[EVMKey, uint64](evmKeyFunc)),
	}
}

func (r *EVMNonceRepository) Nonce(ctx context.Context, network, address string) (uint64, error) {
	return r.nonces.Get(ctx, EVMKey{Network: network, Address: address})
}

func (r *EVMNonceRepository) Invalidate(ctx context.Context, network, address string) {
	r.nonces.Invalidate(ctx, EVMKey{Network: network, Address: address})
}
