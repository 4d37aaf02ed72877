package repositories

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rail-service/txengine/internal/domain/entities"
	"github.com/rail-service/txengine/internal/infrastructure/cache"
)

// StellarChainClient reads ledger accounts
type StellarChainClient interface {
	StellarAccount(ctx context.Context, accountID string) (entities.StellarAccount, error)
}

// StellarAccountRepository caches account details (balance, sequence, subentries)
type StellarAccountRepository struct {
	accounts *cache.CachedValue[string, entities.StellarAccount]
}

func NewStellarAccountRepository(registry *cache.Registry, client StellarChainClient, ttl time.Duration, logger *zap.Logger) *StellarAccountRepository {
	fetch := func(ctx context.Context, accountID string) (entities.StellarAccount, error) {
		account, err := client.StellarAccount(ctx, accountID)
		if err != nil {
			logger.Warn("Failed to fetch stellar account", zap.String("account", accountID), zap.Error(err))
		}
		return account, err
	}
	return &StellarAccountRepository{
		accounts: cache.Register(registry, "stellar_account", cache.Periodic(ttl), fetch),
	}
}

func (r *StellarAccountRepository) Account(ctx context.Context, accountID string) (entities.StellarAccount, error) {
	return r.accounts.Get(ctx, accountID)
}

func (r *StellarAccountRepository) Invalidate(ctx context.Context, accountID string) {
	r.accounts.Invalidate(ctx, accountID)
}

// UTXOChainClient lists unspent outputs
type UTXOChainClient interface {
	UnspentOutputs(ctx context.Context, addresses []string) ([]entities.UnspentOutput, error)
}

// UTXORepository caches the unspent outputs of an address
type UTXORepository struct {
	outputs *cache.CachedValue[string, []entities.UnspentOutput]
}

func NewUTXORepository(registry *cache.Registry, client UTXOChainClient, ttl time.Duration, logger *zap.Logger) *UTXORepository {
	fetch := func(ctx context.Context, address string) ([]entities.UnspentOutput, error) {
		outputs, err := client.UnspentOutputs(ctx, []string{address})
		if err != nil {
			logger.Warn("Failed to fetch unspent outputs", zap.String("address", address), zap.Error(err))
		}
		return outputs, err
	}
	return &UTXORepository{
		outputs: cache.Register(registry, "btc_unspent", cache.Periodic(ttl), fetch),
	}
}

func (r *UTXORepository) UnspentOutputs(ctx context.Context, address string) ([]entities.UnspentOutput, error) {
	return r.outputs.Get(ctx, address)
}

func (r *UTXORepository) Invalidate(ctx context.Context, address string) {
	r.outputs.Invalidate(ctx, address)
}
