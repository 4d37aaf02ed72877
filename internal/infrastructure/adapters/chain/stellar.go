package chain

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rail-service/txengine/internal/domain/entities"
	"github.com/rail-service/txengine/internal/infrastructure/adapters/apiclient"
)

// StellarAccount returns ledger details; unfunded accounts come back with Exists false
func (c *Client) StellarAccount(ctx context.Context, accountID string) (entities.StellarAccount, error) {
	var resp stellarAccountResponse
	err := c.api.Get(ctx, "/xlm/accounts/"+seg(accountID), &resp)
	if apiclient.IsNotFound(err) {
		return entities.StellarAccount{
			AccountID: accountID,
			Balance:   entities.Zero(entities.XLM),
		}, nil
	}
	if err != nil {
		return entities.StellarAccount{}, fmt.Errorf("get stellar account failed: %w", err)
	}

	balance, err := entities.MoneyFromString(resp.Balance, entities.XLM)
	if err != nil {
		return entities.StellarAccount{}, fmt.Errorf("invalid stellar balance: %w", err)
	}
	sequence, err := strconv.ParseInt(resp.Sequence, 10, 64)
	if err != nil {
		return entities.StellarAccount{}, fmt.Errorf("invalid stellar sequence %q: %w", resp.Sequence, err)
	}
	return entities.StellarAccount{
		AccountID:     resp.AccountID,
		Balance:       balance,
		Sequence:      sequence,
		SubentryCount: resp.SubentryCount,
		Exists:        true,
	}, nil
}

// StellarSubmit submits a signed transaction envelope (base64 XDR)
func (c *Client) StellarSubmit(ctx context.Context, envelope string) (string, error) {
	var resp pushResponse
	if err := c.api.Post(ctx, "/xlm/transactions", stellarSubmitRequest{EnvelopeXDR: envelope}, &resp); err != nil {
		return "", fmt.Errorf("submit stellar transaction failed: %w", err)
	}
	return resp.TxHash, nil
}
