package chain

import (
	"context"
	"fmt"

	"github.com/rail-service/txengine/internal/domain/entities"
)

// UnspentOutputs lists spendable outputs of addresses
func (c *Client) UnspentOutputs(ctx context.Context, addresses []string) ([]entities.UnspentOutput, error) {
	var resp unspentResponse
	if err := c.api.Post(ctx, "/btc/unspent", unspentRequest{Addresses: addresses}, &resp); err != nil {
		return nil, fmt.Errorf("get unspent outputs failed: %w", err)
	}
	outputs := make([]entities.UnspentOutput, 0, len(resp.UnspentOutputs))
	for _, u := range resp.UnspentOutputs {
		outputs = append(outputs, entities.UnspentOutput{
			TxHash:        u.TxHash,
			Index:         u.OutputIndex,
			Value:         u.Value,
			Script:        u.Script,
			Confirmations: u.Confirmations,
		})
	}
	return outputs, nil
}

// BTCPush broadcasts a signed raw transaction in hex
func (c *Client) BTCPush(ctx context.Context, rawTx string) (string, error) {
	var resp pushResponse
	if err := c.api.Post(ctx, "/btc/push", pushRequest{RawTransaction: rawTx}, &resp); err != nil {
		return "", fmt.Errorf("push bitcoin transaction failed: %w", err)
	}
	return resp.TxHash, nil
}
