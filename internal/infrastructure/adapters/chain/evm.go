package chain

import (
	"context"
	"fmt"
	"math/big"
)

// EVMBalance returns the native balance of address in wei
func (c *Client) EVMBalance(ctx context.Context, network, address string) (*big.Int, error) {
	var resp balanceResponse
	if err := c.api.Get(ctx, fmt.Sprintf("/evm/%s/balance/%s", seg(network), seg(address)), &resp); err != nil {
		return nil, fmt.Errorf("get evm balance failed: %w", err)
	}
	wei, ok := new(big.Int).SetString(resp.Balance, 10)
	if !ok {
		return nil, fmt.Errorf("invalid evm balance %q", resp.Balance)
	}
	return wei, nil
}

// EVMTransactionCount returns the next nonce of address
func (c *Client) EVMTransactionCount(ctx context.Context, network, address string) (uint64, error) {
	var resp nonceResponse
	if err := c.api.Get(ctx, fmt.Sprintf("/evm/%s/nonce/%s", seg(network), seg(address)), &resp); err != nil {
		return 0, fmt.Errorf("get evm nonce failed: %w", err)
	}
	return resp.Nonce, nil
}

// EVMHasPendingTransaction reports whether address has an unconfirmed transaction
func (c *Client) EVMHasPendingTransaction(ctx context.Context, network, address string) (bool, error) {
	var resp pendingResponse
	if err := c.api.Get(ctx, fmt.Sprintf("/evm/%s/pending/%s", seg(network), seg(address)), &resp); err != nil {
		return false, fmt.Errorf("get evm pending failed: %w", err)
	}
	return resp.Pending, nil
}

// EVMPush broadcasts a signed RLP transaction given as 0x hex
func (c *Client) EVMPush(ctx context.Context, network, rawTx string) (string, error) {
	var resp pushResponse
	if err := c.api.Post(ctx, fmt.Sprintf("/evm/%s/push", seg(network)), pushRequest{RawTransaction: rawTx}, &resp); err != nil {
		return "", fmt.Errorf("push evm transaction failed: %w", err)
	}
	return resp.TxHash, nil
}
