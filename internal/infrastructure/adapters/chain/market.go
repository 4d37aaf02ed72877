package chain

import (
	"context"
	"fmt"

	"github.com/rail-service/txengine/internal/domain/entities"
)

// Fees returns the fee schedule of an asset, optionally for an EVM network
func (c *Client) Fees(ctx context.Context, asset entities.Currency, network string) (entities.FeeSchedule, error) {
	path := "/fees/" + seg(asset.Code)
	if network != "" {
		path += "?network=" + seg(network)
	}
	var resp feeResponse
	if err := c.api.Get(ctx, path, &resp); err != nil {
		return entities.FeeSchedule{}, fmt.Errorf("get fees failed: %w", err)
	}
	return entities.FeeSchedule{
		Asset:    asset,
		Network:  network,
		Regular:  resp.Regular,
		Priority: resp.Priority,
		GasLimit: resp.GasLimit,
	}, nil
}

// Price returns how many units of quote one unit of base costs
func (c *Client) Price(ctx context.Context, base, quote entities.Currency) (entities.PriceQuote, error) {
	var resp priceResponse
	if err := c.api.Get(ctx, fmt.Sprintf("/price/%s/%s", seg(base.Code), seg(quote.Code)), &resp); err != nil {
		return entities.PriceQuote{}, fmt.Errorf("get price failed: %w", err)
	}
	if !resp.Price.IsPositive() {
		return entities.PriceQuote{}, fmt.Errorf("non-positive price %s for %s/%s", resp.Price, base.Code, quote.Code)
	}
	return entities.PriceQuote{Base: base, Quote: quote, Rate: resp.Price, Timestamp: resp.Timestamp}, nil
}
