package nabu

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/rail-service/txengine/internal/domain/entities"
	"github.com/rail-service/txengine/internal/infrastructure/adapters/apiclient"
)

// CreateOrder opens a buy order; pending orders await confirmation
func (c *Client) CreateOrder(ctx context.Context, token string, req entities.CreateOrderRequest) (entities.BuyOrder, error) {
	body := createOrderRequest{
		Pair:            req.Pair,
		Action:          req.Action,
		Input:           quantityDTO{Symbol: req.Input.Currency().Code, Amount: req.Input.Minor().String()},
		Output:          currencyDTO{Symbol: req.OutputCurrency},
		PaymentMethodID: req.PaymentMethodID,
		PaymentType:     string(req.PaymentType),
	}
	path := "/simple-buy/trades"
	if req.Pending {
		path += "?action=pending"
	}
	var resp orderResponse
	if err := c.api.Post(ctx, path, body, &resp, apiclient.WithBearer(token)); err != nil {
		return entities.BuyOrder{}, fmt.Errorf("create order failed: %w", err)
	}
	return resp.toEntity()
}

// ConfirmOrder confirms a pending order
func (c *Client) ConfirmOrder(ctx context.Context, token, orderID string) (entities.BuyOrder, error) {
	var resp orderResponse
	if err := c.api.Post(ctx, "/simple-buy/trades/"+seg(orderID), orderAction{Action: "confirm"}, &resp, apiclient.WithBearer(token)); err != nil {
		return entities.BuyOrder{}, fmt.Errorf("confirm order failed: %w", err)
	}
	return resp.toEntity()
}

func (c *Client) CancelOrder(ctx context.Context, token, orderID string) error {
	if err := c.api.Delete(ctx, "/simple-buy/trades/"+seg(orderID), nil, apiclient.WithBearer(token)); err != nil {
		return fmt.Errorf("cancel order failed: %w", err)
	}
	return nil
}

func (c *Client) Order(ctx context.Context, token, orderID string) (entities.BuyOrder, error) {
	var resp orderResponse
	if err := c.api.Get(ctx, "/simple-buy/trades/"+seg(orderID), &resp, apiclient.WithBearer(token)); err != nil {
		return entities.BuyOrder{}, fmt.Errorf("get order failed: %w", err)
	}
	return resp.toEntity()
}

func minorValue(raw, code string) (entities.MoneyValue, error) {
	currency, err := entities.CurrencyByCode(code)
	if err != nil {
		return entities.MoneyValue{}, err
	}
	if raw == "" {
		return entities.Zero(currency), nil
	}
	minor, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return entities.MoneyValue{}, fmt.Errorf("invalid minor amount %q", raw)
	}
	return entities.MoneyFromMinor(minor, currency), nil
}

func (o orderResponse) toEntity() (entities.BuyOrder, error) {
	input, err := minorValue(o.InputQuantity, o.InputCurrency)
	if err != nil {
		return entities.BuyOrder{}, fmt.Errorf("order %s input: %w", o.ID, err)
	}
	output, err := minorValue(o.OutputQuantity, o.OutputCurrency)
	if err != nil {
		return entities.BuyOrder{}, fmt.Errorf("order %s output: %w", o.ID, err)
	}
	fee, err := minorValue(o.Fee, o.InputCurrency)
	if err != nil {
		return entities.BuyOrder{}, fmt.Errorf("order %s fee: %w", o.ID, err)
	}
	price := decimal.Zero
	if o.Price != "" {
		if price, err = decimal.NewFromString(o.Price); err != nil {
			return entities.BuyOrder{}, fmt.Errorf("order %s price: %w", o.ID, err)
		}
	}
	return entities.BuyOrder{
		ID:              o.ID,
		State:           entities.OrderState(o.State),
		InputValue:      input,
		OutputValue:     output,
		Fee:             fee,
		Price:           price,
		PaymentMethodID: o.PaymentMethodID,
		PaymentType:     entities.PaymentMethodType(o.PaymentType),
		CreatedAt:       o.InsertedAt,
		ExpiresAt:       o.ExpiresAt,
	}, nil
}
