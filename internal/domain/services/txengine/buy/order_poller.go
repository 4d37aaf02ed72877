package buy

import (
	"context"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/rail-service/txengine/internal/domain/entities"
	"github.com/rail-service/txengine/internal/domain/services/nabuauth"
	"github.com/rail-service/txengine/internal/domain/services/polling"
	"github.com/rail-service/txengine/pkg/logger"
)

const (
	DefaultSettlementInterval    = 2 * time.Second
	DefaultSettlementMaxAttempts = 60
)

type OrderReader interface {
	Order(ctx context.Context, token, orderID string) (entities.BuyOrder, error)
}

// OrderPoller waits for confirmed orders to reach a final state
type OrderPoller struct {
	orders OrderReader
	auth   nabuauth.Authenticator
	cfg    polling.Config
	clock  clock.Clock
	logger *logger.Logger
}

func NewOrderPoller(orders OrderReader, auth nabuauth.Authenticator, interval time.Duration, maxAttempts int, clk clock.Clock, log *logger.Logger) *OrderPoller {
	if interval <= 0 {
		interval = DefaultSettlementInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultSettlementMaxAttempts
	}
	return &OrderPoller{
		orders: orders,
		auth:   auth,
		cfg:    polling.Config{Delay: interval, MaxAttempts: maxAttempts},
		clock:  clk,
		logger: log,
	}
}

// AwaitSettlement polls the order until it is finished, cancelled, failed or
// expired. It fails with ErrPollAttemptsExceeded when the attempts run out.
func (p *OrderPoller) AwaitSettlement(ctx context.Context, guid, orderID string) (entities.BuyOrder, error) {
	poller := polling.New(p.cfg, p.clock)
	order, err := polling.Poll(ctx, poller, func(ctx context.Context) (entities.BuyOrder, bool, error) {
		order, err := nabuauth.Do(ctx, p.auth, guid, func(ctx context.Context, token string) (entities.BuyOrder, error) {
			return p.orders.Order(ctx, token, orderID)
		})
		if err != nil {
			return order, false, err
		}
		return order, order.State.IsFinal(), nil
	})
	if err != nil {
		p.logger.Warn("Order settlement not observed", "order_id", orderID, "error", err)
		return order, err
	}
	p.logger.Info("Order settled", "order_id", orderID, "state", string(order.State))
	return order, nil
}
