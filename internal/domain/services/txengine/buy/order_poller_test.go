package buy

import (
	"context"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rail-service/txengine/internal/domain/entities"
	domainerrors "github.com/rail-service/txengine/internal/domain/errors"
	"github.com/rail-service/txengine/pkg/logger"
)

func withState(o entities.BuyOrder, s entities.OrderState) entities.BuyOrder {
	o.State = s
	return o
}

func TestOrderPoller_AwaitSettlement(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ticks := make(chan time.Duration)
	clk := clock.NewTestClockWithTickSignal(start, ticks)

	orders := &mockOrders{}
	base := order(t, "order-1")
	orders.On("Order", mock.Anything, "token", "order-1").Return(withState(base, entities.OrderStatePendingDeposit), nil).Once()
	orders.On("Order", mock.Anything, "token", "order-1").Return(withState(base, entities.OrderStateDepositMatched), nil).Once()
	orders.On("Order", mock.Anything, "token", "order-1").Return(withState(base, entities.OrderStateFinished), nil).Once()

	p := NewOrderPoller(orders, &passthroughAuth{}, 0, 0, clk, logger.NewLogger(zap.NewNop()))

	type outcome struct {
		order entities.BuyOrder
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		o, err := p.AwaitSettlement(context.Background(), "guid", "order-1")
		done <- outcome{o, err}
	}()

	for i := 1; i <= 2; i++ {
		assert.Equal(t, DefaultSettlementInterval, <-ticks)
		clk.SetTime(start.Add(time.Duration(i) * DefaultSettlementInterval))
	}
	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, entities.OrderStateFinished, got.order.State)
	orders.AssertExpectations(t)
}

func TestOrderPoller_GivesUp(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ticks := make(chan time.Duration)
	clk := clock.NewTestClockWithTickSignal(start, ticks)

	orders := &mockOrders{}
	orders.On("Order", mock.Anything, "token", "order-1").Return(withState(order(t, "order-1"), entities.OrderStatePendingDeposit), nil)

	p := NewOrderPoller(orders, &passthroughAuth{}, time.Second, 2, clk, logger.NewLogger(zap.NewNop()))
	errs := make(chan error, 1)
	go func() {
		_, err := p.AwaitSettlement(context.Background(), "guid", "order-1")
		errs <- err
	}()

	<-ticks
	clk.SetTime(start.Add(time.Second))
	assert.ErrorIs(t, <-errs, domainerrors.ErrPollAttemptsExceeded)
	orders.AssertNumberOfCalls(t, "Order", 2)
}
