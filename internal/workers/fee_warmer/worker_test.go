package fee_warmer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rail-service/txengine/internal/domain/entities"
	"github.com/rail-service/txengine/internal/domain/services/fees"
)

type countingWarmer struct {
	mu    sync.Mutex
	calls int
	seen  []fees.Target
	err   error
}

func (c *countingWarmer) Warm(_ context.Context, targets []fees.Target) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.seen = targets
	return c.err
}

func (c *countingWarmer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestParseTargets(t *testing.T) {
	targets, err := ParseTargets([]string{"BTC", " eth@ethereum ", "MATIC@polygon"})
	require.NoError(t, err)
	assert.Equal(t, []fees.Target{
		{Asset: entities.BTC},
		{Asset: entities.ETH, Network: "ethereum"},
		{Asset: entities.MATIC, Network: "polygon"},
	}, targets)

	_, err = ParseTargets([]string{"DOGE"})
	assert.Error(t, err)
}

func TestRunOnce_PassesTargetsAndSurvivesErrors(t *testing.T) {
	warmer := &countingWarmer{err: errors.New("fee backend down")}
	targets := []fees.Target{{Asset: entities.BTC}}
	w := NewWorker(warmer, targets, "", zap.NewNop())

	w.RunOnce(context.Background())

	assert.Equal(t, 1, warmer.count())
	assert.Equal(t, targets, warmer.seen)
}

func TestStart_SchedulesWarmups(t *testing.T) {
	warmer := &countingWarmer{}
	w := NewWorker(warmer, []fees.Target{{Asset: entities.XLM}}, "@every 1s", zap.NewNop())

	require.NoError(t, w.Start())
	assert.Eventually(t, func() bool { return warmer.count() > 0 }, 3*time.Second, 50*time.Millisecond)
	require.NoError(t, w.Stop(context.Background()))
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	w := NewWorker(&countingWarmer{}, []fees.Target{{Asset: entities.BTC}}, "not a schedule", zap.NewNop())
	assert.Error(t, w.Start())
}
