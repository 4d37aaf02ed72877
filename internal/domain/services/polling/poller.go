// Package polling repeats a check with a fixed delay until it reports done, the
// attempts run out, a wall-clock deadline passes, or the poller is cancelled.
package polling

import (
	"context"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"go.uber.org/atomic"

	domainerrors "github.com/rail-service/txengine/internal/domain/errors"
)

// Config bounds a poll. Zero MaxAttempts or Timeout means unbounded on that axis.
type Config struct {
	Delay       time.Duration
	MaxAttempts int
	Timeout     time.Duration
}

// CheckFunc inspects the polled resource. Returning done ends the poll with value;
// an error ends it with that error.
type CheckFunc[T any] func(ctx context.Context) (value T, done bool, err error)

// Poller is cancellable: Cancel flips the active flag and the next iteration of
// any running or future poll fails with ErrPollCancelled until Reset.
type Poller struct {
	cfg    Config
	clock  clock.Clock
	active *atomic.Bool
}

func New(cfg Config, clk clock.Clock) *Poller {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &Poller{cfg: cfg, clock: clk, active: atomic.NewBool(true)}
}

func (p *Poller) Cancel() { p.active.Store(false) }
func (p *Poller) Reset()  { p.active.Store(true) }

// Poll runs check under the poller configuration
func Poll[T any](ctx context.Context, p *Poller, check CheckFunc[T]) (T, error) {
	return PollUntil(ctx, p, time.Time{}, check)
}

// PollUntil is Poll with an explicit deadline that overrides the configured timeout
func PollUntil[T any](ctx context.Context, p *Poller, deadline time.Time, check CheckFunc[T]) (T, error) {
	var zero T
	if deadline.IsZero() && p.cfg.Timeout > 0 {
		deadline = p.clock.Now().Add(p.cfg.Timeout)
	}

	for attempt := 1; ; attempt++ {
		if !p.active.Load() {
			return zero, domainerrors.ErrPollCancelled
		}
		if !deadline.IsZero() && p.clock.Now().After(deadline) {
			return zero, domainerrors.ErrPollTimedOut
		}

		value, done, err := check(ctx)
		if err != nil {
			return zero, err
		}
		if done {
			return value, nil
		}
		if p.cfg.MaxAttempts > 0 && attempt >= p.cfg.MaxAttempts {
			return zero, domainerrors.ErrPollAttemptsExceeded
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-p.clock.TickAfter(p.cfg.Delay):
		}
	}
}
