package session_cleanup

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SessionSweeper drops expired transaction sessions
type SessionSweeper interface {
	Sweep()
	Count() int
}

// KeyPurger deletes expired idempotency keys
type KeyPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

type Schedules struct {
	Sessions        string
	IdempotencyKeys string
}

func DefaultSchedules() Schedules {
	return Schedules{
		Sessions:        "@every 1m",
		IdempotencyKeys: "0 * * * *",
	}
}

type Worker struct {
	sessions  SessionSweeper
	keys      KeyPurger
	schedules Schedules
	cron      *cron.Cron
	logger    *zap.Logger
}

func NewWorker(sessions SessionSweeper, keys KeyPurger, schedules Schedules, logger *zap.Logger) *Worker {
	return &Worker{
		sessions:  sessions,
		keys:      keys,
		schedules: schedules,
		cron:      cron.New(),
		logger:    logger,
	}
}

// SweepSessions evicts expired sessions, which cancels their open orders
func (w *Worker) SweepSessions() {
	before := w.sessions.Count()
	w.sessions.Sweep()
	if evicted := before - w.sessions.Count(); evicted > 0 {
		w.logger.Info("Expired transaction sessions evicted", zap.Int("count", evicted))
	}
}

func (w *Worker) PurgeIdempotencyKeys(ctx context.Context) {
	if _, err := w.keys.DeleteExpired(ctx); err != nil {
		w.logger.Error("Failed to cleanup expired idempotency keys", zap.Error(err))
	}
}

func (w *Worker) Start() error {
	if _, err := w.cron.AddFunc(w.schedules.Sessions, w.SweepSessions); err != nil {
		return err
	}

	if w.keys != nil {
		_, err := w.cron.AddFunc(w.schedules.IdempotencyKeys, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			w.PurgeIdempotencyKeys(ctx)
		})
		if err != nil {
			return err
		}
	}

	w.cron.Start()
	w.logger.Info("Session cleanup worker started")
	return nil
}

func (w *Worker) Stop(ctx context.Context) error {
	select {
	case <-w.cron.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	w.logger.Info("Session cleanup worker stopped")
	return nil
}
