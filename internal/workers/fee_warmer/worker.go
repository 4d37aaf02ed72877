// Package fee_warmer keeps fee schedules warm so engine calls rarely wait on
// the fee backend.
package fee_warmer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/rail-service/txengine/internal/domain/entities"
	"github.com/rail-service/txengine/internal/domain/services/fees"
)

const DefaultSchedule = "@every 1m"

// Warmer refetches fee schedules
type Warmer interface {
	Warm(ctx context.Context, targets []fees.Target) error
}

type Worker struct {
	warmer   Warmer
	targets  []fees.Target
	schedule string
	cron     *cron.Cron
	logger   *zap.Logger
}

// ParseTargets reads targets written as ASSET or ASSET@network, e.g. BTC, ETH@ethereum
func ParseTargets(entries []string) ([]fees.Target, error) {
	targets := make([]fees.Target, 0, len(entries))
	for _, entry := range entries {
		code, network, _ := strings.Cut(strings.TrimSpace(entry), "@")
		currency, err := entities.CurrencyByCode(strings.ToUpper(code))
		if err != nil {
			return nil, fmt.Errorf("fee warmer target %q: %w", entry, err)
		}
		targets = append(targets, fees.Target{Asset: currency, Network: network})
	}
	return targets, nil
}

func NewWorker(warmer Warmer, targets []fees.Target, schedule string, logger *zap.Logger) *Worker {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Worker{
		warmer:   warmer,
		targets:  targets,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger,
	}
}

// RunOnce warms every target
func (w *Worker) RunOnce(ctx context.Context) {
	start := time.Now()
	if err := w.warmer.Warm(ctx, w.targets); err != nil {
		w.logger.Warn("Fee warm-up incomplete", zap.Error(err))
		return
	}
	w.logger.Debug("Fee schedules warmed",
		zap.Int("targets", len(w.targets)),
		zap.Duration("duration", time.Since(start)))
}

func (w *Worker) Start() error {
	if len(w.targets) == 0 {
		w.logger.Info("Fee warmer has no targets, not scheduling")
		return nil
	}
	_, err := w.cron.AddFunc(w.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		w.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid fee warmer schedule %q: %w", w.schedule, err)
	}

	w.cron.Start()
	w.logger.Info("Fee warmer started", zap.String("schedule", w.schedule), zap.Int("targets", len(w.targets)))
	return nil
}

// Stop waits for a running warm-up to finish or ctx to end
func (w *Worker) Stop(ctx context.Context) error {
	select {
	case <-w.cron.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	w.logger.Info("Fee warmer stopped")
	return nil
}
