package fees

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rail-service/txengine/internal/domain/entities"
	"github.com/rail-service/txengine/internal/infrastructure/cache"
)

// Client fetches fee schedules
type Client interface {
	Fees(ctx context.Context, asset entities.Currency, network string) (entities.FeeSchedule, error)
}

// Target names one fee schedule: an asset, and for EVM assets the network
type Target struct {
	Asset   entities.Currency
	Network string
}

func (t Target) String() string {
	if t.Network == "" {
		return t.Asset.Code
	}
	return t.Asset.Code + "@" + t.Network
}

// Service serves per-asset fee schedules from a periodic cache
type Service struct {
	schedules *cache.CachedValue[Target, entities.FeeSchedule]
	logger    *zap.Logger
}

func NewService(registry *cache.Registry, client Client, ttl time.Duration, logger *zap.Logger) *Service {
	fetch := func(ctx context.Context, t Target) (entities.FeeSchedule, error) {
		schedule, err := client.Fees(ctx, t.Asset, t.Network)
		if err != nil {
			return entities.FeeSchedule{}, fmt.Errorf("fetch %s fees: %w", t, err)
		}
		if schedule.Regular.IsNegative() || schedule.Priority.IsNegative() {
			return entities.FeeSchedule{}, fmt.Errorf("negative fee schedule for %s", t)
		}
		if schedule.Priority.LessThan(schedule.Regular) {
			schedule.Priority = schedule.Regular
		}
		return schedule, nil
	}
	return &Service{
		schedules: cache.Register(registry, "fee_schedule", cache.Periodic(ttl), fetch,
			cache.WithKeyFunc[Target, entities.FeeSchedule](Target.String)),
		logger: logger,
	}
}

// Fees returns the schedule for asset on network (empty for non-EVM assets)
func (s *Service) Fees(ctx context.Context, asset entities.Currency, network string) (entities.FeeSchedule, error) {
	return s.schedules.Get(ctx, Target{Asset: asset, Network: network})
}

// Warm refetches every target, continuing past failures
func (s *Service) Warm(ctx context.Context, targets []Target) error {
	var errs []error
	for _, t := range targets {
		if _, err := s.schedules.GetForced(ctx, t); err != nil {
			s.logger.Warn("Failed to warm fee schedule", zap.String("target", t.String()), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
