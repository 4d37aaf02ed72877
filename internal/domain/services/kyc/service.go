// Package kyc serves the user's KYC tiers and simplified due diligence status.
// At most one tier fetch runs at a time, bounded by a fixed timeout.
package kyc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"golang.org/x/sync/semaphore"

	"github.com/rail-service/txengine/internal/domain/entities"
	domainerrors "github.com/rail-service/txengine/internal/domain/errors"
	"github.com/rail-service/txengine/internal/domain/services/nabuauth"
	"github.com/rail-service/txengine/internal/domain/services/polling"
	"github.com/rail-service/txengine/internal/infrastructure/cache"
	"github.com/rail-service/txengine/pkg/logger"
)

// Client is the nabu KYC API
type Client interface {
	Tiers(ctx context.Context, token string) (entities.UserTiers, error)
	SimplifiedDueDiligenceEligibility(ctx context.Context, token string) (entities.SimplifiedDueDiligenceResponse, error)
	SimplifiedDueDiligenceVerification(ctx context.Context, token string) (entities.SimplifiedDueDiligenceVerification, error)
}

type Config struct {
	FetchTimeout time.Duration
	PollInterval time.Duration
}

type Service struct {
	cfg    Config
	client Client
	auth   nabuauth.Authenticator
	clock  clock.Clock
	logger *logger.Logger

	sem   *semaphore.Weighted
	tiers *cache.CachedValue[string, entities.UserTiers]

	mu      sync.Mutex
	pollers map[string]map[*polling.Poller]struct{}
}

func NewService(registry *cache.Registry, client Client, auth nabuauth.Authenticator, cfg Config, logger *logger.Logger) *Service {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	s := &Service{
		cfg:     cfg,
		client:  client,
		auth:    auth,
		clock:   registry.Clock(),
		logger:  logger,
		sem:     semaphore.NewWeighted(1),
		pollers: make(map[string]map[*polling.Poller]struct{}),
	}
	s.tiers = cache.Register(registry, "kyc_tiers", cache.OnLoginLogout(), s.fetchTiers)
	return s
}

func (s *Service) fetchTiers(ctx context.Context, guid string) (entities.UserTiers, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return entities.UserTiers{}, domainerrors.ServiceUnavailableError("kyc tiers", fmt.Errorf("waiting for tier fetch: %w", err))
	}
	defer s.sem.Release(1)

	tiers, err := nabuauth.Do(ctx, s.auth, guid, func(ctx context.Context, token string) (entities.UserTiers, error) {
		return s.client.Tiers(ctx, token)
	})
	if err != nil {
		s.logger.Warn("Failed to fetch kyc tiers", "error", err)
		return entities.UserTiers{}, err
	}
	return tiers, nil
}

// Tiers returns the cached tiers, kept until the next login or logout
func (s *Service) Tiers(ctx context.Context, guid string) (entities.UserTiers, error) {
	return s.tiers.Get(ctx, guid)
}

// FetchTiers bypasses the cache
func (s *Service) FetchTiers(ctx context.Context, guid string) (entities.UserTiers, error) {
	return s.tiers.GetForced(ctx, guid)
}

func (s *Service) newPoller(guid string) (*polling.Poller, func()) {
	p := polling.New(polling.Config{Delay: s.cfg.PollInterval}, s.clock)
	s.mu.Lock()
	if s.pollers[guid] == nil {
		s.pollers[guid] = make(map[*polling.Poller]struct{})
	}
	s.pollers[guid][p] = struct{}{}
	s.mu.Unlock()
	return p, func() {
		s.mu.Lock()
		delete(s.pollers[guid], p)
		if len(s.pollers[guid]) == 0 {
			delete(s.pollers, guid)
		}
		s.mu.Unlock()
	}
}

// Cancel stops every poll running for guid; they fail with ErrPollCancelled
func (s *Service) Cancel(guid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := range s.pollers[guid] {
		p.Cancel()
	}
}

// PollForTier refetches tiers every poll interval until tier is approved or
// rejected, or deadline passes
func (s *Service) PollForTier(ctx context.Context, guid string, tier entities.KYCTier, deadline time.Time) (entities.UserTiers, error) {
	p, done := s.newPoller(guid)
	defer done()

	return polling.PollUntil(ctx, p, deadline, func(ctx context.Context) (entities.UserTiers, bool, error) {
		tiers, err := s.FetchTiers(ctx, guid)
		if err != nil {
			return tiers, false, err
		}
		if tiers.LatestApprovedTier() >= tier {
			return tiers, true, nil
		}
		switch tiers.StateFor(tier) {
		case entities.KYCStateRejected, entities.KYCStateExpired:
			return tiers, true, nil
		}
		return tiers, false, nil
	})
}

// SimplifiedDueDiligenceEligibility reports SDD eligibility; tier 2 users always qualify
func (s *Service) SimplifiedDueDiligenceEligibility(ctx context.Context, guid string) (entities.SimplifiedDueDiligenceResponse, error) {
	tiers, err := s.Tiers(ctx, guid)
	if err != nil {
		return entities.SimplifiedDueDiligenceResponse{}, err
	}
	if tiers.IsTier2Approved() {
		return entities.SimplifiedDueDiligenceResponse{Eligible: true, Tier: entities.KYCTierAdvanced}, nil
	}
	return nabuauth.Do(ctx, s.auth, guid, func(ctx context.Context, token string) (entities.SimplifiedDueDiligenceResponse, error) {
		return s.client.SimplifiedDueDiligenceEligibility(ctx, token)
	})
}

// SimplifiedDueDiligenceVerification reports SDD verification. With waitForTask it
// polls until the verification task completes.
func (s *Service) SimplifiedDueDiligenceVerification(ctx context.Context, guid string, waitForTask bool) (entities.SimplifiedDueDiligenceVerification, error) {
	tiers, err := s.Tiers(ctx, guid)
	if err != nil {
		return entities.SimplifiedDueDiligenceVerification{}, err
	}
	if tiers.IsTier2Approved() {
		return entities.SimplifiedDueDiligenceVerification{Verified: true, TaskComplete: true}, nil
	}

	fetch := func(ctx context.Context) (entities.SimplifiedDueDiligenceVerification, error) {
		return nabuauth.Do(ctx, s.auth, guid, func(ctx context.Context, token string) (entities.SimplifiedDueDiligenceVerification, error) {
			return s.client.SimplifiedDueDiligenceVerification(ctx, token)
		})
	}
	if !waitForTask {
		return fetch(ctx)
	}

	p, done := s.newPoller(guid)
	defer done()
	return polling.Poll(ctx, p, func(ctx context.Context) (entities.SimplifiedDueDiligenceVerification, bool, error) {
		v, err := fetch(ctx)
		return v, err == nil && v.TaskComplete, err
	})
}

// CanPurchaseCrypto is true for tier 2 users and SDD verified users
func (s *Service) CanPurchaseCrypto(ctx context.Context, guid string) (bool, error) {
	tiers, err := s.Tiers(ctx, guid)
	if err != nil {
		return false, err
	}
	if tiers.IsTier2Approved() {
		return true, nil
	}
	sdd, err := s.SimplifiedDueDiligenceVerification(ctx, guid, false)
	if err != nil {
		return false, err
	}
	return sdd.Verified, nil
}
