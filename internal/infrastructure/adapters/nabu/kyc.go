package nabu

import (
	"context"
	"fmt"

	"github.com/rail-service/txengine/internal/domain/entities"
	"github.com/rail-service/txengine/internal/infrastructure/adapters/apiclient"
)

func (c *Client) Tiers(ctx context.Context, token string) (entities.UserTiers, error) {
	var resp tiersResponse
	if err := c.api.Get(ctx, "/kyc/tiers", &resp, apiclient.WithBearer(token)); err != nil {
		return entities.UserTiers{}, fmt.Errorf("get kyc tiers failed: %w", err)
	}
	tiers := entities.UserTiers{Tiers: make([]entities.TierState, 0, len(resp.Tiers))}
	for _, t := range resp.Tiers {
		tiers.Tiers = append(tiers.Tiers, entities.TierState{
			Tier:  entities.KYCTier(t.Index),
			State: entities.KYCState(t.State),
		})
	}
	return tiers, nil
}

func (c *Client) SimplifiedDueDiligenceEligibility(ctx context.Context, token string) (entities.SimplifiedDueDiligenceResponse, error) {
	var resp sddEligibilityResponse
	if err := c.api.Get(ctx, "/sdd/eligible", &resp, apiclient.WithBearer(token)); err != nil {
		return entities.SimplifiedDueDiligenceResponse{}, fmt.Errorf("get sdd eligibility failed: %w", err)
	}
	return entities.SimplifiedDueDiligenceResponse{Eligible: resp.Eligible, Tier: entities.KYCTier(resp.Tier)}, nil
}

func (c *Client) SimplifiedDueDiligenceVerification(ctx context.Context, token string) (entities.SimplifiedDueDiligenceVerification, error) {
	var resp sddVerificationResponse
	if err := c.api.Get(ctx, "/sdd/verified", &resp, apiclient.WithBearer(token)); err != nil {
		return entities.SimplifiedDueDiligenceVerification{}, fmt.Errorf("get sdd verification failed: %w", err)
	}
	return entities.SimplifiedDueDiligenceVerification{Verified: resp.Verified, TaskComplete: resp.TaskComplete}, nil
}
