package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/rail-service/txengine/internal/domain/entities"
)

// KYCService answers tier and due diligence questions for a wallet
type KYCService interface {
	Tiers(ctx context.Context, guid string) (entities.UserTiers, error)
	FetchTiers(ctx context.Context, guid string) (entities.UserTiers, error)
	PollForTier(ctx context.Context, guid string, tier entities.KYCTier, deadline time.Time) (entities.UserTiers, error)
	SimplifiedDueDiligenceEligibility(ctx context.Context, guid string) (entities.SimplifiedDueDiligenceResponse, error)
	SimplifiedDueDiligenceVerification(ctx context.Context, guid string, waitForTask bool) (entities.SimplifiedDueDiligenceVerification, error)
	CanPurchaseCrypto(ctx context.Context, guid string) (bool, error)
}

const maxTierWait = 5 * time.Minute

type KYCHandlers struct {
	kyc   KYCService
	clock clock.Clock
}

func NewKYCHandlers(kyc KYCService, clk clock.Clock) *KYCHandlers {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &KYCHandlers{kyc: kyc, clock: clk}
}

// Tiers handles GET /api/v1/kyc/tiers; ?refresh=true bypasses the cache
func (h *KYCHandlers) Tiers(c *gin.Context) {
	guid, err := getGUID(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error(), nil)
		return
	}
	fetch := h.kyc.Tiers
	if c.Query("refresh") == "true" {
		fetch = h.kyc.FetchTiers
	}
	tiers, err := fetch(c.Request.Context(), guid)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tiers":          tiers.Tiers,
		"latestApproved": tiers.LatestApprovedTier(),
	})
}

// AwaitTier handles POST /api/v1/kyc/tiers/:tier/await?timeout=60. It returns
// once the tier is decided or the timeout, in seconds, passes.
func (h *KYCHandlers) AwaitTier(c *gin.Context) {
	guid, err := getGUID(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error(), nil)
		return
	}
	tier, err := strconv.Atoi(c.Param("tier"))
	if err != nil || tier < int(entities.KYCTierBasic) || tier > int(entities.KYCTierAdvanced) {
		respondBadRequest(c, ErrCodeInvalidRequest, "tier must be 1 or 2")
		return
	}
	timeout := time.Minute
	if raw := c.Query("timeout"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			respondBadRequest(c, ErrCodeInvalidRequest, "timeout must be a positive number of seconds")
			return
		}
		timeout = time.Duration(seconds) * time.Second
	}
	if timeout > maxTierWait {
		timeout = maxTierWait
	}

	want := entities.KYCTier(tier)
	tiers, err := h.kyc.PollForTier(c.Request.Context(), guid, want, h.clock.Now().Add(timeout))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tier":  want,
		"state": tiers.StateFor(want),
		"tiers": tiers.Tiers,
	})
}

// DueDiligence handles GET /api/v1/kyc/sdd; ?wait=true blocks until the
// verification task completes
func (h *KYCHandlers) DueDiligence(c *gin.Context) {
	ctx := c.Request.Context()
	guid, err := getGUID(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error(), nil)
		return
	}
	eligibility, err := h.kyc.SimplifiedDueDiligenceEligibility(ctx, guid)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	verification, err := h.kyc.SimplifiedDueDiligenceVerification(ctx, guid, c.Query("wait") == "true")
	if err != nil {
		respondServiceError(c, err)
		return
	}
	canBuy, err := h.kyc.CanPurchaseCrypto(ctx, guid)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"eligibility":       eligibility,
		"verification":      verification,
		"canPurchaseCrypto": canBuy,
	})
}
