package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rail-service/txengine/internal/domain/entities"
	domainerrors "github.com/rail-service/txengine/internal/domain/errors"
)

type stubKYC struct {
	tiers        entities.UserTiers
	fetched      bool
	pollDeadline time.Time
	pollErr      error
}

func (s *stubKYC) Tiers(context.Context, string) (entities.UserTiers, error) { return s.tiers, nil }

func (s *stubKYC) FetchTiers(context.Context, string) (entities.UserTiers, error) {
	s.fetched = true
	return s.tiers, nil
}

func (s *stubKYC) PollForTier(_ context.Context, _ string, _ entities.KYCTier, deadline time.Time) (entities.UserTiers, error) {
	s.pollDeadline = deadline
	return s.tiers, s.pollErr
}

func (s *stubKYC) SimplifiedDueDiligenceEligibility(context.Context, string) (entities.SimplifiedDueDiligenceResponse, error) {
	return entities.SimplifiedDueDiligenceResponse{}, nil
}

func (s *stubKYC) SimplifiedDueDiligenceVerification(context.Context, string, bool) (entities.SimplifiedDueDiligenceVerification, error) {
	return entities.SimplifiedDueDiligenceVerification{}, nil
}

func (s *stubKYC) CanPurchaseCrypto(context.Context, string) (bool, error) {
	return s.tiers.IsTier2Approved(), nil
}

func kycRouter(kyc KYCService, clk clock.Clock) *gin.Engine {
	h := NewKYCHandlers(kyc, clk)
	r := gin.New()
	r.Use(withWallet(testGUID))
	r.GET("/kyc/tiers", h.Tiers)
	r.POST("/kyc/tiers/:tier/await", h.AwaitTier)
	r.GET("/kyc/sdd", h.DueDiligence)
	return r
}

func verifiedTier2() entities.UserTiers {
	return entities.UserTiers{Tiers: []entities.TierState{
		{Tier: entities.KYCTierBasic, State: entities.KYCStateVerified},
		{Tier: entities.KYCTierAdvanced, State: entities.KYCStateVerified},
	}}
}

func TestKYCTiers(t *testing.T) {
	kyc := &stubKYC{tiers: verifiedTier2()}
	r := kycRouter(kyc, nil)

	w := send(r, http.MethodGet, "/kyc/tiers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"latestApproved":2`)
	assert.False(t, kyc.fetched)

	send(r, http.MethodGet, "/kyc/tiers?refresh=true", nil)
	assert.True(t, kyc.fetched)
}

func TestKYCAwaitTier(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	kyc := &stubKYC{tiers: verifiedTier2()}
	r := kycRouter(kyc, clock.NewTestClock(now))

	w := send(r, http.MethodPost, "/kyc/tiers/2/await?timeout=30", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, now.Add(30*time.Second), kyc.pollDeadline)

	send(r, http.MethodPost, "/kyc/tiers/2/await?timeout=86400", nil)
	assert.Equal(t, now.Add(maxTierWait), kyc.pollDeadline)

	w = send(r, http.MethodPost, "/kyc/tiers/7/await", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	kyc.pollErr = domainerrors.ErrPollTimedOut
	w = send(r, http.MethodPost, "/kyc/tiers/2/await", nil)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestKYCDueDiligence(t *testing.T) {
	r := kycRouter(&stubKYC{tiers: verifiedTier2()}, nil)

	w := send(r, http.MethodGet, "/kyc/sdd?wait=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"canPurchaseCrypto":true`)
}

func TestHealthChecks(t *testing.T) {
	healthy := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	h := NewCoreHandlers(map[string]Pinger{"database": healthy, "redis": down}, prometheus.NewRegistry(), "test", nil)
	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/live", h.Live)
	r.GET("/metrics", h.Metrics())

	w := send(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")

	w = send(r, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "not_ready")

	assert.Equal(t, http.StatusOK, send(r, http.MethodGet, "/live", nil).Code)
	assert.Equal(t, http.StatusOK, send(r, http.MethodGet, "/metrics", nil).Code)
}
