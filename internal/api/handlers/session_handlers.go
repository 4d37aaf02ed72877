package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lightningnetwork/lnd/clock"
	"go.uber.org/zap"

	"github.com/rail-service/txengine/internal/api/middleware"
	"github.com/rail-service/txengine/internal/domain/entities"
	"github.com/rail-service/txengine/internal/infrastructure/cache"
	"github.com/rail-service/txengine/pkg/auth"
	"github.com/rail-service/txengine/pkg/security"
)

// WalletCredentialsStore persists the wallet credentials used to reach nabu
type WalletCredentialsStore interface {
	Credentials(ctx context.Context, guid string) (entities.WalletCredentials, error)
	SaveCredentials(ctx context.Context, creds entities.WalletCredentials) error
	OfflineToken(ctx context.Context, guid string) (*entities.OfflineToken, error)
}

// NabuSessions obtains and forgets nabu session tokens
type NabuSessions interface {
	Authenticate(ctx context.Context, guid string, call func(ctx context.Context, token string) error) error
	Forget(ctx context.Context, guid string)
}

// TokenRevoker rejects API session tokens after logout
type TokenRevoker interface {
	Revoke(ctx context.Context, tokenHash string, expiresAt time.Time) error
	RevokeAll(ctx context.Context, userID string, accessTTL time.Duration) error
}

// PollCanceller stops a wallet's background polls
type PollCanceller interface {
	Cancel(guid string)
}

type SessionConfig struct {
	JWTSecret string
	JWTIssuer string
	AccessTTL time.Duration
	OTPIssuer string
}

// SessionHandlers logs wallets in and out of the API
type SessionHandlers struct {
	cfg         SessionConfig
	credentials WalletCredentialsStore
	nabu        NabuSessions
	revoker     TokenRevoker
	sessions    SessionManager
	polls       PollCanceller
	events      *cache.AuthEvents
	clock       clock.Clock
	logger      *zap.Logger
}

func NewSessionHandlers(
	cfg SessionConfig,
	credentials WalletCredentialsStore,
	nabu NabuSessions,
	revoker TokenRevoker,
	sessions SessionManager,
	polls PollCanceller,
	events *cache.AuthEvents,
	clk clock.Clock,
	logger *zap.Logger,
) *SessionHandlers {
	registerValidators()
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &SessionHandlers{
		cfg:         cfg,
		credentials: credentials,
		nabu:        nabu,
		revoker:     revoker,
		sessions:    sessions,
		polls:       polls,
		events:      events,
		clock:       clk,
		logger:      logger,
	}
}

type loginRequest struct {
	GUID      string `json:"guid" binding:"required"`
	SharedKey string `json:"sharedKey" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
}

type loginResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	UserID      string    `json:"userId"`
}

// Login handles POST /api/v1/session/login. The wallet credentials are stored,
// a nabu session is established with them and an API token is issued.
func (h *SessionHandlers) Login(c *gin.Context) {
	ctx := c.Request.Context()
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	creds := entities.WalletCredentials{GUID: req.GUID, SharedKey: req.SharedKey, Email: req.Email}
	if err := h.credentials.SaveCredentials(ctx, creds); err != nil {
		respondServiceError(c, err)
		return
	}

	h.nabu.Forget(ctx, req.GUID)
	if err := h.nabu.Authenticate(ctx, req.GUID, func(context.Context, string) error { return nil }); err != nil {
		h.logger.Warn("Nabu session not established",
			zap.String("guid", security.MaskIdentifier(req.GUID)), zap.Error(err))
		respondServiceError(c, err)
		return
	}
	offline, err := h.credentials.OfflineToken(ctx, req.GUID)
	if err != nil || offline == nil {
		h.logger.Error("Offline token missing after authentication", zap.String("guid", security.MaskIdentifier(req.GUID)), zap.Error(err))
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "Internal server error", nil)
		return
	}

	now := h.clock.Now()
	token, err := auth.GenerateAccessToken(offline.UserID, req.GUID, h.cfg.JWTSecret, h.cfg.JWTIssuer, h.cfg.AccessTTL, now)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	h.events.Publish(cache.AuthEvent{Kind: cache.AuthEventLogin, UserID: req.GUID})
	h.logger.Info("Wallet logged in", zap.String("user_id", offline.UserID))

	c.JSON(http.StatusOK, loginResponse{
		AccessToken: token,
		ExpiresAt:   now.Add(h.cfg.AccessTTL),
		UserID:      offline.UserID,
	})
}

// Logout handles POST /api/v1/session/logout. The token is revoked, every
// transaction session of the wallet is stopped and login-scoped caches are flushed.
func (h *SessionHandlers) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	guid, err := getGUID(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error(), nil)
		return
	}

	expiresAt := h.clock.Now().Add(h.cfg.AccessTTL)
	if exp, ok := c.Get(middleware.ContextTokenExpiry); ok {
		expiresAt = exp.(time.Time)
	}
	err = h.revoker.Revoke(ctx, auth.HashToken(c.GetString(middleware.ContextToken)), expiresAt)
	// everywhere=true also revokes tokens issued to other devices
	if err == nil && c.Query("everywhere") == "true" {
		err = h.revoker.RevokeAll(ctx, c.GetString(middleware.ContextUserID), h.cfg.AccessTTL)
	}
	if err != nil {
		h.logger.Error("Failed to revoke token", zap.Error(err))
		respondError(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Failed to revoke token", nil)
		return
	}

	stopped := h.sessions.StopAll(guid)
	h.polls.Cancel(guid)
	h.nabu.Forget(ctx, guid)
	h.events.Publish(cache.AuthEvent{Kind: cache.AuthEventLogout, UserID: guid})

	h.logger.Info("Wallet logged out",
		zap.String("guid", security.MaskIdentifier(guid)),
		zap.Int("stopped_sessions", stopped))
	c.JSON(http.StatusOK, gin.H{"message": "Logged out", "stopped_sessions": stopped})
}

// EnrollOTP handles POST /api/v1/session/otp. Once enrolled, executing a
// transaction requires a code.
func (h *SessionHandlers) EnrollOTP(c *gin.Context) {
	ctx := c.Request.Context()
	guid, err := getGUID(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error(), nil)
		return
	}

	creds, err := h.credentials.Credentials(ctx, guid)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if creds.OTPSecret != "" {
		respondError(c, http.StatusConflict, "OTP_ALREADY_ENROLLED", "A second factor is already enrolled", nil)
		return
	}

	key, err := auth.GenerateOTPSecret(h.cfg.OTPIssuer, creds.Email)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	creds.OTPSecret = key.Secret()
	if err := h.credentials.SaveCredentials(ctx, creds); err != nil {
		respondServiceError(c, err)
		return
	}

	h.logger.Info("Second factor enrolled", zap.String("guid", security.MaskIdentifier(guid)))
	c.JSON(http.StatusCreated, gin.H{"secret": key.Secret(), "url": key.URL()})
}
