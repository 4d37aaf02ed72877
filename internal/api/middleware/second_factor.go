package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/rail-service/txengine/internal/domain/entities"
	domainerrors "github.com/rail-service/txengine/internal/domain/errors"
	"github.com/rail-service/txengine/pkg/auth"
	"github.com/rail-service/txengine/pkg/logger"
)

// HeaderOTP carries the TOTP code for operations that move funds
const HeaderOTP = "X-OTP"

// OTPSecrets loads the enrolled TOTP secret of a wallet
type OTPSecrets interface {
	Credentials(ctx context.Context, guid string) (entities.WalletCredentials, error)
}

// OTPAttempts locks a user out after repeated wrong codes
type OTPAttempts interface {
	Locked(ctx context.Context, userID string) (time.Duration, error)
	RecordFailure(ctx context.Context, userID string) (time.Duration, error)
	RecordSuccess(ctx context.Context, userID string) error
}

// SecondFactorConfig controls when a code is demanded
type SecondFactorConfig struct {
	// Required demands a code from every wallet, enrolled or not
	Required bool
}

func secondFactorError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":       code,
		"message":    message,
		"request_id": c.GetString("request_id"),
	})
}

// SecondFactor checks X-OTP against the wallet's TOTP secret. Wallets without a
// secret pass unless the config requires one.
func SecondFactor(cfg SecondFactorConfig, secrets OTPSecrets, attempts OTPAttempts, clk clock.Clock, log *logger.Logger) gin.HandlerFunc {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		guid := c.GetString(ContextGUID)
		userID := c.GetString(ContextUserID)

		creds, err := secrets.Credentials(ctx, guid)
		if err != nil && !errors.Is(err, domainerrors.ErrNotFound) {
			log.Error("Failed to load second factor secret", "guid", guid, "error", err)
			secondFactorError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Unable to verify second factor")
			return
		}
		if creds.OTPSecret == "" {
			if cfg.Required {
				secondFactorError(c, http.StatusForbidden, "OTP_NOT_ENROLLED", domainerrors.ErrOTPRequired.Error())
				return
			}
			c.Next()
			return
		}

		if lockout, err := attempts.Locked(ctx, userID); err != nil {
			log.Warn("Second factor lock check failed", "user_id", userID, "error", err)
		} else if lockout > 0 {
			c.Header("Retry-After", strconv.Itoa(int(lockout.Seconds())+1))
			secondFactorError(c, http.StatusLocked, "OTP_LOCKED", domainerrors.ErrOTPLocked.Error())
			return
		}

		code := c.GetHeader(HeaderOTP)
		if code == "" {
			secondFactorError(c, http.StatusUnauthorized, "OTP_REQUIRED", domainerrors.ErrOTPRequired.Error())
			return
		}
		if !auth.ValidateOTP(code, creds.OTPSecret, clk.Now()) {
			if lockout, err := attempts.RecordFailure(ctx, userID); err != nil {
				log.Warn("Failed to record second factor failure", "user_id", userID, "error", err)
			} else if lockout > 0 {
				c.Header("Retry-After", strconv.Itoa(int(lockout.Seconds())+1))
				secondFactorError(c, http.StatusLocked, "OTP_LOCKED", domainerrors.ErrOTPLocked.Error())
				return
			}
			secondFactorError(c, http.StatusUnauthorized, "OTP_INVALID", domainerrors.ErrOTPInvalid.Error())
			return
		}
		if err := attempts.RecordSuccess(ctx, userID); err != nil {
			log.Warn("Failed to clear second factor attempts", "user_id", userID, "error", err)
		}
		c.Next()
	}
}
