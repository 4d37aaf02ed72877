package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rail-service/txengine/internal/domain/entities"
	domainerrors "github.com/rail-service/txengine/internal/domain/errors"
	"github.com/rail-service/txengine/internal/domain/services/nabuauth"
	"github.com/rail-service/txengine/internal/infrastructure/adapters/apiclient"
)

// Error codes as constants for consistent error responses across handlers
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidAmount      = "INVALID_AMOUNT"
	ErrCodeInvalidCurrency    = "INVALID_CURRENCY"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeSessionNotFound    = "SESSION_NOT_FOUND"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeAlreadySent        = "ALREADY_SENT"
	ErrCodeAlreadyRegistered  = "ALREADY_REGISTERED"
	ErrCodeUnsupportedAccount = "UNSUPPORTED_ACCOUNT"
	ErrCodeUnsupported        = "UNSUPPORTED_OPERATION"
	ErrCodeOrderNotCreated    = "ORDER_NOT_CREATED"
	ErrCodeAuthFailed         = "AUTHENTICATION_FAILED"
	ErrCodeUpstreamFailed     = "UPSTREAM_FAILED"
	ErrCodeTimeout            = "TIMEOUT"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: getRequestID(c),
	})
}

func respondBadRequest(c *gin.Context, code, message string) {
	respondError(c, http.StatusBadRequest, code, message, nil)
}

// errorStatus maps a service error to its HTTP status and code.
//
// Validation failures are 422 with the validation state, token failures are 401
// except already registered which is a 409 conflict.
func errorStatus(err error) (int, string, map[string]interface{}) {
	var failure *entities.ValidationFailure
	if errors.As(err, &failure) {
		return http.StatusUnprocessableEntity, ErrCodeValidationFailed, map[string]interface{}{
			"state": failure.State,
		}
	}

	if errors.Is(err, nabuauth.ErrAlreadyRegistered) {
		var authErr *nabuauth.Error
		details := map[string]interface{}{}
		if errors.As(err, &authErr) && authErr.WalletIDHint != "" {
			details["wallet_id_hint"] = authErr.WalletIDHint
		}
		return http.StatusConflict, ErrCodeAlreadyRegistered, details
	}
	switch kind := nabuauth.KindOf(err); kind {
	case "":
	case nabuauth.KindCommunicatorError, nabuauth.KindSessionTokenFetchTimedOut:
		return http.StatusServiceUnavailable, ErrCodeServiceUnavailable, map[string]interface{}{"kind": kind}
	default:
		return http.StatusUnauthorized, ErrCodeAuthFailed, map[string]interface{}{"kind": kind}
	}

	switch {
	case errors.Is(err, domainerrors.ErrSessionNotFound):
		return http.StatusNotFound, ErrCodeSessionNotFound, nil
	case errors.Is(err, domainerrors.ErrAlreadySent):
		return http.StatusConflict, ErrCodeAlreadySent, nil
	case errors.Is(err, domainerrors.ErrOrderNotCreated):
		return http.StatusConflict, ErrCodeOrderNotCreated, nil
	case errors.Is(err, domainerrors.ErrUnsupportedAccount):
		return http.StatusBadRequest, ErrCodeUnsupportedAccount, nil
	case errors.Is(err, domainerrors.ErrUnsupportedFeeLevel),
		errors.Is(err, domainerrors.ErrFeesAreFixed),
		errors.Is(err, domainerrors.ErrUnsupportedOption):
		return http.StatusBadRequest, ErrCodeUnsupported, nil
	case errors.Is(err, entities.ErrCurrencyMismatch):
		return http.StatusBadRequest, ErrCodeInvalidCurrency, nil
	case errors.Is(err, domainerrors.ErrSigningFailed),
		errors.Is(err, domainerrors.ErrBroadcastFailed):
		return http.StatusBadGateway, ErrCodeUpstreamFailed, nil
	case errors.Is(err, domainerrors.ErrPollTimedOut),
		errors.Is(err, domainerrors.ErrPollAttemptsExceeded):
		return http.StatusGatewayTimeout, ErrCodeTimeout, nil
	case errors.Is(err, domainerrors.ErrPriceUnavailable),
		errors.Is(err, domainerrors.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, ErrCodeServiceUnavailable, nil
	case errors.Is(err, domainerrors.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound, nil
	}

	var apiErr *apiclient.ErrorResponse
	if errors.As(err, &apiErr) {
		return http.StatusBadGateway, ErrCodeUpstreamFailed, map[string]interface{}{"upstream_status": apiErr.StatusCode}
	}
	return http.StatusInternalServerError, ErrCodeInternalError, nil
}

// respondServiceError writes the mapped reply for err. Internal errors are
// logged and their message is not exposed.
func respondServiceError(c *gin.Context, err error) {
	status, code, details := errorStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		requestLogger(c).Errorw("Request failed", "error", err, "status", status)
		if status == http.StatusInternalServerError {
			message = "Internal server error"
		}
	}
	_ = c.Error(err)
	respondError(c, status, code, message, details)
}
