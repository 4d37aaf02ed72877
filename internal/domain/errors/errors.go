// Package errors holds the error categories shared by services and handlers,
// and DomainError which carries a stable code for HTTP responses.
package errors

import (
	"errors"
	"fmt"
)

// Standard error categories
var (
	ErrNotFound           = errors.New("resource not found")
	ErrRateLimit          = errors.New("rate limit exceeded")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// Transaction engine errors
var (
	ErrEngineNotStarted     = errors.New("engine not started")
	ErrAlreadySent          = errors.New("transaction already sent")
	ErrFeesAreFixed         = errors.New("fees are fixed for this transaction")
	ErrUnsupportedFeeLevel  = errors.New("fee level not offered")
	ErrUnsupportedAccount   = errors.New("no engine supports this source account")
	ErrUnsupportedOption    = errors.New("confirmation option not supported")
	ErrOrderNotCreated      = errors.New("no order has been created for this transaction")
	ErrPriceUnavailable     = errors.New("exchange rate unavailable")
	ErrSigningFailed        = errors.New("signing service rejected the transaction")
	ErrBroadcastFailed      = errors.New("transaction broadcast failed")
	ErrPollCancelled        = errors.New("polling cancelled")
	ErrPollTimedOut         = errors.New("polling timed out")
	ErrPollAttemptsExceeded = errors.New("polling attempts exceeded")
)

// Session and second factor errors
var (
	ErrSessionNotFound = errors.New("transaction session not found")
	ErrOTPRequired     = errors.New("one-time password required")
	ErrOTPInvalid      = errors.New("invalid one-time password")
	ErrOTPLocked       = errors.New("too many one-time password attempts")
)

// DomainError represents a domain-specific error with additional context
type DomainError struct {
	Err       error
	Code      string
	Message   string
	Details   map[string]interface{}
	Retryable bool
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NotFoundError creates a not found error
func NotFoundError(resource string) *DomainError {
	return &DomainError{
		Err:     ErrNotFound,
		Code:    fmt.Sprintf("%s_NOT_FOUND", resource),
		Message: fmt.Sprintf("%s not found", resource),
	}
}

func SessionNotFoundError(id string) *DomainError {
	return &DomainError{
		Err:     ErrSessionNotFound,
		Code:    "SESSION_NOT_FOUND",
		Message: "transaction session not found",
		Details: map[string]interface{}{"session_id": id},
	}
}

// ServiceUnavailableError creates a retryable upstream failure
func ServiceUnavailableError(service string, err error) *DomainError {
	de := &DomainError{
		Err:       ErrServiceUnavailable,
		Code:      "SERVICE_UNAVAILABLE",
		Message:   fmt.Sprintf("%s service is temporarily unavailable", service),
		Retryable: true,
	}
	if err != nil {
		de.Details = map[string]interface{}{"cause": err.Error()}
	}
	return de
}

func IsNotFound(err error) bool           { return errors.Is(err, ErrNotFound) }
func IsServiceUnavailable(err error) bool { return errors.Is(err, ErrServiceUnavailable) }
