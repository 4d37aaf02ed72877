// Package errors classifies errors for retry decisions.
package errors

import (
	"context"
	"errors"
	"net"

	domainerrors "github.com/rail-service/txengine/internal/domain/errors"
)

// StatusCoder is implemented by transport errors that carry an HTTP status
type StatusCoder interface {
	HTTPStatus() int
}

// ShouldRetry reports whether an operation that failed with err is worth retrying
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var domainErr *domainerrors.DomainError
	if errors.As(err, &domainErr) {
		if domainErr.Retryable {
			return true
		}
		return errors.Is(domainErr, domainerrors.ErrServiceUnavailable) ||
			errors.Is(domainErr, domainerrors.ErrRateLimit)
	}

	if errors.Is(err, domainerrors.ErrServiceUnavailable) {
		return true
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		status := sc.HTTPStatus()
		return status >= 500 || status == 429
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// IsPermanent is the negation of ShouldRetry for readability at call sites
func IsPermanent(err error) bool {
	return err != nil && !ShouldRetry(err)
}
