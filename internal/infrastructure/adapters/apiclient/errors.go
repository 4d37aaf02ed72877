package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorResponse is a non-2xx answer from an upstream API
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Client     string `json:"-"`
	Body       []byte `json:"-"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("%s API error [%d]: %s (code: %s)", e.Client, e.StatusCode, e.Message, e.Code)
}

// HTTPStatus lets retry classification see the status code
func (e *ErrorResponse) HTTPStatus() int { return e.StatusCode }

func (e *ErrorResponse) IsNotFound() bool     { return e.StatusCode == http.StatusNotFound }
func (e *ErrorResponse) IsUnauthorized() bool { return e.StatusCode == http.StatusUnauthorized }
func (e *ErrorResponse) IsConflict() bool     { return e.StatusCode == http.StatusConflict }

// StatusOf returns the upstream status carried by err, or 0
func StatusOf(err error) int {
	var resp *ErrorResponse
	if errors.As(err, &resp) {
		return resp.StatusCode
	}
	return 0
}

// IsUnauthorized reports whether err is an upstream 401
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// IsNotFound reports whether err is an upstream 404
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}
