package nabuauth

import (
	"errors"
	"fmt"

	"github.com/rail-service/txengine/internal/infrastructure/adapters/apiclient"
)

// ErrorKind classifies session token failures
type ErrorKind string

const (
	KindFailedToCreateUser        ErrorKind = "failedToCreateUser"
	KindFailedToRetrieveJWTToken  ErrorKind = "failedToRetrieveJWTToken"
	KindFailedToGetSessionToken   ErrorKind = "failedToGetSessionToken"
	KindMissingCredentials        ErrorKind = "missingCredentials"
	KindFailedToSaveOfflineToken  ErrorKind = "failedToSaveOfflineToken"
	KindSessionTokenFetchTimedOut ErrorKind = "sessionTokenFetchTimedOut"
	KindCommunicatorError         ErrorKind = "communicatorError"
	KindAlreadyRegistered         ErrorKind = "alreadyRegistered"
)

// Error is returned by the executor for every token failure. Errors match under
// errors.Is by kind.
type Error struct {
	Kind         ErrorKind
	Which        string // missing credential
	WalletIDHint string // already registered
	Err          error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindMissingCredentials:
		return fmt.Sprintf("nabu auth: %s(%s)", e.Kind, e.Which)
	case e.Err != nil:
		return fmt.Sprintf("nabu auth: %s: %v", e.Kind, e.Err)
	default:
		return "nabu auth: " + string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrAlreadyRegistered         = &Error{Kind: KindAlreadyRegistered}
	ErrMissingCredentials        = &Error{Kind: KindMissingCredentials}
	ErrSessionTokenFetchTimedOut = &Error{Kind: KindSessionTokenFetchTimedOut}
)

// KindOf returns the kind of an executor error, or empty
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func missing(which string) *Error {
	return &Error{Kind: KindMissingCredentials, Which: which}
}

// classify keeps kind for HTTP error responses and reports transport failures
// as communicatorError
func classify(kind ErrorKind, err error) *Error {
	var resp *apiclient.ErrorResponse
	if !errors.As(err, &resp) {
		kind = KindCommunicatorError
	}
	return &Error{Kind: kind, Err: err}
}
