package entities

import (
	"errors"
	"fmt"
)

// ValidationState is the outcome of validating a pending transaction
type ValidationState string

const (
	ValidationUninitialized                ValidationState = "uninitialized"
	ValidationCanExecute                   ValidationState = "canExecute"
	ValidationInvalidAmount                ValidationState = "invalidAmount"
	ValidationBelowMinimumLimit            ValidationState = "belowMinimumLimit"
	ValidationOverMaximumLimit             ValidationState = "overMaximumLimit"
	ValidationInsufficientFunds            ValidationState = "insufficientFunds"
	ValidationInvalidAddress               ValidationState = "invalidAddress"
	ValidationOptionInvalid                ValidationState = "optionInvalid"
	ValidationIncorrectSourceCurrency      ValidationState = "incorrectSourceCurrency"
	ValidationIncorrectDestinationCurrency ValidationState = "incorrectDestinationCurrency"
	ValidationTransactionInFlight          ValidationState = "transactionInFlight"
	ValidationUnknownError                 ValidationState = "unknownError"
)

// ValidationFailure is the single error type validation steps return.
// Two failures match under errors.Is when their states are equal.
type ValidationFailure struct {
	State   ValidationState
	Message string
}

// NewValidationFailure builds a failure with an optional formatted message
func NewValidationFailure(state ValidationState, format string, args ...interface{}) *ValidationFailure {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &ValidationFailure{State: state, Message: msg}
}

func (f *ValidationFailure) Error() string {
	if f.Message == "" {
		return "transaction validation failed: " + string(f.State)
	}
	return fmt.Sprintf("transaction validation failed: %s: %s", f.State, f.Message)
}

func (f *ValidationFailure) Is(target error) bool {
	t, ok := target.(*ValidationFailure)
	return ok && t.State == f.State
}

// ValidationStateOf extracts the state of a validation failure, or unknownError
func ValidationStateOf(err error) ValidationState {
	if err == nil {
		return ValidationCanExecute
	}
	var f *ValidationFailure
	if errors.As(err, &f) {
		return f.State
	}
	return ValidationUnknownError
}

// Sentinel failures for errors.Is comparisons
var (
	ErrUninitialized     = &ValidationFailure{State: ValidationUninitialized}
	ErrInvalidAmount     = &ValidationFailure{State: ValidationInvalidAmount}
	ErrBelowMinimumLimit = &ValidationFailure{State: ValidationBelowMinimumLimit}
	ErrOverMaximumLimit  = &ValidationFailure{State: ValidationOverMaximumLimit}
	ErrInsufficientFunds = &ValidationFailure{State: ValidationInsufficientFunds}
	ErrInvalidAddress    = &ValidationFailure{State: ValidationInvalidAddress}
	ErrOptionInvalid     = &ValidationFailure{State: ValidationOptionInvalid}
)
