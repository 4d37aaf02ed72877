package stellar

import (
	"fmt"

	"github.com/rail-service/txengine/internal/domain/entities"
)

// SendFailureReason is why a payment would be rejected by the ledger
type SendFailureReason string

const (
	ReasonBelowMinimumSend           SendFailureReason = "belowMinimumSend"
	ReasonBelowMinimumSendNewAccount SendFailureReason = "belowMinimumSendNewAccount"
	ReasonInsufficientFunds          SendFailureReason = "insufficientFunds"
	ReasonBadDestinationAccountID    SendFailureReason = "badDestinationAccountID"
	ReasonIncorrectSourceCurrency    SendFailureReason = "incorrectSourceCurrency"
	ReasonUnknown                    SendFailureReason = "unknown"
)

type DryRunError struct {
	Reason  SendFailureReason
	Minimum *entities.MoneyValue
}

func (e *DryRunError) Error() string {
	if e.Minimum != nil {
		return fmt.Sprintf("stellar dry run: %s (minimum %s)", e.Reason, e.Minimum)
	}
	return "stellar dry run: " + string(e.Reason)
}

// ValidationFailure maps the rejection onto the shared taxonomy
func (e *DryRunError) ValidationFailure() *entities.ValidationFailure {
	switch e.Reason {
	case ReasonBelowMinimumSend, ReasonBelowMinimumSendNewAccount:
		return entities.NewValidationFailure(entities.ValidationBelowMinimumLimit, "%s", e.Error())
	case ReasonInsufficientFunds:
		return entities.NewValidationFailure(entities.ValidationInsufficientFunds, "%s", e.Error())
	case ReasonBadDestinationAccountID:
		return entities.NewValidationFailure(entities.ValidationInvalidAddress, "%s", e.Error())
	case ReasonIncorrectSourceCurrency:
		return entities.NewValidationFailure(entities.ValidationIncorrectSourceCurrency, "%s", e.Error())
	}
	return entities.NewValidationFailure(entities.ValidationUnknownError, "%s", e.Error())
}

// SendDetails is the payment as it would be submitted
type SendDetails struct {
	Source      entities.StellarAccount
	Destination entities.StellarAccount
	Value       entities.MoneyValue
	Fee         entities.MoneyValue
	Memo        *entities.Memo
}

// DryRun applies the ledger's payment and create-account rules without submitting.
// A destination that does not exist yet must receive at least the base account balance.
func DryRun(details SendDetails, baseReserve entities.MoneyValue) error {
	if details.Value.Currency().Code != entities.XLM.Code {
		return &DryRunError{Reason: ReasonIncorrectSourceCurrency}
	}
	if !IsValidAccountID(details.Destination.AccountID) {
		return &DryRunError{Reason: ReasonBadDestinationAccountID}
	}
	if less, err := details.Value.LessThan(Stroop); err != nil || less {
		min := Stroop
		return &DryRunError{Reason: ReasonBelowMinimumSend, Minimum: &min}
	}
	if !details.Destination.Exists {
		min := MinRequiredReserve(0, baseReserve)
		if less, err := details.Value.LessThan(min); err != nil || less {
			return &DryRunError{Reason: ReasonBelowMinimumSendNewAccount, Minimum: &min}
		}
	}

	required, err := details.Value.Add(details.Fee)
	if err != nil {
		return &DryRunError{Reason: ReasonUnknown}
	}
	required, err = required.Add(MinRequiredReserve(details.Source.SubentryCount, baseReserve))
	if err != nil {
		return &DryRunError{Reason: ReasonUnknown}
	}
	if short, err := details.Source.Balance.LessThan(required); err != nil || short {
		return &DryRunError{Reason: ReasonInsufficientFunds, Minimum: &required}
	}
	return nil
}
