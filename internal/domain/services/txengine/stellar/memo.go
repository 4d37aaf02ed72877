package stellar

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rail-service/txengine/internal/domain/entities"
)

const maxTextMemoLength = 28

// ExchangeDirectory knows the addresses that need a memo to credit the right customer
type ExchangeDirectory struct {
	addresses map[string]struct{}
}

func NewExchangeDirectory(addresses []string) ExchangeDirectory {
	set := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		set[strings.ToUpper(strings.TrimSpace(a))] = struct{}{}
	}
	return ExchangeDirectory{addresses: set}
}

// IsExchangeAddress compares case-insensitively
func (d ExchangeDirectory) IsExchangeAddress(address string) bool {
	_, ok := d.addresses[strings.ToUpper(strings.TrimSpace(address))]
	return ok
}

func emptyMemo(m *entities.Memo) bool {
	return m == nil || m.Value == ""
}

// ValidateMemo checks the shape of a memo and that one is present when required.
// An empty memo counts as absent.
func ValidateMemo(m *entities.Memo, required bool) error {
	if emptyMemo(m) {
		if required {
			return entities.NewValidationFailure(entities.ValidationOptionInvalid, "memo is required for this destination")
		}
		return nil
	}
	switch m.Kind {
	case entities.MemoKindText:
		if n := utf8.RuneCountInString(m.Value); n < 1 || n > maxTextMemoLength {
			return entities.NewValidationFailure(entities.ValidationOptionInvalid, "text memo must be 1 to %d characters, got %d", maxTextMemoLength, n)
		}
	case entities.MemoKindID:
		if _, err := strconv.ParseUint(m.Value, 10, 64); err != nil {
			return entities.NewValidationFailure(entities.ValidationOptionInvalid, "id memo %q is not an unsigned 64-bit integer", m.Value)
		}
	default:
		return entities.NewValidationFailure(entities.ValidationOptionInvalid, "unknown memo kind %q", m.Kind)
	}
	return nil
}
