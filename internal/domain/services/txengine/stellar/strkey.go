package stellar

import (
	"errors"
	"fmt"

	"github.com/stellar/go/strkey"
)

var ErrInvalidStrKey = errors.New("invalid strkey")

// DecodeAccountID returns the ed25519 public key of a G... address
func DecodeAccountID(address string) ([]byte, error) {
	key, err := strkey.Decode(strkey.VersionByteAccountID, address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStrKey, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: key length %d", ErrInvalidStrKey, len(key))
	}
	return key, nil
}

// EncodeAccountID renders a 32 byte ed25519 public key as a G... address
func EncodeAccountID(key []byte) (string, error) {
	if len(key) != 32 {
		return "", fmt.Errorf("%w: key length %d", ErrInvalidStrKey, len(key))
	}
	address, err := strkey.Encode(strkey.VersionByteAccountID, key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidStrKey, err)
	}
	return address, nil
}

func IsValidAccountID(address string) bool {
	_, err := DecodeAccountID(address)
	return err == nil
}
