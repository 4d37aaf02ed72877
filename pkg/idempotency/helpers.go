package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"time"
)

// DefaultTTL is how long a stored response is replayed
const DefaultTTL = 24 * time.Hour

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_\-:.]{8,128}$`)

// ValidateKey checks the shape of an Idempotency-Key header
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("key must be 8-128 characters of letters, digits, '-', '_', ':' or '.'")
	}
	return nil
}

// ReadBody reads at most limit bytes, failing on larger bodies
func ReadBody(body io.Reader, limit int64) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("request body exceeds %d bytes", limit)
	}
	return data, nil
}

// HashRequest fingerprints a request body
func HashRequest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// ShouldReplay decides whether a stored response answers the current request
func ShouldReplay(stored *Record, requestHash string) (bool, string) {
	if stored.RequestHash != requestHash {
		return false, "idempotency key was used with a different request body"
	}
	if stored.ResponseStatus >= 500 {
		return false, "previous attempt failed, retry with a new key"
	}
	return true, ""
}
