package entities

import "time"

// WalletCredentials identify the wallet that owns a nabu user
type WalletCredentials struct {
	GUID      string `json:"guid" db:"guid"`
	SharedKey string `json:"sharedKey" db:"shared_key"`
	Email     string `json:"email" db:"email"`
	OTPSecret string `json:"-" db:"otp_secret"`
}

// OfflineToken is the long-lived nabu user credential
type OfflineToken struct {
	UserID string `json:"userId" db:"user_id"`
	Token  string `json:"token" db:"token"`
}

// SessionToken is the short-lived bearer token derived from an offline token
type SessionToken struct {
	Token     string     `json:"token"`
	UserID    string     `json:"userId"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// RequiresRefresh reports whether the token expires within leeway of now.
// Tokens without an expiry are trusted until rejected.
func (s SessionToken) RequiresRefresh(now time.Time, leeway time.Duration) bool {
	if s.Token == "" {
		return true
	}
	if s.ExpiresAt == nil {
		return false
	}
	return !now.Add(leeway).Before(*s.ExpiresAt)
}
