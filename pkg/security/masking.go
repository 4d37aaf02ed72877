package security

import (
	"regexp"
	"strings"
)

var (
	emailPattern    = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	jwtPattern      = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`)
	apiKeyPattern   = regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret|token|password|auth)["\s:=]+["']?([a-zA-Z0-9_-]{16,})["']?`)
	evmPattern      = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)
	stellarPattern  = regexp.MustCompile(`\bG[A-Z2-7]{55}\b`)
	bech32Pattern   = regexp.MustCompile(`\b(bc1|tb1|bcrt1)[a-z0-9]{20,80}\b`)
	sensitiveFields = []string{
		"password", "secret", "token", "key", "auth", "otp",
		"private_key", "seed", "mnemonic", "api_key", "apikey",
		"shared_key", "sharedkey", "bearer", "credential",
	}
)

// MaskString masks emails, tokens and addresses in s
func MaskString(s string) string {
	s = emailPattern.ReplaceAllStringFunc(s, maskEmail)
	s = jwtPattern.ReplaceAllString(s, "eyJ***REDACTED***")
	s = apiKeyPattern.ReplaceAllString(s, "$1: ***REDACTED***")
	s = evmPattern.ReplaceAllStringFunc(s, MaskAddress)
	s = stellarPattern.ReplaceAllStringFunc(s, MaskAddress)
	s = bech32Pattern.ReplaceAllStringFunc(s, MaskAddress)
	return s
}

// MaskMap masks sensitive fields in a map
func MaskMap(data map[string]interface{}) map[string]interface{} {
	masked := make(map[string]interface{}, len(data))
	for k, v := range data {
		if isSensitiveField(k) {
			masked[k] = "***REDACTED***"
			continue
		}
		switch val := v.(type) {
		case string:
			masked[k] = MaskString(val)
		case map[string]interface{}:
			masked[k] = MaskMap(val)
		default:
			masked[k] = v
		}
	}
	return masked
}

func maskEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***.***"
	}
	return maskPartial(parts[0], 2) + "@" + parts[1]
}

// MaskAddress keeps the first 6 and last 4 characters of an address
func MaskAddress(addr string) string {
	if len(addr) < 12 {
		return "****"
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// MaskIdentifier keeps the first 4 characters of a wallet guid or key
func MaskIdentifier(id string) string {
	if len(id) < 4 {
		return "****"
	}
	return id[:4] + strings.Repeat("*", len(id)-4)
}

func maskPartial(s string, showChars int) string {
	if len(s) <= showChars {
		return strings.Repeat("*", len(s))
	}
	return s[:showChars] + strings.Repeat("*", len(s)-showChars)
}

func isSensitiveField(field string) bool {
	lower := strings.ToLower(field)
	for _, sensitive := range sensitiveFields {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}

// RedactHeaders flattens headers, hiding credentials
func RedactHeaders(headers map[string][]string) map[string]string {
	redacted := make(map[string]string, len(headers))
	for k, v := range headers {
		lower := strings.ToLower(k)
		switch {
		case lower == "authorization", lower == "x-api-key", lower == "x-otp",
			lower == "x-second-password", lower == "cookie":
			redacted[k] = "***REDACTED***"
		case len(v) > 0:
			redacted[k] = v[0]
		}
	}
	return redacted
}
