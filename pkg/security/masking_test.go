package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskString(t *testing.T) {
	in := "send from 0x52908400098527886E0F7030069857D2E4169EE7 for alice@example.com"
	out := MaskString(in)
	assert.NotContains(t, out, "0x52908400098527886E0F7030069857D2E4169EE7")
	assert.Contains(t, out, "0x5290...9EE7")
	assert.Contains(t, out, "al***@example.com")
}

func TestMaskIdentifier(t *testing.T) {
	assert.Equal(t, "abcd****", MaskIdentifier("abcd1234"))
	assert.Equal(t, "****", MaskIdentifier("ab"))
}

func TestMaskMap(t *testing.T) {
	out := MaskMap(map[string]interface{}{
		"shared_key": "secret-value",
		"amount":     "1.5",
	})
	assert.Equal(t, "***REDACTED***", out["shared_key"])
	assert.Equal(t, "1.5", out["amount"])
}

func TestRedactHeaders(t *testing.T) {
	out := RedactHeaders(map[string][]string{
		"Authorization": {"Bearer x"},
		"X-Otp":         {"123456"},
		"Accept":        {"application/json"},
	})
	assert.Equal(t, "***REDACTED***", out["Authorization"])
	assert.Equal(t, "***REDACTED***", out["X-Otp"])
	assert.Equal(t, "application/json", out["Accept"])
}
