package auth

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	now := time.Now()
	token, err := GenerateAccessToken("user-1", "guid-1", "secret", "txengine", time.Hour, now)
	require.NoError(t, err)

	claims, err := ValidateToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "guid-1", claims.GUID)

	_, err = ValidateToken(token, "other")
	assert.Error(t, err)
}

func TestExpiryUnverified(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	token, err := GenerateAccessToken("u", "g", "any-secret", "nabu", 90*time.Second, now)
	require.NoError(t, err)

	exp, err := ExpiryUnverified(token)
	require.NoError(t, err)
	require.NotNil(t, exp)
	assert.True(t, exp.Equal(now.Add(90*time.Second)))

	_, err = ExpiryUnverified("not-a-jwt")
	assert.Error(t, err)
}

func TestHashToken(t *testing.T) {
	assert.Len(t, HashToken("abc"), 64)
	assert.Equal(t, HashToken("abc"), HashToken("abc"))
}

func TestValidateOTP(t *testing.T) {
	key, err := GenerateOTPSecret("txengine", "user@x.io")
	require.NoError(t, err)

	now := time.Now()
	code, err := totp.GenerateCode(key.Secret(), now)
	require.NoError(t, err)

	assert.True(t, ValidateOTP(code, key.Secret(), now))
	assert.False(t, ValidateOTP("12ab56", key.Secret(), now))
	assert.False(t, ValidateOTP(code, key.Secret(), now.Add(time.Hour)))
}
