package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateToken_RoundTrip(t *testing.T) {
	token, err := GenerateStateToken("state-secret")
	require.NoError(t, err)

	claims, err := ParseStateToken(token, "state-secret")
	require.NoError(t, err)
	assert.NotEmpty(t, claims.Nonce)
	assert.Equal(t, "oauth-state", claims.Subject)
}

func TestStateToken_Rejections(t *testing.T) {
	valid, err := GenerateStateToken("state-secret")
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &StateClaims{
		Nonce: "n",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "oauth-state",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte("state-secret"))
	require.NoError(t, err)

	otherSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &StateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "access",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("state-secret"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"wrong secret", valid, "other-secret"},
		{"empty secret", valid, ""},
		{"garbage", "not-a-token", "state-secret"},
		{"expired", expired, "state-secret"},
		{"wrong subject", otherSubject, "state-secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStateToken(tt.token, tt.secret)
			assert.ErrorIs(t, err, ErrInvalidState)
		})
	}
}

func TestGenerateStateToken_RequiresSecret(t *testing.T) {
	_, err := GenerateStateToken("")
	assert.Error(t, err)
}
