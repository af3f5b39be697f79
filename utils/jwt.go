package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidState = errors.New("invalid oauth state")

const stateTokenTTL = 10 * time.Minute

type StateClaims struct {
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

// GenerateStateToken signs a short lived token that is round-tripped through
// the consent screen as the OAuth state parameter.
func GenerateStateToken(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("state secret is not configured")
	}
	now := time.Now()
	claims := &StateClaims{
		Nonce: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   "oauth-state",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseStateToken(tokenString, secret string) (*StateClaims, error) {
	if secret == "" {
		return nil, ErrInvalidState
	}
	token, err := jwt.ParseWithClaims(tokenString, &StateClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidState, err)
	}

	if claims, ok := token.Claims.(*StateClaims); ok && token.Valid && claims.Subject == "oauth-state" {
		return claims, nil
	}
	return nil, ErrInvalidState
}
