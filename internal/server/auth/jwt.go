// Package auth issues and verifies the HS256 bearer tokens of the upload API.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/bridgeupload/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Identity is who a token speaks for: a study participant (AppID and
// HealthCode) or, when Worker is set, a back-end worker of the app.
type Identity struct {
	AppID      string `json:"appId"`
	HealthCode string `json:"healthCode,omitempty"`
	Worker     bool   `json:"worker,omitempty"`
}

// Claims is the registered claim set plus the caller identity.
type Claims struct {
	jwt.RegisteredClaims
	Identity
}

func GenerateToken(id Identity, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		Identity: id,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies tokenString and returns the identity it carries.
// Expired tokens yield common.ErrTokenExpired; every other failure,
// including a token without an app, yields common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Identity, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, common.ErrTokenExpired
	}
	if err != nil || !token.Valid {
		return nil, common.ErrInvalidToken
	}

	if claims.AppID == "" {
		return nil, common.ErrInvalidToken
	}

	return &claims.Identity, nil
}
