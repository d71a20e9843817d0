package client

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gurjot03/parsec-cloud/internal/client/models"
	"github.com/gurjot03/parsec-cloud/internal/cryptox"
)

var errInvalidToken = errors.New("invalid token")

// deviceIDFromToken verifies a token the way the backend does and returns
// the device it was issued for.
func deviceIDFromToken(tokenString string, vk cryptox.VerifyKey) (models.DeviceID, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return ed25519.PublicKey(vk), nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidToken, err)
	}

	if !token.Valid || claims.Subject != string(claims.DeviceID) {
		return "", errInvalidToken
	}

	return claims.DeviceID, nil
}
