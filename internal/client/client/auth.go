package client

import (
	"crypto/ed25519"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gurjot03/parsec-cloud/internal/client/models"
	"github.com/gurjot03/parsec-cloud/internal/cryptox"
)

// Claims are the bearer token claims: the standard set plus the device
// the token was signed by.
type Claims struct {
	jwt.RegisteredClaims
	DeviceID models.DeviceID `json:"device_id"`
}

// GenerateDeviceToken signs a short-lived EdDSA token with the device key.
func GenerateDeviceToken(deviceID models.DeviceID, sk cryptox.SigningKey, validity time.Duration, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(deviceID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		DeviceID: deviceID,
	})

	return token.SignedString(ed25519.PrivateKey(sk))
}
