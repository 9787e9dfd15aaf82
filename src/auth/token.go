package auth

import (
	"errors"
	"time"

	"github.com/AldoManuel/juchifood/src/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")
var ErrTokenExpired = errors.New("token expired")

type Claims struct {
	jwt.RegisteredClaims
	VendorID uuid.UUID `json:"vendor_id"`
}

func GenerateToken(vendorID uuid.UUID, secret []byte, lifetime time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   vendorID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
		VendorID: vendorID,
	})

	return token.SignedString(secret)
}

// Returns the vendor a token was issued for. Expired tokens yield
// ErrTokenExpired; anything else that fails to verify yields ErrInvalidToken.
func ParseToken(tokenString string, secret []byte) (uuid.UUID, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, ErrTokenExpired
		}
		return uuid.Nil, ErrInvalidToken
	}
	if !token.Valid || claims.VendorID == uuid.Nil {
		return uuid.Nil, ErrInvalidToken
	}

	return claims.VendorID, nil
}

// GenerateToken with the configured secret and lifetime.
func NewVendorToken(vendorID uuid.UUID) (string, error) {
	return GenerateToken(vendorID, []byte(config.Config.Auth.JWTSecret), config.Config.Auth.TokenLifetime)
}

func ParseVendorToken(tokenString string) (uuid.UUID, error) {
	return ParseToken(tokenString, []byte(config.Config.Auth.JWTSecret))
}
