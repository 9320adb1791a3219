// Package security provides JWT token utilities
package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Token audiences.
const (
	AudienceMarker = "verified-email"
	AudienceAdmin  = "admin"
)

// ErrInvalidToken is returned for unparseable, unsigned, expired or
// wrong-audience tokens.
var ErrInvalidToken = errors.New("invalid token")

// MarkerClaims is the payload of the verified-email cookie. It is readable
// by client script; the signature lets the server tell a forged marker from
// one it issued.
type MarkerClaims struct {
	Email      string `json:"email"`
	VerifiedAt int64  `json:"verifiedAt"`
	jwt.RegisteredClaims
}

// GenerateMarkerToken signs a verified-email marker valid for ttl after
// verifiedAt. VerifiedAt stands in for iat.
func GenerateMarkerToken(email string, verifiedAt time.Time, ttl time.Duration, secret string) (string, error) {
	claims := MarkerClaims{
		Email:      email,
		VerifiedAt: verifiedAt.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{AudienceMarker},
			ExpiresAt: jwt.NewNumericDate(verifiedAt.Add(ttl)),
		},
	}
	return sign(claims, secret)
}

// ValidateMarkerToken parses and checks a marker token.
func ValidateMarkerToken(tokenString, secret string) (*MarkerClaims, error) {
	claims := &MarkerClaims{}
	if err := parse(tokenString, secret, claims); err != nil {
		return nil, err
	}
	if !claims.VerifyAudience(AudienceMarker, true) || claims.Email == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateAdminToken issues a bearer token for the admin endpoints.
func GenerateAdminToken(subject string, ttl time.Duration, secret string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Audience:  jwt.ClaimStrings{AudienceAdmin},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return sign(claims, secret)
}

// ValidateAdminToken checks an admin bearer token and returns its subject.
func ValidateAdminToken(tokenString, secret string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	if err := parse(tokenString, secret, claims); err != nil {
		return "", err
	}
	if !claims.VerifyAudience(AudienceAdmin, true) {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func sign(claims jwt.Claims, secret string) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret not configured")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	result, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return result, nil
}

func parse(tokenString, secret string, claims jwt.Claims) error {
	if secret == "" {
		return errors.New("jwt secret not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
