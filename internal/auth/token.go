// Package auth issues and verifies the bearer tokens that carry a caller's
// address. The token subject is the hex address.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"rideescrow/internal/config"
	"rideescrow/internal/domain/entities"
)

var ErrInvalidToken = errors.New("invalid token")

type TokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

func NewTokenService(cfg config.AuthConfig) *TokenService {
	return &TokenService{
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.TokenTTL,
		issuer: cfg.Issuer,
	}
}

// Issue signs an HS256 token for address.
func (s *TokenService) Issue(address entities.Address) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   address.Hex(),
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, expiry and issuer of tokenString and returns
// the caller address it was issued for.
func (s *TokenService) Verify(tokenString string) (entities.Address, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return entities.ZeroAddress, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	address, err := entities.ParseAddress(claims.Subject)
	if err != nil {
		return entities.ZeroAddress, fmt.Errorf("%w: subject: %v", ErrInvalidToken, err)
	}
	return address, nil
}
