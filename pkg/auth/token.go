package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/beautynano/beautynano-backend/pkg/config"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// OperatorClaims represents the typed JWT presented by operators on admin routes.
type OperatorClaims struct {
	jwt.RegisteredClaims
}

// MintOperatorToken issues a signed JWT for operator tooling.
func MintOperatorToken(cfg config.AdminConfig, now time.Time, subject string, ttl time.Duration) (string, error) {
	if cfg.TokenSecret == "" {
		return "", fmt.Errorf("admin token secret is required")
	}
	if cfg.TokenIssuer == "" {
		return "", fmt.Errorf("admin token issuer is required")
	}
	if subject == "" {
		return "", fmt.Errorf("token subject is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive")
	}

	claims := OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.TokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwtSigningMethod, claims)
	signed, err := token.SignedString([]byte(cfg.TokenSecret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseOperatorToken validates the JWT string and returns typed claims.
func ParseOperatorToken(cfg config.AdminConfig, tokenString string) (*OperatorClaims, error) {
	if cfg.TokenSecret == "" {
		return nil, fmt.Errorf("admin token secret is required")
	}

	claims := &OperatorClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.TokenSecret), nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.TokenIssuer),
	)
	if err != nil {
		return nil, err
	}

	return claims, nil
}
