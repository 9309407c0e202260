// Package auth issues and verifies the bearer tokens that identify callers.
// A token names the calling account and, optionally, the payment attached to
// the call.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/punchamoorthee/decoledger/internal/domain"
	"github.com/punchamoorthee/decoledger/internal/host"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims carries the caller in the subject and the attached payment as a
// decimal string.
type Claims struct {
	jwt.RegisteredClaims
	Deposit string `json:"deposit,omitempty"`
}

// GenerateToken signs a token for caller. A zero deposit is omitted.
func GenerateToken(caller domain.AccountID, deposit domain.Amount, secretKey []byte, validityDuration time.Duration) (string, error) {
	if err := caller.Validate(); err != nil {
		return "", err
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
	}
	if !deposit.IsZero() {
		claims.Deposit = deposit.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// ParseToken verifies tokenString and returns the call environment it grants.
// The returned call has no timestamp; the host stamps it on arrival.
func ParseToken(tokenString string, secretKey []byte) (host.Call, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return host.Call{}, ErrTokenExpired
		}
		return host.Call{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return host.Call{}, ErrInvalidToken
	}

	caller, err := domain.ParseAccountID(claims.Subject)
	if err != nil {
		return host.Call{}, fmt.Errorf("%w: subject: %w", ErrInvalidToken, err)
	}

	deposit := domain.NewAmount(0)
	if claims.Deposit != "" {
		deposit, err = domain.ParseAmount(claims.Deposit)
		if err != nil {
			return host.Call{}, fmt.Errorf("%w: deposit: %w", ErrInvalidToken, err)
		}
	}

	return host.Call{Caller: caller, Deposit: deposit}, nil
}
