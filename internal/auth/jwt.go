package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultTokenTTL = 24 * time.Hour

type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret, issuer string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

type Claims struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	IsAdmin     bool   `json:"isAdmin"`
	jwt.RegisteredClaims
}

func (c Claims) Principal() Principal {
	return Principal{
		ID:            c.ID,
		DisplayName:   c.DisplayName,
		Email:         c.Email,
		Admin:         c.IsAdmin,
		Authenticated: true,
	}
}

func (t *TokenIssuer) TTL() time.Duration { return t.ttl }

func (t *TokenIssuer) Issue(id Identity) (string, error) {
	now := t.now()

	claims := Claims{
		ID:          id.ID,
		DisplayName: id.DisplayName,
		Email:       id.Email,
		IsAdmin:     id.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify returns the embedded claims unchanged. Failures are one of
// ErrMalformed, ErrSignatureInvalid or ErrExpired.
func (t *TokenIssuer) Verify(tokenStr string) (Claims, error) {
	var c Claims

	_, err := jwt.ParseWithClaims(tokenStr, &c, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return Claims{}, ErrSignatureInvalid
	default:
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if c.ID == "" {
		return Claims{}, fmt.Errorf("%w: missing id claim", ErrMalformed)
	}
	return c, nil
}
