package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"KBPortal/pkg/kit"
)

// Policy selects how strictly a route checks the caller.
type Policy int

const (
	// PolicyOptional falls back to the guest principal on any failure.
	PolicyOptional Policy = iota
	PolicyMandatory
	PolicyAdmin
)

func (p Policy) String() string {
	switch p {
	case PolicyOptional:
		return "optional"
	case PolicyMandatory:
		return "mandatory"
	case PolicyAdmin:
		return "admin"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "optional":
		return PolicyOptional, nil
	case "mandatory", "":
		return PolicyMandatory, nil
	case "admin":
		return PolicyAdmin, nil
	}
	return 0, fmt.Errorf("unknown access policy %q", s)
}

type TokenVerifier interface {
	Verify(token string) (Claims, error)
}

type Guard struct {
	tokens TokenVerifier
}

func NewGuard(tokens TokenVerifier) *Guard {
	return &Guard{tokens: tokens}
}

// Resolve applies policy to the request's bearer token.
func (g *Guard) Resolve(r *http.Request, p Policy) (Principal, Claims, error) {
	raw, present := kit.BearerToken(r)

	if !present {
		if p == PolicyOptional {
			return Guest, Claims{}, nil
		}
		return Principal{}, Claims{}, ErrUnauthenticated
	}

	c, err := g.tokens.Verify(raw)
	if err != nil {
		switch {
		case p == PolicyOptional:
			return Guest, Claims{}, nil
		case errors.Is(err, ErrExpired):
			return Principal{}, Claims{}, ErrExpired
		default:
			return Principal{}, Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}

	pr := c.Principal()
	if p == PolicyAdmin && !pr.Admin {
		return Principal{}, Claims{}, ErrForbidden
	}
	return pr, c, nil
}

// Require is the middleware form of Resolve. The principal and claims are
// attached to the request context.
func (g *Guard) Require(p Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pr, c, err := g.Resolve(r, p)
			if err != nil {
				status, msg, _ := HTTPStatus(err)
				kit.WriteError(w, r, status, msg, nil)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, pr)
			if pr.Authenticated {
				ctx = context.WithValue(ctx, claimsKey, c)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type ctxKey string

const (
	principalKey ctxKey = "principal"
	claimsKey    ctxKey = "claims"
)

// PrincipalFrom returns the guest principal when no guard ran.
func PrincipalFrom(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalKey).(Principal); ok {
		return p
	}
	return Guest
}

func ClaimsFrom(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsKey).(Claims)
	return c, ok
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}
