package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

type ServiceOptions struct {
	// FreshCacheSize and FreshCacheTTL bound how stale a freshness check may be.
	FreshCacheSize int
	FreshCacheTTL  time.Duration
}

// Service performs credential checks and token issuance.
type Service struct {
	log    *zap.Logger
	store  IdentityStore
	tokens *TokenIssuer
	fresh  *expirable.LRU[string, Identity]
}

func NewService(log *zap.Logger, store IdentityStore, tokens *TokenIssuer, opts ServiceOptions) *Service {
	if log == nil {
		log = zap.NewNop()
	}

	s := &Service{log: log, store: store, tokens: tokens}
	if opts.FreshCacheSize > 0 && opts.FreshCacheTTL > 0 {
		s.fresh = expirable.NewLRU[string, Identity](opts.FreshCacheSize, nil, opts.FreshCacheTTL)
	}
	return s
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      Principal `json:"user"`
}

// Login resolves the account by display name or email and issues a token.
// Unknown, inactive and mis-typed accounts all yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, login, password string) (LoginResult, error) {
	login = strings.TrimSpace(login)

	acc, err := s.store.FindByLogin(ctx, login)
	if errors.Is(err, ErrIdentityNotFound) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}

	if !acc.CanLogin() {
		s.log.Info("login refused: account not active", zap.String("user_id", acc.ID))
		return LoginResult{}, ErrInvalidCredentials
	}

	if err := VerifyPassword(acc.PasswordHash, password); err != nil {
		if errors.Is(err, ErrUnsupportedHash) {
			s.log.Warn("login refused: unsupported password hash", zap.String("user_id", acc.ID), zap.Error(err))
		}
		return LoginResult{}, ErrInvalidCredentials
	}

	tok, err := s.tokens.Issue(acc.Identity)
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{
		Token:     tok,
		ExpiresAt: s.tokens.now().Add(s.tokens.TTL()),
		User:      principalOf(acc.Identity),
	}, nil
}

// CheckFresh re-reads the identity behind verified claims and fails with
// ErrAccountInactive if it was removed or disabled since issuance.
func (s *Service) CheckFresh(ctx context.Context, c Claims) (Identity, error) {
	if s.fresh != nil {
		if id, ok := s.fresh.Get(c.ID); ok {
			return id, nil
		}
	}

	id, err := s.store.FindByID(ctx, c.ID)
	if errors.Is(err, ErrIdentityNotFound) {
		return Identity{}, ErrAccountInactive
	}
	if err != nil {
		return Identity{}, err
	}
	if !id.CanLogin() {
		return Identity{}, ErrAccountInactive
	}

	if s.fresh != nil {
		s.fresh.Add(id.ID, id)
	}
	return id, nil
}

func principalOf(id Identity) Principal {
	return Principal{
		ID:            id.ID,
		DisplayName:   id.DisplayName,
		Email:         id.Email,
		Admin:         id.Admin,
		Authenticated: true,
	}
}
