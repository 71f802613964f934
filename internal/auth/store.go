package auth

import "context"

// IdentityStore reads operator accounts from the user database.
type IdentityStore interface {
	// FindByLogin matches login against display name or email.
	FindByLogin(ctx context.Context, login string) (Account, error)
	FindByID(ctx context.Context, id string) (Identity, error)
	Ping(ctx context.Context) error
}
