package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"KBPortal/internal/storage"
)

// PostgresStore reads the shared "user" table. Flags stored as "1"/"0"
// strings are normalised here and never leave the adapter as strings.
type PostgresStore struct {
	db storage.DB
}

func NewPostgresStore(db storage.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectUser = `
	SELECT id,
	       COALESCE(nickname, ''),
	       COALESCE(email, ''),
	       COALESCE(password, ''),
	       COALESCE(is_active, '0'),
	       COALESCE(is_authenticated, '0'),
	       COALESCE(is_superuser, false)
	FROM "user"`

type userRow struct {
	id, nickname, email, password string
	active, authenticated         string
	superuser                     bool
}

func (u userRow) account() Account {
	return Account{
		Identity: Identity{
			ID:            u.id,
			DisplayName:   u.nickname,
			Email:         u.email,
			Active:        ParseFlag(u.active),
			Authenticated: ParseFlag(u.authenticated),
			Admin:         u.superuser,
		},
		PasswordHash: u.password,
	}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return storage.WithTimeout(ctx, storage.PingTimeout, s.db.Ping)
}

func (s *PostgresStore) FindByLogin(ctx context.Context, login string) (Account, error) {
	login = strings.TrimSpace(login)

	// An exact email match wins over a display name that happens to equal it.
	return s.findOne(ctx, selectUser+`
		WHERE nickname = $1 OR lower(email) = lower($1)
		ORDER BY (lower(email) = lower($1)) DESC, id
		LIMIT 1`, login)
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (Identity, error) {
	a, err := s.findOne(ctx, selectUser+` WHERE id = $1`, id)
	if err != nil {
		return Identity{}, err
	}
	return a.Identity, nil
}

func (s *PostgresStore) findOne(ctx context.Context, query, arg string) (Account, error) {
	var u userRow
	err := storage.WithTimeout(ctx, storage.QueryTimeout, func(ctx context.Context) error {
		return s.db.QueryRow(ctx, query, arg).Scan(
			&u.id, &u.nickname, &u.email, &u.password,
			&u.active, &u.authenticated, &u.superuser,
		)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrIdentityNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("query user: %w", err)
	}
	return u.account(), nil
}
