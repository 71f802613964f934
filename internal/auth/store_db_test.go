package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userCols = []string{"id", "nickname", "email", "password", "is_active", "is_authenticated", "is_superuser"}

func TestPostgresStore_FindByLogin(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(mock pgxmock.PgxPoolIface)
		wantErr error
		check   func(t *testing.T, a Account)
	}{
		{
			name: "flags normalised",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM "user"\s+WHERE nickname = \$1 OR lower\(email\) = lower\(\$1\)`).
					WithArgs("alice").
					WillReturnRows(pgxmock.NewRows(userCols).
						AddRow("u-1", "alice", "alice@example.com", "$2a$hash", "1", "1", true))
			},
			check: func(t *testing.T, a Account) {
				assert.Equal(t, "u-1", a.ID)
				assert.True(t, a.Active)
				assert.True(t, a.Authenticated)
				assert.True(t, a.Admin)
				assert.Equal(t, "$2a$hash", a.PasswordHash)
			},
		},
		{
			name: "inactive strings",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM "user"`).
					WithArgs("alice").
					WillReturnRows(pgxmock.NewRows(userCols).
						AddRow("u-1", "alice", "", "", "0", "1", false))
			},
			check: func(t *testing.T, a Account) {
				assert.False(t, a.Active)
				assert.False(t, a.CanLogin())
			},
		},
		{
			name: "not found",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM "user"`).
					WithArgs("alice").
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: ErrIdentityNotFound,
		},
		{
			name: "driver error wrapped",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM "user"`).
					WithArgs("alice").
					WillReturnError(errors.New("conn reset"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.setup(mock)
			a, err := NewPostgresStore(mock).FindByLogin(context.Background(), " alice ")

			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.check == nil:
				require.Error(t, err)
				assert.NotErrorIs(t, err, ErrIdentityNotFound)
			default:
				require.NoError(t, err)
				tt.check(t, a)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_FindByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM "user" WHERE id = \$1`).
		WithArgs("u-9").
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow("u-9", "zed", "zed@example.com", "x", "1", "1", false))

	id, err := NewPostgresStore(mock).FindByID(context.Background(), "u-9")
	require.NoError(t, err)
	assert.Equal(t, "zed", id.DisplayName)
	assert.True(t, id.CanLogin())
	require.NoError(t, mock.ExpectationsWereMet())
}
