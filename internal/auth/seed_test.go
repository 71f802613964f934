package auth

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/scrypt"
)

func TestParseSeedAccounts(t *testing.T) {
	accs, err := ParseSeedAccounts("root:root@example.com:$2a$10$abc:admin, alice:alice@example.com:$2a$10$def")
	require.NoError(t, err)
	require.Len(t, accs, 2)

	assert.Equal(t, "root", accs[0].DisplayName)
	assert.True(t, accs[0].Admin)
	assert.True(t, accs[0].CanLogin())
	assert.Equal(t, "$2a$10$abc", accs[0].PasswordHash)

	assert.False(t, accs[1].Admin)
	assert.NotEqual(t, accs[0].ID, accs[1].ID)

	again, err := ParseSeedAccounts("x:ALICE@example.com:h")
	require.NoError(t, err)
	assert.Equal(t, accs[1].ID, again[0].ID, "id derives from the lower-cased email")
}

func TestParseSeedAccounts_WerkzeugHashes(t *testing.T) {
	scryptHash := "scrypt:16:1:1$salt$0123abcd"
	pbkdf2Hash := "pbkdf2:sha256:1000$salt$4567ef"

	accs, err := ParseSeedAccounts("ops:ops@example.com:" + scryptHash + ":ADMIN,bob:bob@example.com:" + pbkdf2Hash)
	require.NoError(t, err)
	require.Len(t, accs, 2)

	assert.Equal(t, scryptHash, accs[0].PasswordHash)
	assert.True(t, accs[0].Admin)
	assert.Equal(t, pbkdf2Hash, accs[1].PasswordHash)
	assert.False(t, accs[1].Admin)
}

func TestParseSeedAccounts_SeededHashVerifies(t *testing.T) {
	key, err := scrypt.Key([]byte("s3cret"), []byte("NaCl"), 16, 1, 1, 64)
	require.NoError(t, err)
	hash := "scrypt:16:1:1$NaCl$" + hex.EncodeToString(key)

	accs, err := ParseSeedAccounts("ops:ops@example.com:" + hash + ":admin")
	require.NoError(t, err)
	require.Len(t, accs, 1)
	assert.NoError(t, VerifyPassword(accs[0].PasswordHash, "s3cret"))
}

func TestParseSeedAccounts_Invalid(t *testing.T) {
	for _, raw := range []string{"alice", "alice:a@b.c", ":a@b.c:h", "a:b:", "a:b::admin", "a::h"} {
		_, err := ParseSeedAccounts(raw)
		assert.Error(t, err, raw)
	}

	accs, err := ParseSeedAccounts(" , ")
	require.NoError(t, err)
	assert.Empty(t, accs)
}
