package auth

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const adminSuffix = ":admin"

// ParseSeedAccounts reads displayName:email:hash[:admin] items separated by
// commas. Ids are derived from the email so restarts keep issued tokens
// valid.
func ParseSeedAccounts(raw string) ([]Account, error) {
	var out []Account
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		parts := strings.SplitN(item, ":", 3)
		if len(parts) < 3 {
			return nil, fmt.Errorf("seed account %q: want displayName:email:hash[:admin]", item)
		}
		// The hash may itself contain colons (werkzeug scrypt:/pbkdf2:), so
		// the admin flag is read from the end.
		hash := strings.TrimSpace(parts[2])
		admin := false
		if n := len(hash) - len(adminSuffix); n >= 0 && strings.EqualFold(hash[n:], adminSuffix) {
			hash, admin = strings.TrimSpace(hash[:n]), true
		}
		name, email := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if name == "" || email == "" || hash == "" {
			return nil, fmt.Errorf("seed account %q: empty field", item)
		}

		out = append(out, Account{
			Identity: Identity{
				ID:            uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.ToLower(email))).String(),
				DisplayName:   name,
				Email:         email,
				Active:        true,
				Authenticated: true,
				Admin:         admin,
			},
			PasswordHash: hash,
		})
	}
	return out, nil
}
