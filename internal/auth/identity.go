package auth

import "strings"

// Identity is a user record owned by the external user database.
type Identity struct {
	ID            string
	DisplayName   string
	Email         string
	Active        bool
	Authenticated bool
	Admin         bool
}

// CanLogin reports whether the identity may be issued a token.
func (i Identity) CanLogin() bool {
	return i.Active && i.Authenticated
}

// Account pairs an identity with its stored password hash.
type Account struct {
	Identity
	PasswordHash string
}

// Principal is the caller resolved by the guard for one request.
type Principal struct {
	ID            string `json:"id"`
	DisplayName   string `json:"displayName,omitempty"`
	Email         string `json:"email,omitempty"`
	Admin         bool   `json:"isAdmin"`
	Authenticated bool   `json:"authenticated"`
}

const GuestID = "guest"

var Guest = Principal{ID: GuestID}

func (p Principal) IsGuest() bool {
	return !p.Authenticated
}

// ParseFlag normalises the string booleans of the user table ("1"/"0").
func ParseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes":
		return true
	default:
		return false
	}
}
