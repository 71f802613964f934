package auth

import (
	"errors"
	"net/http"
)

var (
	ErrMalformed        = errors.New("malformed token")
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")

	ErrUnauthenticated = errors.New("authentication required")
	ErrInvalidToken    = errors.New("invalid token")
	ErrForbidden       = errors.New("admin privileges required")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account is no longer active")
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrUnsupportedHash    = errors.New("unsupported password hash")
)

// HTTPStatus maps an access-control failure to a status code and public
// message. ok is false for errors outside this package's taxonomy.
func HTTPStatus(err error) (status int, msg string, ok bool) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, ErrUnauthenticated.Error(), true
	case errors.Is(err, ErrExpired):
		return http.StatusUnauthorized, ErrExpired.Error(), true
	case errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrMalformed),
		errors.Is(err, ErrSignatureInvalid):
		return http.StatusUnauthorized, ErrInvalidToken.Error(), true
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrInvalidCredentials.Error(), true
	case errors.Is(err, ErrAccountInactive):
		return http.StatusUnauthorized, ErrAccountInactive.Error(), true
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, ErrForbidden.Error(), true
	}
	return 0, "", false
}
