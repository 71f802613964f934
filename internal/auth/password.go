package auth

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

// VerifyPassword checks password against a stored hash. Accepted encodings:
//
//	$2a$/$2b$/$2y$...                  bcrypt
//	scrypt:N:r:p$salt$hex              werkzeug scrypt
//	pbkdf2:sha256[:iterations]$salt$hex werkzeug pbkdf2 (sha256 or sha512)
//
// Plaintext and unknown schemes are rejected with ErrUnsupportedHash.
func VerifyPassword(encoded, password string) error {
	switch {
	case encoded == "":
		return ErrUnsupportedHash
	case strings.HasPrefix(encoded, "$2a$"),
		strings.HasPrefix(encoded, "$2b$"),
		strings.HasPrefix(encoded, "$2y$"):
		if err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password)); err != nil {
			return ErrInvalidCredentials
		}
		return nil
	case strings.HasPrefix(encoded, "scrypt:"):
		return verifyScrypt(encoded, password)
	case strings.HasPrefix(encoded, "pbkdf2:"):
		return verifyPBKDF2(encoded, password)
	}
	return ErrUnsupportedHash
}

// HashPassword produces the bcrypt encoding used for newly provisioned accounts.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func splitWerkzeug(encoded string) (method, salt string, want []byte, err error) {
	parts := strings.SplitN(encoded, "$", 3)
	if len(parts) != 3 || parts[1] == "" {
		return "", "", nil, fmt.Errorf("%w: bad layout", ErrUnsupportedHash)
	}
	want, err = hex.DecodeString(parts[2])
	if err != nil || len(want) == 0 {
		return "", "", nil, fmt.Errorf("%w: bad digest", ErrUnsupportedHash)
	}
	return parts[0], parts[1], want, nil
}

func verifyScrypt(encoded, password string) error {
	method, salt, want, err := splitWerkzeug(encoded)
	if err != nil {
		return err
	}

	params := strings.Split(method, ":")
	if len(params) != 4 {
		return fmt.Errorf("%w: scrypt parameters", ErrUnsupportedHash)
	}
	n, errN := strconv.Atoi(params[1])
	r, errR := strconv.Atoi(params[2])
	p, errP := strconv.Atoi(params[3])
	if errN != nil || errR != nil || errP != nil {
		return fmt.Errorf("%w: scrypt parameters", ErrUnsupportedHash)
	}

	got, err := scrypt.Key([]byte(password), []byte(salt), n, r, p, len(want))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedHash, err)
	}
	return compareDigest(got, want)
}

func verifyPBKDF2(encoded, password string) error {
	method, salt, want, err := splitWerkzeug(encoded)
	if err != nil {
		return err
	}

	params := strings.Split(method, ":")
	if len(params) < 2 || len(params) > 3 {
		return fmt.Errorf("%w: pbkdf2 parameters", ErrUnsupportedHash)
	}

	var h func() hash.Hash
	switch params[1] {
	case "sha256":
		h = sha256.New
	case "sha512":
		h = sha512.New
	default:
		return fmt.Errorf("%w: pbkdf2 digest %q", ErrUnsupportedHash, params[1])
	}

	iter := 600000
	if len(params) == 3 {
		iter, err = strconv.Atoi(params[2])
		if err != nil || iter <= 0 {
			return fmt.Errorf("%w: pbkdf2 iterations", ErrUnsupportedHash)
		}
	}

	got := pbkdf2.Key([]byte(password), []byte(salt), iter, len(want), h)
	return compareDigest(got, want)
}

func compareDigest(got, want []byte) error {
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}
