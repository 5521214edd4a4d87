package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

const (
	HasherBcrypt   = "bcrypt"
	HasherArgon2id = "argon2id"
)

var argon2Params = &argon2id.Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// PasswordHasher hashes new passwords with the configured algorithm and
// verifies stored hashes of either supported algorithm.
type PasswordHasher struct {
	algorithm string
}

// NewPasswordHasher returns a hasher for "bcrypt" or "argon2id".
// An empty algorithm selects bcrypt.
func NewPasswordHasher(algorithm string) (*PasswordHasher, error) {
	algorithm = strings.ToLower(strings.TrimSpace(algorithm))
	switch algorithm {
	case "", HasherBcrypt:
		return &PasswordHasher{algorithm: HasherBcrypt}, nil
	case HasherArgon2id:
		return &PasswordHasher{algorithm: HasherArgon2id}, nil
	default:
		return nil, fmt.Errorf("unsupported password hasher %q", algorithm)
	}
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	if h.algorithm == HasherArgon2id {
		return argon2id.CreateHash(password, argon2Params)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether password matches encodedHash. The algorithm is
// detected from the hash prefix so switching PASSWORD_HASHER keeps existing
// accounts usable.
func (h *PasswordHasher) Verify(password, encodedHash string) (bool, error) {
	if strings.HasPrefix(encodedHash, "$argon2id$") {
		return argon2id.ComparePasswordAndHash(password, encodedHash)
	}
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}
