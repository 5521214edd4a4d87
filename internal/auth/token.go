// Package auth issues and verifies the signed identity tokens carried as
// bearer credentials, and hashes user passwords.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alagamento-br/apiserver/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// TokenTTL is the fixed lifetime of an issued token. There is no refresh:
// an expired token requires logging in again.
const TokenTTL = 60 * time.Minute

// ErrInvalidToken covers every verification failure: bad signature,
// malformed payload and expiry are not distinguished to callers.
var ErrInvalidToken = errors.New("invalid token")

// Principal is the authenticated identity decoded from a verified token.
// It is only produced by TokenService.Verify.
type Principal struct {
	SubjectID int
	Name      string
	Email     string
	Role      types.Role
	ExpiresAt time.Time
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == types.RoleAdmin
}

// Claims is the JWT payload.
type Claims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies HS256 tokens with a process-wide secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

// NewTokenService constructs a TokenService. A nil clock uses real time.
func NewTokenService(secret string, clock clockwork.Clock) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TokenService{
		secret: []byte(secret),
		ttl:    TokenTTL,
		clock:  clock,
	}, nil
}

// Issue signs a token for the user, valid for TokenTTL from now.
func (s *TokenService) Issue(user types.User) (string, error) {
	now := s.clock.Now()
	claims := Claims{
		Name:  user.Name,
		Email: user.Email,
		Role:  string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates signature and expiry and decodes the principal.
// A token is rejected from its expiry instant onwards.
func (s *TokenService) Verify(tokenString string) (Principal, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	subjectID, err := strconv.Atoi(strings.TrimSpace(claims.Subject))
	if err != nil || subjectID < 1 {
		return Principal{}, ErrInvalidToken
	}
	role := types.Role(claims.Role)
	if !role.Valid() {
		return Principal{}, ErrInvalidToken
	}

	return Principal{
		SubjectID: subjectID,
		Name:      claims.Name,
		Email:     claims.Email,
		Role:      role,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
