package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alagamento-br/apiserver/internal/store"
	"github.com/alagamento-br/apiserver/types"
)

// TokenIssuer signs identity tokens.
type TokenIssuer interface {
	Issue(user types.User) (string, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// RegisterInput is the payload of a registration.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// AuthResult is returned by successful registration and login.
type AuthResult struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

// AuthService handles registration and login.
type AuthService struct {
	users  UserRepository
	hasher PasswordHasher
	tokens TokenIssuer
}

func NewAuthService(users UserRepository, hasher PasswordHasher, tokens TokenIssuer) *AuthService {
	return &AuthService{users: users, hasher: hasher, tokens: tokens}
}

// Register creates an account with the user role and returns a token for it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return AuthResult{}, invalid("name, email and password are required")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, types.User{
		Name:         in.Name,
		Email:        in.Email,
		Role:         types.RoleUser,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return AuthResult{}, invalid("email already registered")
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	return s.issue(user)
}

// Login verifies the credentials and returns a fresh token.
func (s *AuthService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return AuthResult{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, fmt.Errorf("load user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return AuthResult{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return AuthResult{}, ErrInvalidCredentials
	}

	return s.issue(user)
}

func (s *AuthService) issue(user types.User) (AuthResult, error) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}
	return AuthResult{Token: token, User: user}, nil
}
