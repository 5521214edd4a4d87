package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/alagamento-br/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateRole(ctx context.Context, id int, role types.Role) error
	Delete(ctx context.Context, id int) error
}

// UserService encapsulates account administration.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	return s.repo.List(ctx)
}

// Promote grants the admin role. Promoting an admin again succeeds.
func (s *UserService) Promote(ctx context.Context, id int) error {
	if err := s.repo.UpdateRole(ctx, id, types.RoleAdmin); err != nil {
		return fmt.Errorf("promote user %d: %w", id, err)
	}
	return nil
}

// PromoteByEmail is the operator path used to bootstrap the first admin.
func (s *UserService) PromoteByEmail(ctx context.Context, email string) (types.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return types.User{}, invalid("email is required")
	}
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return types.User{}, fmt.Errorf("find user %q: %w", email, err)
	}
	if err := s.Promote(ctx, user.ID); err != nil {
		return types.User{}, err
	}
	user.Role = types.RoleAdmin
	return user, nil
}

// Delete removes the account. Incidents it authored remain with no author.
func (s *UserService) Delete(ctx context.Context, id int) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	return nil
}

