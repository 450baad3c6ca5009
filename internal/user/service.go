package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
)

var ErrNotFound = errors.New("user not found")

type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListByIDs(ctx context.Context, ids []int64) ([]*User, error)
	ListActiveByRole(ctx context.Context, role approval.Role) ([]*User, error)
	ListActiveByRoleInDepartment(ctx context.Context, role approval.Role, department string) ([]*User, error)
	Create(ctx context.Context, u *User) error
}

// Service is the actor directory consumed by the workflow engine.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) GetByID(ctx context.Context, id int64) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return u, nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

// ActiveByRole lists every active holder of role.
func (s *Service) ActiveByRole(ctx context.Context, role approval.Role) ([]*User, error) {
	users, err := s.repo.ListActiveByRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("failed to list users with role %s: %w", role, err)
	}
	return users, nil
}

func (s *Service) ActiveByRoleInDepartment(ctx context.Context, role approval.Role, department string) ([]*User, error) {
	users, err := s.repo.ListActiveByRoleInDepartment(ctx, role, department)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s users in %s: %w", role, department, err)
	}
	return users, nil
}

// ByIDs resolves ids and fails if any of them is unknown.
func (s *Service) ByIDs(ctx context.Context, ids []int64) ([]*User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	users, err := s.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve users: %w", err)
	}
	seen := make(map[int64]bool, len(users))
	for _, u := range users {
		seen[u.ID] = true
	}
	for _, id := range ids {
		if !seen[id] {
			s.logger.Warn("unknown user referenced", "user_id", id)
			return nil, apperrors.NewValidationFieldError("passenger_ids", fmt.Sprintf("user %d does not exist", id), apperrors.ErrCodeUserNotFound)
		}
	}
	return users, nil
}

func (s *Service) Create(ctx context.Context, u *User) error {
	if !u.Role.Valid() {
		return apperrors.NewValidationFieldError("role", "unknown role", apperrors.ErrCodeValidationFailed)
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}
