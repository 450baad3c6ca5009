package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/core/database"
	"github.com/frahmantamala/fleet-approval/internal/user"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	var u user.User
	if err := database.GetDB(ctx, r.db).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	var u user.User
	if err := database.GetDB(ctx, r.db).Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) ListByIDs(ctx context.Context, ids []int64) ([]*user.User, error) {
	var users []*user.User
	err := database.GetDB(ctx, r.db).Where("id IN ?", ids).Order("id").Find(&users).Error
	return users, err
}

func (r *UserRepository) ListActiveByRole(ctx context.Context, role approval.Role) ([]*user.User, error) {
	var users []*user.User
	err := database.GetDB(ctx, r.db).
		Where("role = ? AND is_active = ?", role, true).
		Order("id").
		Find(&users).Error
	return users, err
}

func (r *UserRepository) ListActiveByRoleInDepartment(ctx context.Context, role approval.Role, department string) ([]*user.User, error) {
	var users []*user.User
	err := database.GetDB(ctx, r.db).
		Where("role = ? AND department = ? AND is_active = ?", role, department, true).
		Order("id").
		Find(&users).Error
	return users, err
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	return database.GetDB(ctx, r.db).Create(u).Error
}
