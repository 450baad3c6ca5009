package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/fleet-approval/internal/core/database"
	"github.com/frahmantamala/fleet-approval/internal/otp"
)

type CodeRepository struct {
	db *gorm.DB
}

func NewCodeRepository(db *gorm.DB) *CodeRepository {
	return &CodeRepository{db: db}
}

func (r *CodeRepository) GetForUpdate(ctx context.Context, userID int64) (*otp.Code, error) {
	var c otp.Code
	err := database.GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, otp.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *CodeRepository) Replace(ctx context.Context, c *otp.Code) error {
	db := database.GetDB(ctx, r.db)
	if err := db.Where("user_id = ?", c.UserID).Delete(&otp.Code{}).Error; err != nil {
		return err
	}
	return db.Create(c).Error
}

func (r *CodeRepository) Save(ctx context.Context, c *otp.Code) error {
	return database.GetDB(ctx, r.db).
		Model(&otp.Code{}).
		Where("id = ?", c.ID).
		Updates(map[string]interface{}{
			"attempts":     c.Attempts,
			"locked_until": c.LockedUntil,
		}).Error
}

func (r *CodeRepository) Delete(ctx context.Context, id int64) error {
	return database.GetDB(ctx, r.db).Delete(&otp.Code{}, id).Error
}
