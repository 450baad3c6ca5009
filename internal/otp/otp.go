package otp

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("otp not found")

// Code is the single live one-time code of a user.
type Code struct {
	ID          int64      `gorm:"primaryKey" json:"-"`
	UserID      int64      `gorm:"column:user_id;uniqueIndex;not null" json:"user_id"`
	Code        string     `gorm:"column:code;type:varchar(6);not null" json:"-"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null" json:"created_at"`
	ExpiresAt   time.Time  `gorm:"column:expires_at;not null" json:"expires_at"`
	Attempts    int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LockedUntil *time.Time `gorm:"column:locked_until" json:"locked_until,omitempty"`
}

func (Code) TableName() string {
	return "otp_codes"
}

func (c *Code) Locked(now time.Time) bool {
	return c.LockedUntil != nil && now.Before(*c.LockedUntil)
}

func (c *Code) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

type Repository interface {
	// GetForUpdate locks the user's row for the surrounding transaction.
	GetForUpdate(ctx context.Context, userID int64) (*Code, error)
	// Replace drops any code of c.UserID and stores c.
	Replace(ctx context.Context, c *Code) error
	Save(ctx context.Context, c *Code) error
	Delete(ctx context.Context, id int64) error
}
