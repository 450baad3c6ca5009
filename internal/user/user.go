package user

import (
	"context"
	"time"

	"github.com/frahmantamala/fleet-approval/internal/core/approval"
)

// User is an actor of the approval workflow.
type User struct {
	ID           int64         `gorm:"primaryKey" json:"id"`
	Email        string        `gorm:"column:email;uniqueIndex;not null" json:"email"`
	FullName     string        `gorm:"column:full_name;not null" json:"full_name"`
	PasswordHash string        `gorm:"column:password_hash;not null" json:"-"`
	Role         approval.Role `gorm:"column:role;type:varchar(32);not null;index" json:"role"`
	Department   string        `gorm:"column:department;index" json:"department,omitempty"`
	PhoneNumber  string        `gorm:"column:phone_number" json:"phone_number,omitempty"`
	IsActive     bool          `gorm:"column:is_active;not null" json:"is_active"`
	CreatedAt    time.Time     `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"column:updated_at" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// DisplayName falls back to the email when no full name is recorded.
func (u *User) DisplayName() string {
	if u == nil {
		return "Unknown"
	}
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}

func (u *User) HasRole(roles ...approval.Role) bool {
	return u != nil && u.Role.In(roles...)
}

type ctxKey string

const userKey ctxKey = "authenticated_user"

// WithContext stores the authenticated actor on ctx.
func WithContext(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// FromContext returns the authenticated actor placed by the auth middleware.
func FromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userKey).(*User)
	return u, ok && u != nil
}
