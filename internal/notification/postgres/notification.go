package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/fleet-approval/internal/core/database"
	"github.com/frahmantamala/fleet-approval/internal/notification"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	return database.GetDB(ctx, r.db).Create(n).Error
}

func (r *NotificationRepository) CreateBatch(ctx context.Context, ns []*notification.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	return database.GetDB(ctx, r.db).CreateInBatches(ns, 100).Error
}

func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*notification.Notification, error) {
	var n notification.Notification
	if err := database.GetDB(ctx, r.db).First(&n, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notification.ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID int64, unreadOnly bool, limit, offset int) ([]*notification.Notification, int64, error) {
	q := database.GetDB(ctx, r.db).Model(&notification.Notification{}).Where("recipient_id = ?", recipientID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []*notification.Notification
	err := q.Session(&gorm.Session{}).Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	return items, total, err
}

func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID int64) (int64, error) {
	var n int64
	err := database.GetDB(ctx, r.db).Model(&notification.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&n).Error
	return n, err
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id int64) error {
	return database.GetDB(ctx, r.db).Model(&notification.Notification{}).
		Where("id = ?", id).
		Update("is_read", true).Error
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID int64) (int64, error) {
	res := database.GetDB(ctx, r.db).Model(&notification.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := database.GetDB(ctx, r.db).
		Where("created_at < ?", cutoff).
		Delete(&notification.Notification{})
	return res.RowsAffected, res.Error
}
