package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
)

var ErrNotFound = errors.New("notification not found")

// Service exposes a recipient's inbox.
type Service struct {
	repo            Repository
	logger          *slog.Logger
	defaultPageSize int
	now             func() time.Time
}

func NewService(repo Repository, defaultPageSize int, logger *slog.Logger) *Service {
	if defaultPageSize <= 0 {
		defaultPageSize = 20
	}
	return &Service{repo: repo, logger: logger, defaultPageSize: defaultPageSize, now: time.Now}
}

func (s *Service) List(ctx context.Context, recipientID int64, unreadOnly bool, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = s.defaultPageSize
	}

	items, total, err := s.repo.ListByRecipient(ctx, recipientID, unreadOnly, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &Page{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

func (s *Service) UnreadCount(ctx context.Context, recipientID int64) (int64, error) {
	n, err := s.repo.CountUnread(ctx, recipientID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return n, nil
}

// MarkRead flags one of the recipient's own notifications as read.
func (s *Service) MarkRead(ctx context.Context, recipientID, id int64) error {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperrors.ErrNotificationNotFound
		}
		return fmt.Errorf("failed to load notification: %w", err)
	}
	if n.RecipientID != recipientID {
		return apperrors.ErrNotRecipient
	}
	if n.IsRead {
		return nil
	}
	if err := s.repo.MarkRead(ctx, id); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, recipientID int64) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, recipientID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return n, nil
}

// Prune deletes notifications older than the retention window.
func (s *Service) Prune(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	deleted, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune notifications: %w", err)
	}
	s.logger.Info("notification retention sweep finished", "cutoff", cutoff, "deleted", deleted)
	return deleted, nil
}
