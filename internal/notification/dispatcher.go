package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"

	"github.com/frahmantamala/fleet-approval/internal/core/events"
	"github.com/frahmantamala/fleet-approval/internal/user"
)

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	CreateBatch(ctx context.Context, ns []*Notification) error
	GetByID(ctx context.Context, id int64) (*Notification, error)
	ListByRecipient(ctx context.Context, recipientID int64, unreadOnly bool, limit, offset int) ([]*Notification, int64, error)
	CountUnread(ctx context.Context, recipientID int64) (int64, error)
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context, recipientID int64) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pager is the external paging channel. Send may fail; callers log and move on.
type Pager interface {
	Send(ctx context.Context, phoneNumber, text string) error
}

type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Recorder receives delivery outcomes for observability.
type Recorder interface {
	NotificationPersisted(template string, count int)
	SideEffectFailed(channel string)
}

// Dispatcher renders templates into inbox entries and pages recipients.
type Dispatcher struct {
	repo      Repository
	pager     Pager
	publisher Publisher
	recorder  Recorder
	logger    *slog.Logger
}

type Option func(*Dispatcher)

func WithPublisher(p Publisher) Option {
	return func(d *Dispatcher) { d.publisher = p }
}

func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

func NewDispatcher(repo Repository, pager Pager, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{repo: repo, pager: pager, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch persists one notification for recipient and pages them.
func (d *Dispatcher) Dispatch(ctx context.Context, key string, target Target, recipient *user.User, fields Fields) (*Notification, error) {
	if recipient == nil {
		return nil, fmt.Errorf("dispatch %s: nil recipient", key)
	}
	n, err := d.build(key, target, recipient.ID, fields)
	if err != nil {
		return nil, err
	}

	if err := d.repo.Create(ctx, n); err != nil {
		d.sideEffectFailed("inbox")
		return nil, fmt.Errorf("failed to persist notification %s: %w", key, err)
	}
	d.persisted(key, 1)

	d.announce(ctx, n)
	d.page(ctx, recipient, n)
	return n, nil
}

// DispatchMany persists one notification per distinct recipient in a single batch.
func (d *Dispatcher) DispatchMany(ctx context.Context, key string, target Target, recipients []*user.User, fields Fields) ([]*Notification, error) {
	if _, err := Lookup(key); err != nil {
		return nil, err
	}

	unique := dedupe(recipients)
	if len(unique) == 0 {
		d.logger.Warn("no recipients for notification", "template", key)
		return nil, nil
	}

	batch := make([]*Notification, 0, len(unique))
	for _, r := range unique {
		n, err := d.build(key, target, r.ID, fields)
		if err != nil {
			return nil, err
		}
		batch = append(batch, n)
	}

	if err := d.repo.CreateBatch(ctx, batch); err != nil {
		d.sideEffectFailed("inbox")
		return nil, fmt.Errorf("failed to persist %d notifications %s: %w", len(batch), key, err)
	}
	d.persisted(key, len(batch))

	for i, r := range unique {
		d.announce(ctx, batch[i])
		d.page(ctx, r, batch[i])
	}
	return batch, nil
}

func (d *Dispatcher) build(key string, target Target, recipientID int64, fields Fields) (*Notification, error) {
	tpl, err := Lookup(key)
	if err != nil {
		return nil, err
	}

	meta := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		meta[k] = v
	}
	meta["template"] = key
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification metadata: %w", err)
	}

	n := &Notification{
		RecipientID:    recipientID,
		Type:           key,
		Title:          tpl.Title,
		Message:        tpl.Render(fields),
		ActionRequired: tpl.ActionRequired,
		Priority:       tpl.Priority,
		Metadata:       datatypes.JSON(raw),
	}
	target.apply(n)
	return n, nil
}

func (d *Dispatcher) announce(ctx context.Context, n *Notification) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(ctx, events.NewNotificationCreatedEvent(n.RecipientID, n.ID, n)); err != nil {
		d.logger.Warn("failed to publish notification event", "notification_id", n.ID, "error", err)
	}
}

// page hands the message to the paging channel; failures never reach the caller.
func (d *Dispatcher) page(ctx context.Context, recipient *user.User, n *Notification) {
	if d.pager == nil || recipient.PhoneNumber == "" {
		return
	}
	text := n.Title + ": " + n.Message
	if err := d.pager.Send(ctx, recipient.PhoneNumber, text); err != nil {
		d.sideEffectFailed("paging")
		d.logger.Warn("paging failed",
			"recipient_id", recipient.ID,
			"template", n.Type,
			"error", err)
	}
}

func (d *Dispatcher) persisted(key string, count int) {
	if d.recorder != nil {
		d.recorder.NotificationPersisted(key, count)
	}
}

func (d *Dispatcher) sideEffectFailed(channel string) {
	if d.recorder != nil {
		d.recorder.SideEffectFailed(channel)
	}
}

func dedupe(users []*user.User) []*user.User {
	seen := make(map[int64]bool, len(users))
	out := make([]*user.User, 0, len(users))
	for _, u := range users {
		if u == nil || seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		out = append(out, u)
	}
	return out
}
