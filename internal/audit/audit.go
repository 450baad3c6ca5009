package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/user"
)

// Entry is one immutable line of the decision history. The target is a
// tagged reference over the request variants.
type Entry struct {
	ID           int64           `db:"id" json:"id"`
	TargetKind   approval.Kind   `db:"target_kind" json:"target_kind"`
	TargetID     int64           `db:"target_id" json:"target_id"`
	ActorID      int64           `db:"actor_id" json:"actor_id"`
	Action       string          `db:"action" json:"action"`
	StatusAtTime approval.Status `db:"status_at_time" json:"status_at_time"`
	ApproverRole approval.Role   `db:"approver_role" json:"approver_role"`
	Remarks      string          `db:"remarks" json:"remarks,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

func (e Entry) Target() approval.Ref {
	return approval.Ref{Kind: e.TargetKind, ID: e.TargetID}
}

// Record is what a caller appends. StatusAtTime is taken as given, so callers
// pass the status after their transition.
type Record struct {
	Target       approval.Ref
	Actor        *user.User
	Action       approval.Action
	StatusAtTime approval.Status
	Remarks      string
}

type Store interface {
	Insert(ctx context.Context, e *Entry) error
	ListByActor(ctx context.Context, actorID int64, limit int) ([]Entry, error)
	ListByTarget(ctx context.Context, target approval.Ref) ([]Entry, error)
}

// Log is the append-only audit trail.
type Log struct {
	store  Store
	logger *slog.Logger
}

func NewLog(store Store, logger *slog.Logger) *Log {
	return &Log{store: store, logger: logger}
}

func (l *Log) Append(ctx context.Context, rec Record) (*Entry, error) {
	if !rec.Target.Kind.Valid() || rec.Target.ID <= 0 {
		return nil, apperrors.ErrUnknownKind.WithMessage(fmt.Sprintf("invalid audit target %s/%d", rec.Target.Kind, rec.Target.ID))
	}
	if rec.Actor == nil {
		return nil, apperrors.NewValidationFieldError("actor", "audit entries need an actor", apperrors.ErrCodeValidationFailed)
	}

	e := &Entry{
		TargetKind:   rec.Target.Kind,
		TargetID:     rec.Target.ID,
		ActorID:      rec.Actor.ID,
		Action:       rec.Action.Past(),
		StatusAtTime: rec.StatusAtTime,
		ApproverRole: rec.Actor.Role,
		Remarks:      rec.Remarks,
	}
	if err := l.store.Insert(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to append audit entry: %w", err)
	}

	l.logger.Info("audit entry appended",
		"target_kind", e.TargetKind,
		"target_id", e.TargetID,
		"actor_id", e.ActorID,
		"action", e.Action,
		"status", e.StatusAtTime)
	return e, nil
}

// ListByActor returns the actor's entries, newest first.
func (l *Log) ListByActor(ctx context.Context, actorID int64, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	entries, err := l.store.ListByActor(ctx, actorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries by actor: %w", err)
	}
	return entries, nil
}

// ListByTarget returns the history of one request, newest first.
func (l *Log) ListByTarget(ctx context.Context, target approval.Ref) ([]Entry, error) {
	if !target.Kind.Valid() {
		return nil, apperrors.ErrUnknownKind
	}
	entries, err := l.store.ListByTarget(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries by target: %w", err)
	}
	return entries, nil
}
