package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/frahmantamala/fleet-approval/internal/audit"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
)

// AuditRepository is the sqlx-backed audit store.
type AuditRepository struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const selectColumns = `id, target_kind, target_id, actor_id, action, status_at_time, approver_role, remarks, created_at`

func (r *AuditRepository) Insert(ctx context.Context, e *audit.Entry) error {
	const query = `INSERT INTO audit_entries
	(target_kind, target_id, actor_id, action, status_at_time, approver_role, remarks)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id, created_at`
	row := r.db.QueryRowxContext(ctx, query,
		e.TargetKind, e.TargetID, e.ActorID, e.Action, e.StatusAtTime, e.ApproverRole, e.Remarks)
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListByActor(ctx context.Context, actorID int64, limit int) ([]audit.Entry, error) {
	query := `SELECT ` + selectColumns + ` FROM audit_entries
	WHERE actor_id = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2`
	var entries []audit.Entry
	if err := r.db.SelectContext(ctx, &entries, query, actorID, limit); err != nil {
		return nil, fmt.Errorf("list audit entries by actor: %w", err)
	}
	return entries, nil
}

func (r *AuditRepository) ListByTarget(ctx context.Context, target approval.Ref) ([]audit.Entry, error) {
	query := `SELECT ` + selectColumns + ` FROM audit_entries
	WHERE target_kind = $1 AND target_id = $2
	ORDER BY created_at DESC, id DESC`
	var entries []audit.Entry
	if err := r.db.SelectContext(ctx, &entries, query, target.Kind, target.ID); err != nil {
		return nil, fmt.Errorf("list audit entries by target: %w", err)
	}
	return entries, nil
}
