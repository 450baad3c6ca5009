package workflow

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/audit"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/user"
)

// Get returns a request the actor is allowed to see: the requester, anyone
// on its route, or the driver of its vehicle.
func (e *Engine) Get(ctx context.Context, actor *user.User, kind approval.Kind, id int64) (Request, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorizedError("authentication required", apperrors.ErrCodeUnauthorizedAccess)
	}
	if !kind.Valid() {
		return nil, apperrors.ErrUnknownKind
	}
	req, err := e.repo.Get(ctx, kind, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	if !e.canView(ctx, actor, req) {
		return nil, apperrors.ErrRoleNotPermitted
	}
	return req, nil
}

func (e *Engine) canView(ctx context.Context, actor *user.User, req Request) bool {
	h := req.Header()
	if h.RequesterID == actor.ID || Contains(req.Kind(), actor.Role) {
		return true
	}
	if actor.HasRole(approval.RoleFinanceManager) && h.Status == approval.StatusApproved {
		return true
	}
	if id, ok := vehicleOf(req); ok {
		if v, err := e.allocator.Get(ctx, id); err == nil && v.DrivenBy(actor.ID) {
			return true
		}
	}
	return false
}

// ListMine lists the actor's own requests of kind, newest first.
func (e *Engine) ListMine(ctx context.Context, actor *user.User, kind approval.Kind) ([]Request, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorizedError("authentication required", apperrors.ErrCodeUnauthorizedAccess)
	}
	if !kind.Valid() {
		return nil, apperrors.ErrUnknownKind
	}
	reqs, err := e.repo.ListByRequester(ctx, kind, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	return reqs, nil
}

// ListAwaiting lists live requests of kind routed to the actor's role, oldest
// first. Transport department managers only see their own department. The
// transport manager's high cost queue also holds approved requests that still
// need their vehicle assigned.
func (e *Engine) ListAwaiting(ctx context.Context, actor *user.User, kind approval.Kind) ([]Request, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorizedError("authentication required", apperrors.ErrCodeUnauthorizedAccess)
	}
	if !kind.Valid() {
		return nil, apperrors.ErrUnknownKind
	}
	if !Contains(kind, actor.Role) {
		return nil, apperrors.ErrRoleNotPermitted
	}

	filter := AwaitingFilter{Role: actor.Role}
	if kind == approval.KindTransport && actor.Role == approval.RoleDepartmentManager {
		if actor.Department == "" {
			return []Request{}, nil
		}
		filter.Department = actor.Department
	}
	if kind == approval.KindHighCost && actor.Role == approval.RoleTransportManager {
		filter.Unassigned = true
	}
	reqs, err := e.repo.ListAwaiting(ctx, kind, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list awaiting requests: %w", err)
	}
	return reqs, nil
}

// ListDriving lists the approved trips of kind on the vehicle the actor drives.
func (e *Engine) ListDriving(ctx context.Context, actor *user.User, kind approval.Kind) ([]Request, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorizedError("authentication required", apperrors.ErrCodeUnauthorizedAccess)
	}
	if !kind.HasTrip() {
		return nil, apperrors.ErrUnknownKind.WithMessage("only trips have drivers")
	}
	if !actor.HasRole(approval.RoleDriver) {
		return nil, apperrors.ErrRoleNotPermitted
	}
	reqs, err := e.repo.ListDriving(ctx, kind, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list driving requests: %w", err)
	}
	return reqs, nil
}

// History returns the audit trail of a request the actor may view.
func (e *Engine) History(ctx context.Context, actor *user.User, kind approval.Kind, id int64) ([]audit.Entry, error) {
	req, err := e.Get(ctx, actor, kind, id)
	if err != nil {
		return nil, err
	}
	return e.audit.ListByTarget(ctx, approval.Ref{Kind: kind, ID: req.Header().ID})
}
