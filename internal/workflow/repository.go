package workflow

import (
	"context"
	"errors"

	"github.com/frahmantamala/fleet-approval/internal/core/approval"
)

var ErrNotFound = errors.New("request not found")

// AwaitingFilter selects live requests routed to Role. Department narrows the
// result to requesters of that department when set. Unassigned also admits
// approved high cost requests still waiting for their vehicle.
type AwaitingFilter struct {
	Role       approval.Role
	Department string
	Unassigned bool
}

type Repository interface {
	Create(ctx context.Context, req Request) error
	Get(ctx context.Context, kind approval.Kind, id int64) (Request, error)
	// GetForUpdate locks the request row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, kind approval.Kind, id int64) (Request, error)
	// CompareAndSetState writes next (plus fields) only while the row still
	// holds prev, reporting whether the write happened.
	CompareAndSetState(ctx context.Context, kind approval.Kind, id int64, prev, next State, fields map[string]interface{}) (bool, error)
	Update(ctx context.Context, kind approval.Kind, id int64, fields map[string]interface{}) error
	ListByRequester(ctx context.Context, kind approval.Kind, requesterID int64) ([]Request, error)
	ListAwaiting(ctx context.Context, kind approval.Kind, filter AwaitingFilter) ([]Request, error)
	// ListDriving lists approved trips of kind on the vehicle driven by driverID.
	ListDriving(ctx context.Context, kind approval.Kind, driverID int64) ([]Request, error)

	HasApprovedMaintenance(ctx context.Context, vehicleID int64) (bool, error)
	LatestService(ctx context.Context, vehicleID int64) (*ServiceRequest, error)
	VehicleIDsUnderMaintenance(ctx context.Context) ([]int64, error)
}
