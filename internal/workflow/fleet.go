package workflow

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/user"
	"github.com/frahmantamala/fleet-approval/internal/vehicle"
)

// MarkVehicleForMaintenance takes the vehicle out of rotation.
func (e *Engine) MarkVehicleForMaintenance(ctx context.Context, actor *user.User, vehicleID int64) (*vehicle.Vehicle, error) {
	if !actor.HasRole(approval.RoleTransportManager) {
		return nil, apperrors.ErrRoleNotPermitted
	}
	v, err := e.allocator.ToMaintenance(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	e.logger.Info("vehicle marked for maintenance", "vehicle_id", v.ID, "actor_id", actor.ID)
	return v, nil
}

// MarkVehicleForService moves a due vehicle to service and opens a service
// request at the GeneralSystem stage in the same transaction.
func (e *Engine) MarkVehicleForService(ctx context.Context, actor *user.User, vehicleID int64) (*ServiceRequest, error) {
	if !actor.HasRole(approval.RoleTransportManager) {
		return nil, apperrors.ErrRoleNotPermitted
	}

	var req *ServiceRequest
	err := e.tx.RunInTx(ctx, func(txCtx context.Context) error {
		v, err := e.allocator.ToService(txCtx, vehicleID)
		if err != nil {
			return err
		}
		req = &ServiceRequest{VehicleID: v.ID}
		return e.file(txCtx, actor, req)
	})
	if err != nil {
		e.observe(approval.KindService, approval.ActionCreate, outcomeOf(err))
		return nil, err
	}

	e.afterCreate(ctx, actor, req, e.activeHolders(ctx, approval.RoleGeneralSystem))
	return req, nil
}

// MarkAvailableAfterMaintenance returns a vehicle once a maintenance request for it has been approved.
func (e *Engine) MarkAvailableAfterMaintenance(ctx context.Context, actor *user.User, vehicleID int64) (*vehicle.Vehicle, error) {
	if !actor.HasRole(approval.RoleTransportManager) {
		return nil, apperrors.ErrRoleNotPermitted
	}

	var v *vehicle.Vehicle
	err := e.tx.RunInTx(ctx, func(txCtx context.Context) error {
		approved, err := e.repo.HasApprovedMaintenance(txCtx, vehicleID)
		if err != nil {
			return fmt.Errorf("failed to check maintenance requests: %w", err)
		}
		if !approved {
			return apperrors.ErrNoApprovedMaintenance
		}
		v, err = e.allocator.ReturnFrom(txCtx, vehicleID, vehicle.StatusMaintenance)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("vehicle available after maintenance", "vehicle_id", v.ID, "actor_id", actor.ID)
	return v, nil
}

// MarkAvailableAfterService returns a vehicle once its latest service request is finalized.
func (e *Engine) MarkAvailableAfterService(ctx context.Context, actor *user.User, vehicleID int64) (*vehicle.Vehicle, error) {
	if !actor.HasRole(approval.RoleTransportManager) {
		return nil, apperrors.ErrRoleNotPermitted
	}

	var v *vehicle.Vehicle
	err := e.tx.RunInTx(ctx, func(txCtx context.Context) error {
		latest, err := e.repo.LatestService(txCtx, vehicleID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return apperrors.ErrServiceStillOpen.WithMessage("vehicle has no service request")
			}
			return fmt.Errorf("failed to load latest service request: %w", err)
		}
		if !latest.Status.Terminal() {
			return apperrors.ErrServiceStillOpen.WithDetails(map[string]interface{}{
				"service_request_id": latest.ID,
				"status":             latest.Status,
			})
		}
		v, err = e.allocator.ReturnFrom(txCtx, vehicleID, vehicle.StatusService)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("vehicle available after service", "vehicle_id", v.ID, "actor_id", actor.ID)
	return v, nil
}

// ListUnderMaintenance lists vehicles with a live maintenance request.
func (e *Engine) ListUnderMaintenance(ctx context.Context, actor *user.User) ([]*vehicle.Vehicle, error) {
	if !actor.HasRole(approval.RoleTransportManager) {
		return nil, apperrors.ErrRoleNotPermitted
	}
	ids, err := e.repo.VehicleIDsUnderMaintenance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles under maintenance: %w", err)
	}
	return e.allocator.ListByIDs(ctx, ids)
}
