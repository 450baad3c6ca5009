package workflow

import (
	"context"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/estimate"
	"github.com/frahmantamala/fleet-approval/internal/notification"
	"github.com/frahmantamala/fleet-approval/internal/user"
	"github.com/frahmantamala/fleet-approval/internal/vehicle"
)

// Estimate records the TransportManager's distance and fuel price on a high
// cost or refueling request while it sits at the TransportManager stage.
func (e *Engine) Estimate(ctx context.Context, actor *user.User, kind approval.Kind, id int64, dto EstimateDTO) (Request, error) {
	if !actor.HasRole(approval.RoleTransportManager) {
		return nil, apperrors.ErrRoleNotPermitted
	}
	if kind != approval.KindHighCost && kind != approval.KindRefueling {
		return nil, apperrors.ErrUnknownKind.WithMessage("estimates apply to highcost and refueling requests only")
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if kind == approval.KindHighCost && dto.EstimatedVehicleID <= 0 {
		return nil, apperrors.NewValidationFieldError("estimated_vehicle_id", "estimated_vehicle_id is required", apperrors.ErrCodeValidationFailed)
	}

	var (
		req    Request
		result estimate.Result
	)
	err := e.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		req, err = e.lock(txCtx, kind, id)
		if err != nil {
			return err
		}
		if err := requireStage(req, approval.RoleTransportManager); err != nil {
			return err
		}

		var v *vehicle.Vehicle
		fields := map[string]interface{}{}
		switch r := req.(type) {
		case *HighCostRequest:
			v, err = e.allocator.Get(txCtx, dto.EstimatedVehicleID)
			if err != nil {
				return err
			}
			if !v.Assignable() {
				return apperrors.ErrVehicleUnavailable
			}
			fields["estimated_vehicle_id"] = v.ID
			r.EstimatedVehicleID = &v.ID
		case *RefuelingRequest:
			v, err = e.allocator.Get(txCtx, r.VehicleID)
			if err != nil {
				return err
			}
		}

		result, err = e.estimator.Estimate(kind, dto.EstimatedDistanceKm, v.FuelEfficiency, dto.FuelPricePerLiter)
		if err != nil {
			return err
		}
		fields["estimated_distance_km"] = result.DistanceKm
		fields["fuel_price_per_liter"] = result.FuelPricePerLiter
		fields["fuel_needed_liters"] = result.FuelNeededLiters
		fields["total_cost"] = result.TotalCost
		if err := e.repo.Update(txCtx, kind, id, fields); err != nil {
			return err
		}
		estimateOf(req).apply(result)
		return nil
	})
	if err != nil {
		e.observe(kind, approval.ActionEstimate, outcomeOf(err))
		return nil, err
	}

	e.observe(kind, approval.ActionEstimate, "ok")
	e.logger.Info("request estimated", "kind", kind, "request_id", id, "total_cost", result.TotalCost.String())
	e.record(ctx, actor, req, approval.ActionEstimate, "Total cost: "+result.TotalCost.StringFixed(2))
	return req, nil
}

// SubmitArtifacts attaches the GeneralSystem documents to a maintenance or
// service request waiting at the GeneralSystem stage.
func (e *Engine) SubmitArtifacts(ctx context.Context, actor *user.User, kind approval.Kind, id int64, dto ArtifactsDTO) (Request, error) {
	if !actor.HasRole(approval.RoleGeneralSystem) {
		return nil, apperrors.ErrRoleNotPermitted
	}
	if kind != approval.KindMaintenance && kind != approval.KindService {
		return nil, apperrors.ErrUnknownKind.WithMessage("artifacts apply to maintenance and service requests only")
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	var req Request
	err := e.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		req, err = e.lock(txCtx, kind, id)
		if err != nil {
			return err
		}
		if err := requireStage(req, approval.RoleGeneralSystem); err != nil {
			return err
		}

		var fields map[string]interface{}
		switch r := req.(type) {
		case *MaintenanceRequest:
			fields = map[string]interface{}{
				"maintenance_letter":     dto.Letter,
				"receipt_file":           dto.ReceiptFile,
				"maintenance_total_cost": dto.TotalCost,
			}
			r.MaintenanceLetter = dto.Letter
			r.ReceiptFile = dto.ReceiptFile
			r.MaintenanceTotalCost.Decimal, r.MaintenanceTotalCost.Valid = dto.TotalCost, true
		case *ServiceRequest:
			fields = map[string]interface{}{
				"service_letter":     dto.Letter,
				"receipt_file":       dto.ReceiptFile,
				"service_total_cost": dto.TotalCost,
			}
			r.ServiceLetter = dto.Letter
			r.ReceiptFile = dto.ReceiptFile
			r.ServiceTotalCost.Decimal, r.ServiceTotalCost.Valid = dto.TotalCost, true
		}
		return e.repo.Update(txCtx, kind, id, fields)
	})
	if err != nil {
		e.observe(kind, approval.ActionSubmitArtifacts, outcomeOf(err))
		return nil, err
	}

	e.observe(kind, approval.ActionSubmitArtifacts, "ok")
	e.logger.Info("artifacts submitted", "kind", kind, "request_id", id, "actor_id", actor.ID)
	e.record(ctx, actor, req, approval.ActionSubmitArtifacts, "Total cost: "+dto.TotalCost.StringFixed(2))
	return req, nil
}

// AssignHighCostVehicle hands the estimated vehicle to an approved high cost request.
func (e *Engine) AssignHighCostVehicle(ctx context.Context, actor *user.User, id int64) (*HighCostRequest, error) {
	if !actor.HasRole(approval.RoleTransportManager) {
		return nil, apperrors.ErrRoleNotPermitted
	}

	var (
		req      *HighCostRequest
		assigned *vehicle.Vehicle
	)
	err := e.tx.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := e.lock(txCtx, approval.KindHighCost, id)
		if err != nil {
			return err
		}
		req = locked.(*HighCostRequest)
		if req.Status != approval.StatusApproved {
			return apperrors.ErrStageMismatch.WithMessage("vehicle can only be assigned to an approved request")
		}
		if req.VehicleAssigned {
			return apperrors.ErrVehicleAlreadyAssigned
		}
		if req.EstimatedVehicleID == nil {
			return apperrors.NewMissingPreconditionError("request has no estimated vehicle", apperrors.ErrCodeMissingEstimate, "estimated_vehicle_id")
		}

		assigned, err = e.allocator.Assign(txCtx, *req.EstimatedVehicleID, vehicle.AssignOptions{})
		if err != nil {
			return err
		}
		if err := e.repo.Update(txCtx, approval.KindHighCost, id, map[string]interface{}{
			"vehicle_id":       assigned.ID,
			"vehicle_assigned": true,
		}); err != nil {
			return err
		}
		req.VehicleID = &assigned.ID
		req.VehicleAssigned = true
		return nil
	})
	if err != nil {
		e.observe(approval.KindHighCost, approval.ActionAssignVehicle, outcomeOf(err))
		return nil, err
	}

	e.observe(approval.KindHighCost, approval.ActionAssignVehicle, "ok")
	e.logger.Info("highcost vehicle assigned", "request_id", id, "vehicle_id", assigned.ID, "actor_id", actor.ID)
	e.record(ctx, actor, req, approval.ActionAssignVehicle, "Vehicle: "+assigned.LicensePlate)

	requester := e.requesterOf(ctx, req)
	fields := e.fields(ctx, req, requester, assigned)
	target := notification.ForRequest(approval.KindHighCost, id)
	if driver := e.driverOf(ctx, assigned); driver != nil {
		e.notify(ctx, notification.TemplateAssigned, target, driver, fields)
	}
	e.notify(ctx, notification.TemplateHighCostVehicleAssigned, target, requester, fields)
	return req, nil
}

// CompleteTrip lets the assigned driver close a trip and free the vehicle. A
// transport manager stands in for vehicles without a driver.
func (e *Engine) CompleteTrip(ctx context.Context, actor *user.User, kind approval.Kind, id int64) (Request, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorizedError("authentication required", apperrors.ErrCodeUnauthorizedAccess)
	}
	if !kind.HasTrip() {
		return nil, apperrors.ErrUnknownKind.WithMessage("only transport and highcost trips can be completed")
	}

	var (
		req      Request
		released *vehicle.Vehicle
	)
	err := e.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		req, err = e.lock(txCtx, kind, id)
		if err != nil {
			return err
		}
		if req.Header().Status != approval.StatusApproved {
			return apperrors.ErrStageMismatch.WithMessage("only approved trips can be completed")
		}
		trip := tripOf(req)
		if trip.TripCompleted {
			return apperrors.ErrTripAlreadyCompleted
		}
		vehicleID, ok := vehicleOf(req)
		if !ok {
			return apperrors.NewMissingPreconditionError("no vehicle assigned to this trip", apperrors.ErrCodeNoDriverAssigned, "vehicle_id")
		}

		v, err := e.allocator.Get(txCtx, vehicleID)
		if err != nil {
			return err
		}
		if !canComplete(actor, v) {
			return apperrors.ErrNotVehicleDriver
		}
		released, err = e.allocator.Release(txCtx, vehicleID)
		if err != nil {
			return err
		}
		if err := e.repo.Update(txCtx, kind, id, map[string]interface{}{"trip_completed": true}); err != nil {
			return err
		}
		trip.TripCompleted = true
		return nil
	})
	if err != nil {
		e.observe(kind, approval.ActionCompleteTrip, outcomeOf(err))
		return nil, err
	}

	e.observe(kind, approval.ActionCompleteTrip, "ok")
	e.logger.Info("trip completed", "kind", kind, "request_id", id, "vehicle_id", released.ID, "driver_id", actor.ID)
	e.record(ctx, actor, req, approval.ActionCompleteTrip, "Vehicle: "+released.LicensePlate)

	fields := e.fields(ctx, req, e.requesterOf(ctx, req), released)
	fields["completer"] = actor.DisplayName()
	e.notifyRole(ctx, notification.TemplateTripCompleted, notification.ForRequest(kind, id), approval.RoleTransportManager, fields)
	return req, nil
}

// canComplete admits the vehicle's driver, or a transport manager when the
// vehicle has no driver to close the trip.
func canComplete(actor *user.User, v *vehicle.Vehicle) bool {
	if v.DrivenBy(actor.ID) {
		return true
	}
	return !v.HasDriver() && actor.HasRole(approval.RoleTransportManager)
}

// requireStage fails unless req is live and waiting on role.
func requireStage(req Request, role approval.Role) error {
	current, ok := req.Header().State().CurrentRole()
	if !ok {
		return apperrors.ErrRequestFinalized
	}
	if current != role {
		return apperrors.ErrStageMismatch.WithDetails(map[string]interface{}{
			"current_approver_role": current,
		})
	}
	return nil
}

func (e *Engine) requesterOf(ctx context.Context, req Request) *user.User {
	u, err := e.directory.GetByID(ctx, req.Header().RequesterID)
	if err != nil {
		e.logger.Warn("failed to resolve requester", "request_id", req.Header().ID, "error", err)
		return nil
	}
	return u
}

func tripOf(req Request) *Trip {
	switch r := req.(type) {
	case *TransportRequest:
		return &r.Trip
	case *HighCostRequest:
		return &r.Trip
	}
	return &Trip{}
}

func estimateOf(req Request) *Estimate {
	switch r := req.(type) {
	case *HighCostRequest:
		return &r.Estimate
	case *RefuelingRequest:
		return &r.Estimate
	}
	return &Estimate{}
}

func (es *Estimate) apply(r estimate.Result) {
	es.EstimatedDistanceKm.Decimal, es.EstimatedDistanceKm.Valid = r.DistanceKm, true
	es.FuelPricePerLiter.Decimal, es.FuelPricePerLiter.Valid = r.FuelPricePerLiter, true
	es.FuelNeededLiters.Decimal, es.FuelNeededLiters.Valid = r.FuelNeededLiters, true
	es.TotalCost.Decimal, es.TotalCost.Valid = r.TotalCost, true
}
