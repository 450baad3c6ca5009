package workflow

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/core/common/validation"
	"github.com/frahmantamala/fleet-approval/internal/notification"
	"github.com/frahmantamala/fleet-approval/internal/user"
	"github.com/frahmantamala/fleet-approval/internal/vehicle"
)

var highCostRequesterRoles = []approval.Role{
	approval.RoleDepartmentManager,
	approval.RoleFinanceManager,
	approval.RoleTransportManager,
	approval.RoleCEO,
	approval.RoleGeneralSystem,
	approval.RoleBudgetManager,
}

// CreateTransport files a transport request with the requester's department manager.
func (e *Engine) CreateTransport(ctx context.Context, actor *user.User, dto CreateTransportDTO) (*TransportRequest, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorizedError("authentication required", apperrors.ErrCodeUnauthorizedAccess)
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	trip, err := dto.trip(e.now())
	if err != nil {
		return nil, err
	}
	if actor.Department == "" {
		return nil, apperrors.NewValidationError("requester has no department", apperrors.ErrCodeNoDepartment)
	}

	managers, err := e.directory.ActiveByRoleInDepartment(ctx, approval.RoleDepartmentManager, actor.Department)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve department manager: %w", err)
	}
	if len(managers) == 0 {
		return nil, apperrors.NewValidationError("no department manager", apperrors.ErrCodeNoApproverOnDuty)
	}

	passengers, err := e.passengers(ctx, dto.PassengerIDs)
	if err != nil {
		return nil, err
	}

	req := &TransportRequest{Trip: trip, Passengers: passengers}
	if err := e.file(ctx, actor, req); err != nil {
		return nil, err
	}
	e.afterCreate(ctx, actor, req, managers)
	return req, nil
}

func (e *Engine) CreateHighCost(ctx context.Context, actor *user.User, dto CreateHighCostDTO) (*HighCostRequest, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorizedError("authentication required", apperrors.ErrCodeUnauthorizedAccess)
	}
	if !actor.HasRole(highCostRequesterRoles...) {
		return nil, apperrors.ErrRoleNotPermitted
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	trip, err := dto.trip(e.now())
	if err != nil {
		return nil, err
	}

	approvers, err := e.approversOnDuty(ctx, approval.KindHighCost)
	if err != nil {
		return nil, err
	}
	passengers, err := e.passengers(ctx, dto.PassengerIDs)
	if err != nil {
		return nil, err
	}

	req := &HighCostRequest{Trip: trip, EmployeeListFile: dto.EmployeeListFile, Passengers: passengers}
	if err := e.file(ctx, actor, req); err != nil {
		return nil, err
	}
	e.afterCreate(ctx, actor, req, approvers)
	return req, nil
}

// CreateMaintenance files a maintenance request for the organization vehicle
// the requester drives.
func (e *Engine) CreateMaintenance(ctx context.Context, actor *user.User, dto CreateMaintenanceDTO) (*MaintenanceRequest, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorizedError("authentication required", apperrors.ErrCodeUnauthorizedAccess)
	}
	if actor.HasRole(approval.RoleEmployee, approval.RoleSystemAdmin) {
		return nil, apperrors.ErrRoleNotPermitted
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	now := e.now()
	date, err := time.ParseInLocation(dayLayout, dto.Date, now.Location())
	if err != nil {
		return nil, apperrors.NewValidationFieldError("date", "date must be formatted as 2006-01-02", apperrors.ErrCodeInvalidDate)
	}
	if err := validation.NotPastDay("date", date, now); err != nil {
		return nil, err
	}

	v, err := e.drivenVehicle(ctx, actor, dto.VehicleID)
	if err != nil {
		return nil, err
	}
	if v.Source != vehicle.SourceOrganization {
		return nil, apperrors.NewValidationFieldError("vehicle_id", "maintenance applies to organization vehicles only", apperrors.ErrCodeValidationFailed)
	}

	approvers, err := e.approversOnDuty(ctx, approval.KindMaintenance)
	if err != nil {
		return nil, err
	}

	req := &MaintenanceRequest{VehicleID: v.ID, Reason: dto.Reason, Date: date}
	if err := e.file(ctx, actor, req); err != nil {
		return nil, err
	}
	e.afterCreate(ctx, actor, req, approvers)
	return req, nil
}

func (e *Engine) CreateRefueling(ctx context.Context, actor *user.User, dto CreateRefuelingDTO) (*RefuelingRequest, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorizedError("authentication required", apperrors.ErrCodeUnauthorizedAccess)
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	v, err := e.drivenVehicle(ctx, actor, dto.VehicleID)
	if err != nil {
		return nil, err
	}
	approvers, err := e.approversOnDuty(ctx, approval.KindRefueling)
	if err != nil {
		return nil, err
	}

	req := &RefuelingRequest{VehicleID: v.ID, Destination: dto.Destination}
	if err := e.file(ctx, actor, req); err != nil {
		return nil, err
	}
	e.afterCreate(ctx, actor, req, approvers)
	return req, nil
}

// file stamps req as pending at the first approver of its route and stores it.
func (e *Engine) file(ctx context.Context, actor *user.User, req Request) error {
	first, ok := First(req.Kind())
	if !ok {
		return apperrors.ErrUnknownKind
	}
	h := req.Header()
	h.RequesterID = actor.ID
	h.setState(Pending(first))

	err := e.tx.RunInTx(ctx, func(txCtx context.Context) error {
		return e.repo.Create(txCtx, req)
	})
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", req.Kind(), err)
	}

	e.observe(req.Kind(), approval.ActionCreate, "ok")
	e.logger.Info("request created",
		"kind", req.Kind(),
		"request_id", h.ID,
		"requester_id", actor.ID,
		"approver_role", first)
	return nil
}

func (e *Engine) afterCreate(ctx context.Context, actor *user.User, req Request, approvers []*user.User) {
	e.record(ctx, actor, req, approval.ActionCreate, "")
	fields := e.fields(ctx, req, actor, nil)
	target := notification.ForRequest(req.Kind(), req.Header().ID)
	e.notifyMany(ctx, templatesByKind[req.Kind()].created, target, approvers, fields)
}

// approversOnDuty returns the active holders of the first role on kind's
// route, failing when nobody can pick the request up.
func (e *Engine) approversOnDuty(ctx context.Context, kind approval.Kind) ([]*user.User, error) {
	first, ok := First(kind)
	if !ok {
		return nil, apperrors.ErrUnknownKind
	}
	holders, err := e.directory.ActiveByRole(ctx, first)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", first, err)
	}
	if len(holders) == 0 {
		return nil, apperrors.NewValidationError("no active "+first.Label()+" available", apperrors.ErrCodeNoApproverOnDuty)
	}
	return holders, nil
}

func (e *Engine) drivenVehicle(ctx context.Context, actor *user.User, vehicleID int64) (*vehicle.Vehicle, error) {
	v, err := e.allocator.Get(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if !v.DrivenBy(actor.ID) {
		return nil, apperrors.NewForbiddenError("you are not the driver of this vehicle", apperrors.ErrCodeNotVehicleDriver)
	}
	return v, nil
}

func (e *Engine) passengers(ctx context.Context, ids []int64) ([]*user.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	unique := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	users, err := e.directory.ByIDs(ctx, unique)
	if err != nil {
		if _, ok := apperrors.IsAppError(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("failed to resolve passengers: %w", err)
	}
	if len(users) != len(unique) {
		return nil, apperrors.NewValidationFieldError("passenger_ids", "unknown passenger", apperrors.ErrCodeValidationFailed)
	}
	return users, nil
}
