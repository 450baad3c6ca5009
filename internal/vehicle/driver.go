package vehicle

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/user"
)

// AssignedTo returns the vehicle the actor drives.
func (a *Allocator) AssignedTo(ctx context.Context, actor *user.User) (*Vehicle, error) {
	v, err := a.repo.GetByDriver(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.ErrNoVehicleAssigned
		}
		return nil, fmt.Errorf("failed to get assigned vehicle: %w", err)
	}
	return v, nil
}

// DueForService lists the active vehicles that reached the service interval.
func (a *Allocator) DueForService(ctx context.Context, actor *user.User) ([]*Vehicle, error) {
	if !actor.HasRole(approval.RoleTransportManager) {
		return nil, apperrors.ErrRoleNotPermitted.WithMessage("only transport managers can view this list")
	}
	vehicles, err := a.repo.ListDueForService(ctx, a.serviceIntervalKm)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles due for service: %w", err)
	}
	return vehicles, nil
}

// KilometerLogsRecordedBy lists the monthly entries the actor recorded, newest first.
func (a *Allocator) KilometerLogsRecordedBy(ctx context.Context, actor *user.User) ([]*KilometerLog, error) {
	logs, err := a.repo.ListKilometerLogsByRecorder(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list kilometer logs: %w", err)
	}
	return logs, nil
}

// RequestCoupon files the fuel coupon request for the driver's vehicle. Only
// the current month can be requested, and only once its kilometers are logged.
func (a *Allocator) RequestCoupon(ctx context.Context, actor *user.User, dto CouponRequestDTO) (*CouponRequest, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	v, err := a.Get(ctx, dto.VehicleID)
	if err != nil {
		return nil, err
	}
	if !v.DrivenBy(actor.ID) {
		return nil, apperrors.ErrNotVehicleDriver.WithMessage("you can only request a coupon for the vehicle assigned to you")
	}
	if current := a.now().Format("2006-01"); dto.Month != current {
		return nil, apperrors.NewValidationFieldError("month", "you can only request a coupon for the current month", apperrors.ErrCodeValidationFailed)
	}

	logged, err := a.repo.HasKilometerLog(ctx, v.ID, dto.Month)
	if err != nil {
		return nil, fmt.Errorf("failed to check kilometer log: %w", err)
	}
	if !logged {
		return nil, apperrors.ErrMissingKilometerLog
	}

	c := &CouponRequest{VehicleID: v.ID, Month: dto.Month, RequesterID: actor.ID}
	if err := a.repo.CreateCoupon(ctx, c); err != nil {
		a.logger.Error("failed to create coupon request", "error", err, "vehicle_id", v.ID, "month", dto.Month)
		return nil, fmt.Errorf("failed to create coupon request: %w", err)
	}

	a.logger.Info("coupon requested", "coupon_id", c.ID, "vehicle_id", v.ID, "month", dto.Month, "actor_id", actor.ID)
	return c, nil
}

// Coupons lists every coupon request for transport managers and the actor's
// own requests for everyone else.
func (a *Allocator) Coupons(ctx context.Context, actor *user.User) ([]*CouponRequest, error) {
	var requester *int64
	if !actor.HasRole(approval.RoleTransportManager) {
		requester = &actor.ID
	}
	coupons, err := a.repo.ListCoupons(ctx, requester)
	if err != nil {
		return nil, fmt.Errorf("failed to list coupon requests: %w", err)
	}
	return coupons, nil
}
