package vehicle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/core/database"
	"github.com/frahmantamala/fleet-approval/internal/notification"
	"github.com/frahmantamala/fleet-approval/internal/user"
)

var (
	ErrNotFound         = errors.New("vehicle not found")
	ErrDuplicatePlate   = errors.New("license plate already exists")
	ErrDuplicateLogRows = errors.New("kilometer log already exists")
)

// DefaultServiceIntervalKm is the distance between scheduled services.
const DefaultServiceIntervalKm int64 = 5000

type Repository interface {
	Create(ctx context.Context, v *Vehicle) error
	GetByID(ctx context.Context, id int64) (*Vehicle, error)
	GetForUpdate(ctx context.Context, id int64) (*Vehicle, error)
	GetByDriver(ctx context.Context, driverID int64) (*Vehicle, error)
	List(ctx context.Context, filter ListFilter) ([]*Vehicle, error)
	ListByIDs(ctx context.Context, ids []int64) ([]*Vehicle, error)
	// TransitionStatus moves the vehicle to status only when its current
	// status is one of from, reporting whether a row changed.
	TransitionStatus(ctx context.Context, id int64, from []Status, to Status) (bool, error)
	Update(ctx context.Context, id int64, fields map[string]interface{}) error
	// ListDueForService returns active vehicles at or past intervalKm since
	// their last service.
	ListDueForService(ctx context.Context, intervalKm int64) ([]*Vehicle, error)
	HasKilometerLog(ctx context.Context, vehicleID int64, month string) (bool, error)
	CreateKilometerLog(ctx context.Context, log *KilometerLog) error
	ListKilometerLogsByRecorder(ctx context.Context, userID int64) ([]*KilometerLog, error)
	CreateCoupon(ctx context.Context, c *CouponRequest) error
	// ListCoupons lists coupon requests newest first, narrowed to one
	// requester when requesterID is set.
	ListCoupons(ctx context.Context, requesterID *int64) ([]*CouponRequest, error)
}

// Directory resolves actors for authorization and advisory fan-out.
type Directory interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
	ActiveByRole(ctx context.Context, role approval.Role) ([]*user.User, error)
}

type AdvisoryDispatcher interface {
	DispatchMany(ctx context.Context, key string, target notification.Target, recipients []*user.User, fields notification.Fields) ([]*notification.Notification, error)
}

type AssignOptions struct {
	RequireDriver bool
}

// Allocator owns every vehicle status transition.
type Allocator struct {
	repo              Repository
	directory         Directory
	advisories        AdvisoryDispatcher
	tx                database.TransactionManager
	serviceIntervalKm int64
	now               func() time.Time
	logger            *slog.Logger
}

type Option func(*Allocator)

// WithClock overrides the clock used to decide the current coupon month.
func WithClock(now func() time.Time) Option {
	return func(a *Allocator) { a.now = now }
}

func NewAllocator(repo Repository, directory Directory, advisories AdvisoryDispatcher, tx database.TransactionManager, serviceIntervalKm int64, logger *slog.Logger, opts ...Option) *Allocator {
	if serviceIntervalKm <= 0 {
		serviceIntervalKm = DefaultServiceIntervalKm
	}
	a := &Allocator{
		repo:              repo,
		directory:         directory,
		advisories:        advisories,
		tx:                tx,
		serviceIntervalKm: serviceIntervalKm,
		now:               time.Now,
		logger:            logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Allocator) ServiceIntervalKm() int64 {
	return a.serviceIntervalKm
}

// Assign marks an available vehicle in_use. It must run inside the caller's
// transaction so the row lock lasts until the linked request is written.
func (a *Allocator) Assign(ctx context.Context, vehicleID int64, opts AssignOptions) (*Vehicle, error) {
	if !database.InTx(ctx) {
		return nil, apperrors.NewInternalError("vehicle assignment requires a transaction", nil)
	}

	v, err := a.lock(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if !v.Assignable() {
		a.logger.Warn("vehicle not assignable", "vehicle_id", v.ID, "status", v.Status, "is_active", v.IsActive)
		return nil, apperrors.ErrVehicleUnavailable
	}
	if opts.RequireDriver && !v.HasDriver() {
		return nil, apperrors.ErrNoDriverAssigned
	}

	ok, err := a.repo.TransitionStatus(ctx, v.ID, []Status{StatusAvailable}, StatusInUse)
	if err != nil {
		return nil, fmt.Errorf("failed to mark vehicle in use: %w", err)
	}
	if !ok {
		return nil, apperrors.ErrVehicleUnavailable
	}
	v.Status = StatusInUse

	a.logger.Info("vehicle assigned", "vehicle_id", v.ID, "license_plate", v.LicensePlate)
	return v, nil
}

// Release frees a vehicle at the end of its trip. Only in_use vehicles move.
func (a *Allocator) Release(ctx context.Context, vehicleID int64) (*Vehicle, error) {
	return a.ReturnFrom(ctx, vehicleID, StatusInUse)
}

// ReturnFrom moves a vehicle back to available, but only out of from. A
// vehicle on a live trip is never freed by a maintenance or service return.
func (a *Allocator) ReturnFrom(ctx context.Context, vehicleID int64, from Status) (*Vehicle, error) {
	var v *Vehicle
	err := a.tx.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := a.lock(txCtx, vehicleID)
		if err != nil {
			return err
		}
		if locked.Status != from {
			if locked.Status == StatusInUse {
				return apperrors.ErrVehicleInUse
			}
			return apperrors.ErrVehicleStatusMismatch.WithDetails(map[string]interface{}{
				"expected_status": from,
				"current_status":  locked.Status,
			})
		}
		ok, err := a.repo.TransitionStatus(txCtx, locked.ID, []Status{from}, StatusAvailable)
		if err != nil {
			return fmt.Errorf("failed to release vehicle: %w", err)
		}
		if !ok {
			return apperrors.ErrVehicleStatusMismatch
		}
		locked.Status = StatusAvailable
		v = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("vehicle released", "vehicle_id", v.ID, "from_status", from)
	return v, nil
}

func (a *Allocator) ToMaintenance(ctx context.Context, vehicleID int64) (*Vehicle, error) {
	var v *Vehicle
	err := a.tx.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := a.lock(txCtx, vehicleID)
		if err != nil {
			return err
		}
		if locked.Status == StatusInUse {
			return apperrors.ErrVehicleInUse
		}
		if err := a.repo.Update(txCtx, locked.ID, map[string]interface{}{"status": StatusMaintenance}); err != nil {
			return fmt.Errorf("failed to move vehicle to maintenance: %w", err)
		}
		locked.Status = StatusMaintenance
		v = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("vehicle moved to maintenance", "vehicle_id", v.ID)
	return v, nil
}

// ToService moves a due vehicle to service and restarts its service odometer.
func (a *Allocator) ToService(ctx context.Context, vehicleID int64) (*Vehicle, error) {
	var v *Vehicle
	err := a.tx.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := a.lock(txCtx, vehicleID)
		if err != nil {
			return err
		}
		if locked.Status == StatusInUse {
			return apperrors.ErrVehicleInUse
		}
		if !locked.ServiceDue(a.serviceIntervalKm) {
			return apperrors.ErrServiceNotDue.WithDetails(map[string]interface{}{
				"kilometers_since_service": locked.KilometersSinceService(),
				"service_interval_km":      a.serviceIntervalKm,
			})
		}
		err = a.repo.Update(txCtx, locked.ID, map[string]interface{}{
			"status":                  StatusService,
			"last_service_kilometers": locked.TotalKilometers,
		})
		if err != nil {
			return fmt.Errorf("failed to move vehicle to service: %w", err)
		}
		locked.Status = StatusService
		locked.LastServiceKilometers = locked.TotalKilometers
		v = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("vehicle moved to service", "vehicle_id", v.ID, "total_kilometers", v.TotalKilometers)
	return v, nil
}

func (a *Allocator) Create(ctx context.Context, actor *user.User, dto CreateVehicleDTO) (*Vehicle, error) {
	if !actor.HasRole(approval.RoleTransportManager) {
		return nil, apperrors.ErrRoleNotPermitted
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if dto.DriverID != nil {
		driver, err := a.directory.GetByID(ctx, *dto.DriverID)
		if err != nil {
			return nil, err
		}
		if !driver.HasRole(approval.RoleDriver) {
			return nil, apperrors.NewValidationFieldError("driver_id", "assigned user is not a driver", apperrors.ErrCodeValidationFailed)
		}
		if _, err := a.repo.GetByDriver(ctx, driver.ID); err == nil {
			return nil, apperrors.NewConflictError("driver already has a vehicle", apperrors.ErrCodeVehicleAlreadyAssigned)
		} else if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("failed to check driver vehicle: %w", err)
		}
	}

	v := &Vehicle{
		LicensePlate:   dto.LicensePlate,
		Model:          dto.Model,
		Capacity:       dto.Capacity,
		Source:         dto.Source,
		RentalCompany:  dto.RentalCompany,
		FuelType:       dto.FuelType,
		FuelEfficiency: dto.FuelEfficiency,
		Status:         StatusAvailable,
		IsActive:       true,
		DriverID:       dto.DriverID,
		Department:     dto.Department,
	}
	if err := a.repo.Create(ctx, v); err != nil {
		if errors.Is(err, ErrDuplicatePlate) {
			return nil, apperrors.ErrDuplicateLicensePlate
		}
		a.logger.Error("failed to create vehicle", "error", err, "license_plate", dto.LicensePlate)
		return nil, fmt.Errorf("failed to create vehicle: %w", err)
	}

	a.logger.Info("vehicle created", "vehicle_id", v.ID, "license_plate", v.LicensePlate, "actor_id", actor.ID)
	return v, nil
}

func (a *Allocator) Get(ctx context.Context, vehicleID int64) (*Vehicle, error) {
	v, err := a.repo.GetByID(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.ErrVehicleNotFound
		}
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return v, nil
}

func (a *Allocator) List(ctx context.Context, filter ListFilter) ([]*Vehicle, error) {
	vehicles, err := a.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	return vehicles, nil
}

func (a *Allocator) ListByIDs(ctx context.Context, ids []int64) ([]*Vehicle, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	vehicles, err := a.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	return vehicles, nil
}

// Activate restores a soft-deleted vehicle.
func (a *Allocator) Activate(ctx context.Context, actor *user.User, vehicleID int64) (*Vehicle, error) {
	return a.setActive(ctx, actor, vehicleID, true)
}

// Deactivate soft-deletes a vehicle; status is left untouched.
func (a *Allocator) Deactivate(ctx context.Context, actor *user.User, vehicleID int64) (*Vehicle, error) {
	return a.setActive(ctx, actor, vehicleID, false)
}

func (a *Allocator) setActive(ctx context.Context, actor *user.User, vehicleID int64, active bool) (*Vehicle, error) {
	if !actor.HasRole(approval.RoleTransportManager) {
		return nil, apperrors.ErrRoleNotPermitted
	}

	var v *Vehicle
	err := a.tx.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := a.lock(txCtx, vehicleID)
		if err != nil {
			return err
		}
		if !active && locked.Status == StatusInUse {
			return apperrors.ErrVehicleInUse
		}
		err = a.repo.Update(txCtx, locked.ID, map[string]interface{}{
			"is_active":  active,
			"is_deleted": !active,
		})
		if err != nil {
			return fmt.Errorf("failed to update vehicle activity: %w", err)
		}
		locked.IsActive = active
		locked.IsDeleted = !active
		v = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("vehicle activity changed", "vehicle_id", v.ID, "is_active", active, "actor_id", actor.ID)
	return v, nil
}

// RecordMonthlyKilometers logs one month of driving and raises a service_due
// advisory once the service interval is reached.
func (a *Allocator) RecordMonthlyKilometers(ctx context.Context, actor *user.User, vehicleID int64, dto RecordKilometersDTO) (*Vehicle, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	var v *Vehicle
	err := a.tx.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := a.lock(txCtx, vehicleID)
		if err != nil {
			return err
		}
		if !locked.HasDriver() {
			return apperrors.ErrNoDriverAssigned
		}
		if !actor.HasRole(approval.RoleTransportManager) && !locked.DrivenBy(actor.ID) {
			return apperrors.ErrRoleNotPermitted
		}

		logged, err := a.repo.HasKilometerLog(txCtx, locked.ID, dto.Month)
		if err != nil {
			return fmt.Errorf("failed to check kilometer log: %w", err)
		}
		if logged {
			return apperrors.ErrKilometersLogged
		}

		entry := &KilometerLog{
			VehicleID:  locked.ID,
			Month:      dto.Month,
			Kilometers: dto.Kilometers,
			RecordedBy: actor.ID,
		}
		if err := a.repo.CreateKilometerLog(txCtx, entry); err != nil {
			if errors.Is(err, ErrDuplicateLogRows) {
				return apperrors.ErrKilometersLogged
			}
			return fmt.Errorf("failed to record kilometers: %w", err)
		}

		total := locked.TotalKilometers + dto.Kilometers
		if err := a.repo.Update(txCtx, locked.ID, map[string]interface{}{"total_kilometers": total}); err != nil {
			return fmt.Errorf("failed to update odometer: %w", err)
		}
		locked.TotalKilometers = total
		v = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("monthly kilometers recorded",
		"vehicle_id", v.ID,
		"month", dto.Month,
		"kilometers", dto.Kilometers,
		"total_kilometers", v.TotalKilometers)

	if v.ServiceDue(a.serviceIntervalKm) {
		a.adviseServiceDue(ctx, v)
	}
	return v, nil
}

// adviseServiceDue is best effort; the odometer update has already committed.
func (a *Allocator) adviseServiceDue(ctx context.Context, v *Vehicle) {
	var recipients []*user.User
	for _, role := range []approval.Role{approval.RoleTransportManager, approval.RoleGeneralSystem} {
		users, err := a.directory.ActiveByRole(ctx, role)
		if err != nil {
			a.logger.Error("failed to resolve service advisory recipients", "role", role, "error", err)
			continue
		}
		recipients = append(recipients, users...)
	}
	if v.HasDriver() {
		driver, err := a.directory.GetByID(ctx, *v.DriverID)
		if err != nil {
			a.logger.Warn("failed to resolve vehicle driver", "vehicle_id", v.ID, "error", err)
		} else if driver.IsActive {
			recipients = append(recipients, driver)
		}
	}

	fields := notification.Fields{
		"vehicle_model": v.Model,
		"license_plate": v.LicensePlate,
		"kilometers":    strconv.FormatInt(v.KilometersSinceService(), 10),
	}
	if _, err := a.advisories.DispatchMany(ctx, notification.TemplateServiceDue, notification.ForVehicle(v.ID), recipients, fields); err != nil {
		a.logger.Error("failed to dispatch service advisory", "vehicle_id", v.ID, "error", err)
	}
}

func (a *Allocator) lock(ctx context.Context, vehicleID int64) (*Vehicle, error) {
	v, err := a.repo.GetForUpdate(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.ErrVehicleNotFound
		}
		return nil, fmt.Errorf("failed to lock vehicle: %w", err)
	}
	return v, nil
}
