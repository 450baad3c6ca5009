package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/fleet-approval/internal/core/database"
	"github.com/frahmantamala/fleet-approval/internal/vehicle"
)

type VehicleRepository struct {
	db *gorm.DB
}

func NewVehicleRepository(db *gorm.DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

func (r *VehicleRepository) Create(ctx context.Context, v *vehicle.Vehicle) error {
	err := database.GetDB(ctx, r.db).Create(v).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return vehicle.ErrDuplicatePlate
	}
	return err
}

func (r *VehicleRepository) GetByID(ctx context.Context, id int64) (*vehicle.Vehicle, error) {
	var v vehicle.Vehicle
	if err := database.GetDB(ctx, r.db).First(&v, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, vehicle.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// GetForUpdate reads the row with SELECT ... FOR UPDATE; the lock is held
// until the surrounding transaction ends.
func (r *VehicleRepository) GetForUpdate(ctx context.Context, id int64) (*vehicle.Vehicle, error) {
	var v vehicle.Vehicle
	err := database.GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, vehicle.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (r *VehicleRepository) GetByDriver(ctx context.Context, driverID int64) (*vehicle.Vehicle, error) {
	var v vehicle.Vehicle
	if err := database.GetDB(ctx, r.db).Where("driver_id = ?", driverID).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, vehicle.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (r *VehicleRepository) List(ctx context.Context, filter vehicle.ListFilter) ([]*vehicle.Vehicle, error) {
	q := database.GetDB(ctx, r.db).Model(&vehicle.Vehicle{})
	if !filter.IncludeInactive {
		q = q.Where("is_active = ? AND is_deleted = ?", true, false)
	}
	if filter.AvailableOnly {
		q = q.Where("status = ?", vehicle.StatusAvailable)
	} else if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var vehicles []*vehicle.Vehicle
	err := q.Order("license_plate").Find(&vehicles).Error
	return vehicles, err
}

func (r *VehicleRepository) ListByIDs(ctx context.Context, ids []int64) ([]*vehicle.Vehicle, error) {
	var vehicles []*vehicle.Vehicle
	err := database.GetDB(ctx, r.db).Where("id IN ?", ids).Order("id").Find(&vehicles).Error
	return vehicles, err
}

func (r *VehicleRepository) TransitionStatus(ctx context.Context, id int64, from []vehicle.Status, to vehicle.Status) (bool, error) {
	res := database.GetDB(ctx, r.db).Model(&vehicle.Vehicle{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *VehicleRepository) Update(ctx context.Context, id int64, fields map[string]interface{}) error {
	res := database.GetDB(ctx, r.db).Model(&vehicle.Vehicle{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return vehicle.ErrNotFound
	}
	return nil
}

func (r *VehicleRepository) ListDueForService(ctx context.Context, intervalKm int64) ([]*vehicle.Vehicle, error) {
	var vehicles []*vehicle.Vehicle
	err := database.GetDB(ctx, r.db).
		Where("is_active = ? AND is_deleted = ?", true, false).
		Where("total_kilometers - last_service_kilometers >= ?", intervalKm).
		Order("license_plate").
		Find(&vehicles).Error
	return vehicles, err
}

func (r *VehicleRepository) HasKilometerLog(ctx context.Context, vehicleID int64, month string) (bool, error) {
	var count int64
	err := database.GetDB(ctx, r.db).Model(&vehicle.KilometerLog{}).
		Where("vehicle_id = ? AND month = ?", vehicleID, month).
		Count(&count).Error
	return count > 0, err
}

func (r *VehicleRepository) CreateKilometerLog(ctx context.Context, log *vehicle.KilometerLog) error {
	err := database.GetDB(ctx, r.db).Create(log).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return vehicle.ErrDuplicateLogRows
	}
	return err
}

func (r *VehicleRepository) ListKilometerLogsByRecorder(ctx context.Context, userID int64) ([]*vehicle.KilometerLog, error) {
	var logs []*vehicle.KilometerLog
	err := database.GetDB(ctx, r.db).
		Where("recorded_by = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Find(&logs).Error
	return logs, err
}

func (r *VehicleRepository) CreateCoupon(ctx context.Context, c *vehicle.CouponRequest) error {
	return database.GetDB(ctx, r.db).Create(c).Error
}

func (r *VehicleRepository) ListCoupons(ctx context.Context, requesterID *int64) ([]*vehicle.CouponRequest, error) {
	q := database.GetDB(ctx, r.db).Model(&vehicle.CouponRequest{})
	if requesterID != nil {
		q = q.Where("requester_id = ?", *requesterID)
	}
	var coupons []*vehicle.CouponRequest
	err := q.Order("created_at DESC").Order("id DESC").Find(&coupons).Error
	return coupons, err
}

var _ vehicle.Repository = (*VehicleRepository)(nil)
