package vehicle

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusAvailable   Status = "available"
	StatusInUse       Status = "in_use"
	StatusService     Status = "service"
	StatusMaintenance Status = "maintenance"
)

type Source string

const (
	SourceOrganization Source = "organization"
	SourceRented       Source = "rented"
)

type FuelType string

const (
	FuelBenzene FuelType = "benzene"
	FuelNaphtha FuelType = "naphtha"
)

// Vehicle is the single exclusive resource handed out by approvals.
// Status changes go through the Allocator only.
type Vehicle struct {
	ID                    int64           `gorm:"primaryKey" json:"id"`
	LicensePlate          string          `gorm:"column:license_plate;uniqueIndex;not null" json:"license_plate"`
	Model                 string          `gorm:"column:model;not null" json:"model"`
	Capacity              int             `gorm:"column:capacity;not null" json:"capacity"`
	Source                Source          `gorm:"column:source;type:varchar(16);not null" json:"source"`
	RentalCompany         string          `gorm:"column:rental_company" json:"rental_company,omitempty"`
	FuelType              FuelType        `gorm:"column:fuel_type;type:varchar(16);not null" json:"fuel_type"`
	FuelEfficiency        decimal.Decimal `gorm:"column:fuel_efficiency;type:numeric(6,2);not null" json:"fuel_efficiency"`
	Status                Status          `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	IsActive              bool            `gorm:"column:is_active;not null" json:"is_active"`
	IsDeleted             bool            `gorm:"column:is_deleted;not null" json:"is_deleted"`
	TotalKilometers       int64           `gorm:"column:total_kilometers;not null" json:"total_kilometers"`
	LastServiceKilometers int64           `gorm:"column:last_service_kilometers;not null" json:"last_service_kilometers"`
	DriverID              *int64          `gorm:"column:driver_id;uniqueIndex" json:"driver_id,omitempty"`
	Department            string          `gorm:"column:department" json:"department,omitempty"`
	CreatedAt             time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Vehicle) TableName() string {
	return "vehicles"
}

// Assignable reports whether the vehicle can be handed to a request right now.
func (v *Vehicle) Assignable() bool {
	return v.Status == StatusAvailable && v.IsActive && !v.IsDeleted
}

func (v *Vehicle) HasDriver() bool {
	return v.DriverID != nil && *v.DriverID != 0
}

func (v *Vehicle) DrivenBy(userID int64) bool {
	return v.HasDriver() && *v.DriverID == userID
}

func (v *Vehicle) KilometersSinceService() int64 {
	return v.TotalKilometers - v.LastServiceKilometers
}

// ServiceDue reports whether the service interval has been reached.
func (v *Vehicle) ServiceDue(intervalKm int64) bool {
	return v.KilometersSinceService() >= intervalKm
}

// Label renders "model (plate)" for notification text.
func (v *Vehicle) Label() string {
	return v.Model + " (" + v.LicensePlate + ")"
}

// KilometerLog is the monthly odometer entry for one vehicle.
type KilometerLog struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	VehicleID  int64     `gorm:"column:vehicle_id;not null;uniqueIndex:idx_vehicle_month" json:"vehicle_id"`
	Month      string    `gorm:"column:month;type:char(7);not null;uniqueIndex:idx_vehicle_month" json:"month"`
	Kilometers int64     `gorm:"column:kilometers;not null" json:"kilometers"`
	RecordedBy int64     `gorm:"column:recorded_by;not null" json:"recorded_by"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
}

func (KilometerLog) TableName() string {
	return "monthly_kilometer_logs"
}

// CouponRequest asks for the monthly fuel coupon of a driver's vehicle.
type CouponRequest struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	VehicleID   int64     `gorm:"column:vehicle_id;not null;index" json:"vehicle_id"`
	Month       string    `gorm:"column:month;type:char(7);not null" json:"month"`
	RequesterID int64     `gorm:"column:requester_id;not null;index" json:"requester_id"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
}

func (CouponRequest) TableName() string {
	return "coupon_requests"
}
