package vehicle

import (
	"github.com/shopspring/decimal"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/core/common/validation"
)

type CreateVehicleDTO struct {
	LicensePlate   string          `json:"license_plate" validate:"required,max=32"`
	Model          string          `json:"model" validate:"required,max=100"`
	Capacity       int             `json:"capacity" validate:"required,min=1,max=100"`
	Source         Source          `json:"source" validate:"required,oneof=organization rented"`
	RentalCompany  string          `json:"rental_company" validate:"required_if=Source rented,max=100"`
	FuelType       FuelType        `json:"fuel_type" validate:"required,oneof=benzene naphtha"`
	FuelEfficiency decimal.Decimal `json:"fuel_efficiency" validate:"decimal_gt0"`
	DriverID       *int64          `json:"driver_id"`
	Department     string          `json:"department" validate:"max=100"`
}

func (d CreateVehicleDTO) Validate() error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	if d.FuelEfficiency.LessThan(decimal.RequireFromString("0.1")) {
		return apperrors.NewValidationFieldError("fuel_efficiency", "fuel_efficiency must be at least 0.1 km/L", apperrors.ErrCodeValidationFailed)
	}
	return nil
}

type RecordKilometersDTO struct {
	Month      string `json:"month" validate:"required,yearmonth"`
	Kilometers int64  `json:"kilometers" validate:"required,gt=0"`
}

func (d RecordKilometersDTO) Validate() error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	return nil
}

type ListFilter struct {
	Status          Status
	AvailableOnly   bool
	IncludeInactive bool
}

type CouponRequestDTO struct {
	VehicleID int64  `json:"vehicle_id" validate:"required,gt=0"`
	Month     string `json:"month" validate:"required,yearmonth"`
}

func (d CouponRequestDTO) Validate() error {
	return validation.Struct(d)
}
