package workflow

import (
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/core/common/validation"
)

type TripDTO struct {
	StartDay     string  `json:"start_day" validate:"required,datetime=2006-01-02"`
	ReturnDay    string  `json:"return_day" validate:"required,datetime=2006-01-02"`
	StartTime    string  `json:"start_time" validate:"omitempty,datetime=15:04"`
	Destination  string  `json:"destination" validate:"required,max=255"`
	Reason       string  `json:"reason" validate:"required,max=2000"`
	PassengerIDs []int64 `json:"passenger_ids" validate:"omitempty,max=50,dive,gt=0"`
}

// trip validates the itinerary against today and converts it.
func (d TripDTO) trip(now time.Time) (Trip, error) {
	start, err := time.ParseInLocation(dayLayout, d.StartDay, now.Location())
	if err != nil {
		return Trip{}, apperrors.NewValidationFieldError("start_day", "start_day must be formatted as 2006-01-02", apperrors.ErrCodeInvalidDate)
	}
	ret, err := time.ParseInLocation(dayLayout, d.ReturnDay, now.Location())
	if err != nil {
		return Trip{}, apperrors.NewValidationFieldError("return_day", "return_day must be formatted as 2006-01-02", apperrors.ErrCodeInvalidDate)
	}
	if err := validation.NotPastDay("start_day", start, now); err != nil {
		return Trip{}, err
	}
	if err := validation.NotBefore("return_day", ret, start); err != nil {
		return Trip{}, err
	}
	return Trip{
		StartDay:    start,
		ReturnDay:   ret,
		StartTime:   d.StartTime,
		Destination: d.Destination,
		Reason:      d.Reason,
	}, nil
}

type CreateTransportDTO struct {
	TripDTO
}

func (d CreateTransportDTO) Validate() error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	return nil
}

type CreateHighCostDTO struct {
	TripDTO
	EmployeeListFile string `json:"employee_list_file" validate:"max=255"`
}

func (d CreateHighCostDTO) Validate() error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	return nil
}

type CreateMaintenanceDTO struct {
	VehicleID int64  `json:"vehicle_id" validate:"required,gt=0"`
	Reason    string `json:"reason" validate:"required,max=2000"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
}

func (d CreateMaintenanceDTO) Validate() error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	return nil
}

type CreateRefuelingDTO struct {
	VehicleID   int64  `json:"vehicle_id" validate:"required,gt=0"`
	Destination string `json:"destination" validate:"required,max=255"`
}

func (d CreateRefuelingDTO) Validate() error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	return nil
}

// EstimateDTO carries the TransportManager's trip figures. EstimatedVehicleID
// is read for high cost requests only.
type EstimateDTO struct {
	EstimatedDistanceKm decimal.Decimal `json:"estimated_distance_km" validate:"decimal_gt0"`
	FuelPricePerLiter   decimal.Decimal `json:"fuel_price_per_liter" validate:"decimal_gt0"`
	EstimatedVehicleID  int64           `json:"estimated_vehicle_id" validate:"omitempty,gt=0"`
}

func (d EstimateDTO) Validate() error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	return nil
}

// ArtifactsDTO carries the GeneralSystem documents for maintenance and
// service requests.
type ArtifactsDTO struct {
	Letter      string          `json:"letter" validate:"required,max=255"`
	ReceiptFile string          `json:"receipt_file" validate:"required,max=255"`
	TotalCost   decimal.Decimal `json:"total_cost" validate:"decimal_gt0"`
}

func (d ArtifactsDTO) Validate() error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	return nil
}
