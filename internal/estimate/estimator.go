package estimate

import (
	"log/slog"

	"github.com/shopspring/decimal"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
)

// divisionPrecision bounds the intermediate fuel quotient before rounding.
const divisionPrecision = 16

var two = decimal.NewFromInt(2)

// Result holds the persisted estimate figures, already rounded to cents.
type Result struct {
	DistanceKm        decimal.Decimal `json:"estimated_distance_km"`
	FuelPricePerLiter decimal.Decimal `json:"fuel_price_per_liter"`
	FuelNeededLiters  decimal.Decimal `json:"fuel_needed_liters"`
	TotalCost         decimal.Decimal `json:"total_cost"`
}

// Estimator turns trip distance into fuel and cost figures.
type Estimator struct {
	logger *slog.Logger
}

func NewEstimator(logger *slog.Logger) *Estimator {
	return &Estimator{logger: logger}
}

// Estimate computes fuel needed and total cost for kind.
// HighCost is priced one way; Refueling covers the round trip.
func (e *Estimator) Estimate(kind approval.Kind, distanceKm, fuelEfficiency, pricePerLiter decimal.Decimal) (Result, error) {
	if kind != approval.KindHighCost && kind != approval.KindRefueling {
		return Result{}, apperrors.ErrUnknownKind.WithMessage("cost estimation applies to highcost and refueling requests only")
	}
	if !fuelEfficiency.IsPositive() {
		return Result{}, apperrors.ErrMissingFuelEfficiency
	}
	if !distanceKm.IsPositive() {
		return Result{}, apperrors.NewValidationFieldError("estimated_distance_km", "estimated_distance_km must be greater than 0", apperrors.ErrCodeValidationFailed)
	}
	if !pricePerLiter.IsPositive() {
		return Result{}, apperrors.NewValidationFieldError("fuel_price_per_liter", "fuel_price_per_liter must be greater than 0", apperrors.ErrCodeValidationFailed)
	}

	fuelNeeded := distanceKm.DivRound(fuelEfficiency, divisionPrecision)
	total := fuelNeeded.Mul(pricePerLiter).Round(2)
	if kind == approval.KindRefueling {
		total = total.Mul(two)
	}

	result := Result{
		DistanceKm:        distanceKm,
		FuelPricePerLiter: pricePerLiter,
		FuelNeededLiters:  fuelNeeded.Round(2),
		TotalCost:         total,
	}

	if e.logger != nil {
		e.logger.Debug("cost estimated",
			"kind", kind,
			"distance_km", distanceKm.String(),
			"fuel_efficiency", fuelEfficiency.String(),
			"fuel_needed_liters", result.FuelNeededLiters.String(),
			"total_cost", result.TotalCost.String())
	}

	return result, nil
}
