package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		// decimals validate as their string form so field tags reach them
		validate.RegisterCustomTypeFunc(func(v reflect.Value) interface{} {
			if d, ok := v.Interface().(decimal.Decimal); ok {
				return d.String()
			}
			return nil
		}, decimal.Decimal{})
		_ = validate.RegisterValidation("decimal_gt0", func(fl validator.FieldLevel) bool {
			d, err := decimal.NewFromString(fl.Field().String())
			return err == nil && d.IsPositive()
		})
		_ = validate.RegisterValidation("yearmonth", func(fl validator.FieldLevel) bool {
			_, err := time.Parse("2006-01", fl.Field().String())
			return err == nil
		})
	})
	return validate
}

// Struct runs tag validation and converts failures to a VALIDATION_ERROR
// carrying one entry per offending field.
func Struct(v interface{}) *apperrors.AppError {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewValidationError(err.Error(), apperrors.ErrCodeValidationFailed)
	}

	details := make([]apperrors.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, apperrors.ValidationError{
			Field:   fe.Field(),
			Message: messageFor(fe),
			Code:    string(apperrors.ErrCodeValidationFailed),
		})
	}

	return apperrors.NewValidationError("Validation failed", apperrors.ErrCodeValidationFailed).
		WithDetails(apperrors.ValidationErrors{Errors: details})
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must not exceed %s", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "decimal_gt0":
		return fmt.Sprintf("%s must be a positive number", fe.Field())
	case "yearmonth":
		return fmt.Sprintf("%s must be formatted as YYYY-MM", fe.Field())
	case "datetime":
		return fmt.Sprintf("%s must be formatted as %s", fe.Field(), fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", fe.Field(), fe.Param())
	case "numeric":
		return fmt.Sprintf("%s must contain digits only", fe.Field())
	case "required_if":
		return fmt.Sprintf("%s is required when %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

// NotPastDay fails when day falls before today in the local calendar.
func NotPastDay(field string, day time.Time, now time.Time) *apperrors.AppError {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, now.Location())
	if d.Before(today) {
		return apperrors.NewValidationFieldError(field, fmt.Sprintf("%s cannot be in the past", field), apperrors.ErrCodeInvalidDate)
	}
	return nil
}

// NotBefore fails when later precedes earlier.
func NotBefore(field string, later, earlier time.Time) *apperrors.AppError {
	if later.Before(earlier) {
		return apperrors.NewValidationFieldError(field, fmt.Sprintf("%s cannot be before the start day", field), apperrors.ErrCodeInvalidDate)
	}
	return nil
}
