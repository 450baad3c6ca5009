package internal

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation             ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound               ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized           ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden              ErrorType = "FORBIDDEN"
	ErrorTypeConflict               ErrorType = "CONFLICT"
	ErrorTypeInvalidAction          ErrorType = "INVALID_ACTION"
	ErrorTypeInvalidStageTransition ErrorType = "INVALID_STAGE_TRANSITION"
	ErrorTypeMissingPrecondition    ErrorType = "MISSING_PRECONDITION"
	ErrorTypeInternal               ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal               ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed  ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidDate       ErrorCode = "INVALID_DATE"
	ErrCodeInvalidAmount     ErrorCode = "INVALID_AMOUNT"
	ErrCodeNoDepartment      ErrorCode = "NO_DEPARTMENT"
	ErrCodeNoApproverOnDuty  ErrorCode = "NO_APPROVER_ON_DUTY"
	ErrCodeRejectionRequired ErrorCode = "REJECTION_MESSAGE_REQUIRED"

	ErrCodeRequestNotFound      ErrorCode = "REQUEST_NOT_FOUND"
	ErrCodeVehicleNotFound      ErrorCode = "VEHICLE_NOT_FOUND"
	ErrCodeUserNotFound         ErrorCode = "USER_NOT_FOUND"
	ErrCodeNotificationNotFound ErrorCode = "NOTIFICATION_NOT_FOUND"
	ErrCodeNoVehicleAssigned    ErrorCode = "NO_VEHICLE_ASSIGNED"

	ErrCodeWrongApproverRole  ErrorCode = "WRONG_APPROVER_ROLE"
	ErrCodeOutsideDepartment  ErrorCode = "OUTSIDE_DEPARTMENT"
	ErrCodeRoleNotPermitted   ErrorCode = "ROLE_NOT_PERMITTED"
	ErrCodeNotVehicleDriver   ErrorCode = "NOT_VEHICLE_DRIVER"
	ErrCodeUnauthorizedAccess ErrorCode = "UNAUTHORIZED_ACCESS"

	ErrCodeUnknownAction ErrorCode = "UNKNOWN_ACTION"
	ErrCodeUnknownKind   ErrorCode = "UNKNOWN_REQUEST_KIND"

	ErrCodeNoFurtherApprover         ErrorCode = "NO_FURTHER_APPROVER"
	ErrCodeApprovalNotAllowedAtStage ErrorCode = "APPROVAL_NOT_ALLOWED_AT_THIS_STAGE"
	ErrCodeRequestFinalized          ErrorCode = "REQUEST_FINALIZED"
	ErrCodeStageMismatch             ErrorCode = "STAGE_MISMATCH"

	ErrCodeMissingArtifacts      ErrorCode = "MISSING_ARTIFACTS"
	ErrCodeMissingEstimate       ErrorCode = "MISSING_ESTIMATE"
	ErrCodeMissingFuelEfficiency ErrorCode = "MISSING_FUEL_EFFICIENCY"
	ErrCodeServiceNotDue         ErrorCode = "SERVICE_NOT_DUE"
	ErrCodeNoApprovedMaintenance ErrorCode = "NO_APPROVED_MAINTENANCE"
	ErrCodeServiceStillOpen      ErrorCode = "SERVICE_STILL_OPEN"
	ErrCodeMissingKilometerLog   ErrorCode = "MISSING_KILOMETER_LOG"

	ErrCodeVehicleUnavailable       ErrorCode = "VEHICLE_UNAVAILABLE"
	ErrCodeVehicleInUse             ErrorCode = "VEHICLE_IN_USE"
	ErrCodeVehicleStatusMismatch    ErrorCode = "VEHICLE_STATUS_MISMATCH"
	ErrCodeNoDriverAssigned         ErrorCode = "NO_DRIVER_ASSIGNED"
	ErrCodeVehicleAlreadyAssigned   ErrorCode = "VEHICLE_ALREADY_ASSIGNED"
	ErrCodeTripAlreadyCompleted     ErrorCode = "TRIP_ALREADY_COMPLETED"
	ErrCodeConcurrentModification   ErrorCode = "CONCURRENT_MODIFICATION"
	ErrCodeKilometersAlreadyLogged  ErrorCode = "KILOMETERS_ALREADY_LOGGED"
	ErrCodeDuplicateLicensePlate    ErrorCode = "DUPLICATE_LICENSE_PLATE"
	ErrCodeUnknownTemplate          ErrorCode = "UNKNOWN_TEMPLATE"
	ErrCodeSignatureMismatch        ErrorCode = "SIGNATURE_MISMATCH"
	ErrCodeVerificationUnavailable  ErrorCode = "VERIFICATION_UNAVAILABLE"
	ErrCodeNotificationNotRecipient ErrorCode = "NOT_NOTIFICATION_RECIPIENT"

	ErrCodeOTPNotFound     ErrorCode = "OTP_NOT_FOUND"
	ErrCodeOTPLocked       ErrorCode = "OTP_LOCKED"
	ErrCodeOTPExpired      ErrorCode = "OTP_EXPIRED"
	ErrCodeOTPInvalid      ErrorCode = "OTP_INVALID"
	ErrCodeOTPRequired     ErrorCode = "OTP_REQUIRED"
	ErrCodeNoPhoneNumber   ErrorCode = "NO_PHONE_NUMBER"
	ErrCodeOTPDeliveryDown ErrorCode = "OTP_DELIVERY_UNAVAILABLE"

	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeUserInactive       ErrorCode = "USER_INACTIVE"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on Type and Code so sentinel errors compare equal to
// freshly built copies carrying different messages or details.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithCause and WithDetails return copies so shared sentinels stay untouched.
func (e *AppError) WithCause(cause error) *AppError {
	cp := *e
	cp.Cause = cause
	return &cp
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func (e *AppError) WithMessage(message string) *AppError {
	cp := *e
	cp.Message = message
	return &cp
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// MissingFields is the details payload of a MISSING_PRECONDITION error.
type MissingFields struct {
	Fields []string `json:"fields"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewInvalidActionError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidAction,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewInvalidStageTransitionError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidStageTransition,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewExternalError reports an unreachable downstream dependency.
func NewExternalError(message string, code ErrorCode, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Cause:      cause,
	}
}

// NewMissingPreconditionError lists the absent fields in the order given.
func NewMissingPreconditionError(message string, code ErrorCode, fields ...string) *AppError {
	return &AppError{
		Type:       ErrorTypeMissingPrecondition,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Details:    MissingFields{Fields: fields},
	}
}

var (
	ErrRequestNotFound      = NewNotFoundError("Request not found", ErrCodeRequestNotFound)
	ErrVehicleNotFound      = NewNotFoundError("Vehicle not found", ErrCodeVehicleNotFound)
	ErrUserNotFound         = NewNotFoundError("User not found", ErrCodeUserNotFound)
	ErrNotificationNotFound = NewNotFoundError("Notification not found", ErrCodeNotificationNotFound)
	ErrNoVehicleAssigned    = NewNotFoundError("No vehicles assigned to you", ErrCodeNoVehicleAssigned)

	ErrWrongApproverRole = NewForbiddenError("you are not the current approver for this request", ErrCodeWrongApproverRole)
	ErrOutsideDepartment = NewForbiddenError("request belongs to another department", ErrCodeOutsideDepartment)
	ErrRoleNotPermitted  = NewForbiddenError("your role is not permitted to perform this operation", ErrCodeRoleNotPermitted)
	ErrNotVehicleDriver  = NewForbiddenError("only the assigned driver can complete this trip", ErrCodeNotVehicleDriver)

	ErrUnknownAction = NewInvalidActionError("unknown action", ErrCodeUnknownAction)
	ErrUnknownKind   = NewInvalidActionError("unknown request kind", ErrCodeUnknownKind)

	ErrNoFurtherApprover         = NewInvalidStageTransitionError("no further approver for this request", ErrCodeNoFurtherApprover)
	ErrApprovalNotAllowedAtStage = NewInvalidStageTransitionError("approval is not allowed at this stage", ErrCodeApprovalNotAllowedAtStage)
	ErrRequestFinalized          = NewInvalidStageTransitionError("request has already been finalized", ErrCodeRequestFinalized)
	ErrStageMismatch             = NewInvalidStageTransitionError("operation not allowed at the current stage", ErrCodeStageMismatch)

	ErrMissingFuelEfficiency = NewMissingPreconditionError("vehicle has no fuel efficiency rating", ErrCodeMissingFuelEfficiency, "fuel_efficiency")
	ErrServiceNotDue         = NewMissingPreconditionError("vehicle has not reached the service interval", ErrCodeServiceNotDue)
	ErrNoApprovedMaintenance = NewMissingPreconditionError("no approved maintenance request for this vehicle", ErrCodeNoApprovedMaintenance)
	ErrServiceStillOpen      = NewMissingPreconditionError("latest service request is not finalized", ErrCodeServiceStillOpen)
	ErrMissingKilometerLog   = NewMissingPreconditionError("monthly kilometers must be recorded before requesting a coupon", ErrCodeMissingKilometerLog, "month")

	ErrVehicleUnavailable     = NewConflictError("vehicle is not available", ErrCodeVehicleUnavailable)
	ErrVehicleInUse           = NewConflictError("vehicle is currently in use", ErrCodeVehicleInUse)
	ErrVehicleStatusMismatch  = NewConflictError("vehicle is not in the expected status", ErrCodeVehicleStatusMismatch)
	ErrNoDriverAssigned       = NewConflictError("vehicle has no driver assigned", ErrCodeNoDriverAssigned)
	ErrVehicleAlreadyAssigned = NewConflictError("vehicle has already been assigned", ErrCodeVehicleAlreadyAssigned)
	ErrTripAlreadyCompleted   = NewConflictError("trip has already been completed", ErrCodeTripAlreadyCompleted)
	ErrConcurrentModification = NewConflictError("request was modified concurrently, reload and retry", ErrCodeConcurrentModification)
	ErrKilometersLogged       = NewConflictError("kilometers already recorded for this month", ErrCodeKilometersAlreadyLogged)
	ErrDuplicateLicensePlate  = NewConflictError("license plate already registered", ErrCodeDuplicateLicensePlate)

	ErrUnknownTemplate = NewValidationError("unknown notification template", ErrCodeUnknownTemplate)
	ErrNotRecipient    = NewForbiddenError("notification belongs to another user", ErrCodeNotificationNotRecipient)

	ErrOTPNotFound = NewNotFoundError("No OTP found. Please request a new one.", ErrCodeOTPNotFound)
	ErrOTPLocked   = &AppError{Type: ErrorTypeUnauthorized, Code: ErrCodeOTPLocked, Message: "Too many failed attempts. Try again later.", StatusCode: http.StatusLocked}
	ErrOTPExpired  = NewUnauthorizedError("OTP has expired. Please request a new one.", ErrCodeOTPExpired)
	ErrOTPInvalid  = NewUnauthorizedError("Invalid OTP.", ErrCodeOTPInvalid)
	ErrOTPRequired = NewUnauthorizedError("a one-time code is required for this action", ErrCodeOTPRequired)
	ErrNoPhone     = NewValidationError("user has no phone number on file", ErrCodeNoPhoneNumber)

	ErrSignatureMismatch = NewForbiddenError("signature does not match the reference on file", ErrCodeSignatureMismatch)

	ErrInvalidCredentials = NewUnauthorizedError("Invalid email or password", ErrCodeInvalidCredentials)
	ErrUserInactive       = NewForbiddenError("User account is inactive", ErrCodeUserInactive)
	ErrInvalidToken       = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired       = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
