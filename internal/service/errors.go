package service

import (
	"errors"
	"fmt"

	"campus_parking/internal/repository"
)

type ErrorCode string

const (
	CodeSpotUnavailable          ErrorCode = "SPOT_UNAVAILABLE"
	CodeSpotAlreadyBooked        ErrorCode = "SPOT_ALREADY_BOOKED"
	CodeConflictingActiveBooking ErrorCode = "CONFLICTING_ACTIVE_BOOKING"
	CodeVehicleTypeMismatch      ErrorCode = "VEHICLE_TYPE_MISMATCH"
	CodeInvalidQR                ErrorCode = "INVALID_QR"
	CodeReservationNotFound      ErrorCode = "RESERVATION_NOT_FOUND"
	CodeActiveSessionNotFound    ErrorCode = "ACTIVE_SESSION_NOT_FOUND"
	CodeNoActiveSubscription     ErrorCode = "NO_ACTIVE_SUBSCRIPTION"
	CodeStoreUnavailable         ErrorCode = "STORE_UNAVAILABLE"

	CodeVehicleNotFound   ErrorCode = "VEHICLE_NOT_FOUND"
	CodeSpotNotFound      ErrorCode = "SPOT_NOT_FOUND"
	CodeSpotStateConflict ErrorCode = "SPOT_STATE_CONFLICT"
	CodeForbidden         ErrorCode = "FORBIDDEN"
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
)

// AppError is the only error type handed to the HTTP and queue layers.
type AppError struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func newAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func (e *AppError) with(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// ErrorCodeOf returns the code carried by err, or "" if err is not an AppError.
func ErrorCodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// storeError wraps any unclassified ledger failure; callers must have already
// translated the sentinels they understand.
func storeError(op string, err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	msg := "the parking ledger is temporarily unavailable, please try again later"
	if !errors.Is(err, repository.ErrStoreUnavailable) {
		msg = "the parking ledger could not complete the request, please try again later"
	}
	return newAppError(CodeStoreUnavailable, msg, fmt.Errorf("%s: %w", op, err))
}
