package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Enrollment and billing business-rule violations. These map one-to-one to
// user-facing messages at the HTTP boundary and are never retried.
var (
	ErrEnrollmentClosed             = New("ENROLLMENT_CLOSED", http.StatusUnprocessableEntity, "no open enrollment period")
	ErrNewStudentsNotAccepted       = New("NEW_STUDENTS_NOT_ACCEPTED", http.StatusUnprocessableEntity, "period does not accept new students")
	ErrReturningStudentsNotAccepted = New("RETURNING_STUDENTS_NOT_ACCEPTED", http.StatusUnprocessableEntity, "period does not accept returning students")
	ErrGradeLevelRegression         = New("GRADE_LEVEL_REGRESSION", http.StatusUnprocessableEntity, "requested grade level is below completed grade level")
	ErrDuplicateEnrollment          = New("DUPLICATE_ENROLLMENT", http.StatusConflict, "student already has an active enrollment for the school year")
	ErrInvalidTransition            = New("INVALID_TRANSITION", http.StatusConflict, "enrollment status does not permit this transition")
	ErrInvalidDiscount              = New("INVALID_DISCOUNT", http.StatusBadRequest, "invalid discount kind or value")
	ErrOverpaymentRejected          = New("OVERPAYMENT_REJECTED", http.StatusUnprocessableEntity, "payment exceeds remaining balance")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Is reports whether err carries the same code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}
