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

// Booking rule violations surfaced by the slot booking engine.
var (
	ErrSlotFull           = New("SLOT_FULL", http.StatusConflict, "slot has no spots left")
	ErrSlotClosed         = New("SLOT_CLOSED", http.StatusConflict, "slot is completed or cancelled")
	ErrAlreadyBooked      = New("ALREADY_BOOKED", http.StatusConflict, "teacher already booked into this slot")
	ErrActiveBooking      = New("ACTIVE_BOOKING_EXISTS", http.StatusConflict, "teacher already holds an active booking")
	ErrAlreadyCancelled   = New("ALREADY_CANCELLED", http.StatusConflict, "booking is no longer active")
	ErrPastBooking        = New("PAST_BOOKING", http.StatusConflict, "slot date has already passed")
	ErrCancellationWindow = New("CANCELLATION_WINDOW", http.StatusConflict, "too close to slot start to cancel")
)

// Exam and grading rule violations.
var (
	ErrNoQuestions       = New("NO_QUESTIONS", http.StatusPreconditionFailed, "exam has no questions")
	ErrGradingInProgress = New("GRADING_IN_PROGRESS", http.StatusConflict, "automated grading has not finished")
	ErrGradingModeLocked = New("GRADING_MODE_LOCKED", http.StatusConflict, "grading mode is fixed at creation")
	ErrInvalidTransition = New("INVALID_TRANSITION", http.StatusConflict, "status transition not allowed")
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
