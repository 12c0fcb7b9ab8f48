// Package service holds the reservation core: the coordinator that owns
// every reserved-seat counter change, the read-only query service and the
// event/schedule catalog.
package service

import (
	"context"
	"errors"

	"github.com/iliyamo/explanation-reservation/internal/repository"
)

// Errors surfaced to callers. Storage-level sentinels are re-exported so
// handlers only need this package.
var (
	ErrNotFound             = repository.ErrNotFound
	ErrForbidden            = repository.ErrForbidden
	ErrConflict             = repository.ErrConflict
	ErrLockTimeout          = repository.ErrLockTimeout
	ErrWindowNotOpen        = errors.New("application window is not open")
	ErrCapacityFull         = errors.New("schedule is full")
	ErrDuplicateReservation = errors.New("applicant already holds a reservation for this schedule")
	ErrConsistencyViolation = errors.New("reserved count is inconsistent with capacity")
	ErrInvalidInput         = errors.New("invalid input")
)

// Error codes returned in API bodies.
const (
	CodeNotFound             = "NOT_FOUND"
	CodeWindowNotOpen        = "WINDOW_NOT_OPEN"
	CodeCapacityFull         = "CAPACITY_FULL"
	CodeDuplicateReservation = "DUPLICATE_RESERVATION"
	CodeLockTimeout          = "LOCK_TIMEOUT"
	CodeConsistencyViolation = "CONSISTENCY_VIOLATION"
	CodeForbidden            = "FORBIDDEN"
	CodeConflict             = "CONFLICT"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeCanceled             = "REQUEST_CANCELED"
	CodeInternal             = "INTERNAL"
)

// Code maps err to its taxonomy code. Unknown errors are INTERNAL.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrWindowNotOpen):
		return CodeWindowNotOpen
	case errors.Is(err, ErrCapacityFull):
		return CodeCapacityFull
	case errors.Is(err, ErrDuplicateReservation):
		return CodeDuplicateReservation
	case errors.Is(err, ErrLockTimeout):
		return CodeLockTimeout
	case errors.Is(err, ErrConsistencyViolation):
		return CodeConsistencyViolation
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	}
	return CodeInternal
}

// Retryable reports whether the caller may safely repeat the request
// unchanged.
func Retryable(err error) bool {
	switch Code(err) {
	case CodeLockTimeout, CodeCanceled:
		return true
	}
	return false
}

// userFacing reports whether err is an expected business outcome rather
// than a system failure.
func userFacing(err error) bool {
	switch Code(err) {
	case CodeNotFound, CodeWindowNotOpen, CodeCapacityFull, CodeDuplicateReservation,
		CodeForbidden, CodeConflict, CodeInvalidInput:
		return true
	}
	return false
}
