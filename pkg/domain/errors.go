package domain

import (
	"errors"
	"fmt"
	"time"
)

// Failures of instance and entity operations.
//
// Every error returned from the operations wraps exactly one of these,
// so callers can tell them apart with errors.Is.
var (
	// missing or empty required parameter
	ErrValidation = errors.New("invalid parameter")

	ErrInvalidWindow = errors.New("invalid time window")
	ErrInvalidDate   = errors.New("invalid date")

	// lifecycle tag does not belong to the entity type
	ErrInvalidLifecycle = errors.New("invalid lifecycle")

	ErrUnschedulableEntity = errors.New("entity is not schedulable")

	// suspend/resume is attempted on an entity which is not active
	ErrNotScheduled = errors.New("entity is not scheduled")

	ErrInvalidFilter = errors.New("invalid filter")

	ErrNotFound = errors.New("not found")

	// entity with the same type and name has been submitted already
	ErrConflict = errors.New("conflict")

	// opaque failure from the execution backend
	ErrBackend = errors.New("execution backend error")

	ErrUnknownColo = fmt.Errorf("%w: unknown colo", ErrValidation)
)

func NewValidationError(message string) error {
	return fmt.Errorf("%w: %s", ErrValidation, message)
}

func NewEmptyParameterError(name string) error {
	return fmt.Errorf("%w: parameter %s is empty", ErrValidation, name)
}

func NewInvalidWindowError(start, end time.Time) error {
	return fmt.Errorf(
		"%w: specified end date %s is before the entity was scheduled %s",
		ErrInvalidWindow, FormatDate(end), FormatDate(start),
	)
}

func NewInvalidLifecycleError(lc LifeCycle, t EntityType) error {
	return fmt.Errorf("%w: %s for given type: %s", ErrInvalidLifecycle, lc, t)
}

func NewUnschedulableError(t EntityType) error {
	return fmt.Errorf(
		"%w: entity type (%s) cannot be scheduled/suspended/resumed, and has no instances",
		ErrUnschedulableEntity, t,
	)
}

func NewNotScheduledError(name string, t EntityType) error {
	return fmt.Errorf("%w: %s(%s) is not scheduled", ErrNotScheduled, name, t)
}

func NewInvalidFilterError(message string) error {
	return fmt.Errorf("%w: %s", ErrInvalidFilter, message)
}

func NewNotFoundError(t EntityType, name string) error {
	return fmt.Errorf("%w: %s(%s)", ErrNotFound, name, t)
}

func NewConflictError(t EntityType, name string) error {
	return fmt.Errorf("%w: %s(%s) already exists", ErrConflict, name, t)
}

// NewBackendError wraps a failure of the execution backend, keeping its message.
//
// If err is a backend error already, it is returned as is.
func NewBackendError(operation string, err error) error {
	if err == nil || errors.Is(err, ErrBackend) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrBackend, operation, err)
}

// families which backends may report as they are.
var passThrough = []error{
	ErrValidation, ErrInvalidWindow, ErrInvalidDate, ErrInvalidLifecycle,
	ErrUnschedulableEntity, ErrNotScheduled, ErrInvalidFilter, ErrNotFound, ErrConflict,
}

// WrapBackendError is NewBackendError, but errors already in the taxonomy are returned as is.
func WrapBackendError(operation string, err error) error {
	for _, known := range passThrough {
		if errors.Is(err, known) {
			return err
		}
	}
	return NewBackendError(operation, err)
}
