package appointment

import (
	"fmt"
)

type ValidationKind string

const (
	InvalidDate    ValidationKind = "invalid_date"
	InvalidTime    ValidationKind = "invalid_time"
	InvalidRange   ValidationKind = "invalid_range"
	ReasonRequired ValidationKind = "reason_required"
)

// ValidationError is malformed or out-of-policy input. It is never retried.
type ValidationError struct {
	Kind    ValidationKind
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type NotFoundCause string

const (
	CauseMissing   NotFoundCause = "missing"
	CauseWrongRole NotFoundCause = "wrong_role"
	CauseInactive  NotFoundCause = "inactive"
)

// NotFoundError covers unknown entities and users that cannot take part in a booking.
type NotFoundError struct {
	Entity string
	ID     string
	Cause  NotFoundCause
}

func (e *NotFoundError) Error() string {
	switch e.Cause {
	case CauseInactive:
		return fmt.Sprintf("%s %s is not active", e.Entity, e.ID)
	case CauseWrongRole:
		return fmt.Sprintf("%s %s not found (user has another role)", e.Entity, e.ID)
	default:
		return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
	}
}

type ConflictKind string

const (
	SlotTaken ConflictKind = "slot_taken"
	SlotBusy  ConflictKind = "slot_busy"
)

// ConflictError means a booking race was lost. Callers re-read availability
// and pick another slot.
type ConflictError struct {
	Kind ConflictKind
}

func (e *ConflictError) Error() string {
	if e.Kind == SlotBusy {
		return "slot is currently being booked, please retry"
	}
	return "slot already has an active appointment"
}

// InvalidTransitionError leaves the appointment untouched.
type InvalidTransitionError struct {
	From       AppointmentStatus
	Transition Transition
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s an appointment that is %s", e.Transition, e.From)
}

type PermissionError struct {
	Role   Role
	Action string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s is not allowed to %s", e.Role, e.Action)
}

func notFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id, Cause: CauseMissing}
}
