package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/counseling-scheduler/internal/schedule"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrBlockNotFound       = errors.New("unavailability block not found")

	// ErrActiveSlotTaken is returned by storage when inserting would give a
	// slot a second active appointment.
	ErrActiveSlotTaken = errors.New("active appointment already exists for slot")
)

// UserDirectory is the external user store; scheduling only reads it.
type UserDirectory interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

type UnavailabilityStore interface {
	BlocksFor(ctx context.Context, psychologistID uuid.UUID, date schedule.Date) ([]UnavailabilityBlock, error)
	ListBlocks(ctx context.Context, psychologistID uuid.UUID, from, to schedule.Date) ([]UnavailabilityBlock, error)
	GetBlock(ctx context.Context, id uuid.UUID) (*UnavailabilityBlock, error)
	CreateBlock(ctx context.Context, b *UnavailabilityBlock) error
	DeleteBlock(ctx context.Context, id uuid.UUID) error
}

// BookingLedger reads active (pending or confirmed) appointments only.
type BookingLedger interface {
	ActiveAppointmentsFor(ctx context.Context, psychologistID uuid.UUID, date schedule.Date) ([]BookedSlot, error)
	// ActiveAt returns ErrAppointmentNotFound when the slot is free.
	ActiveAt(ctx context.Context, psychologistID uuid.UUID, date schedule.Date, t schedule.TimeOfDay) (*BookedSlot, error)
}

type AppointmentRepository interface {
	// CreatePendingAppointment fills ID, Status and timestamps. It must fail
	// with ErrActiveSlotTaken atomically when the slot is already held.
	CreatePendingAppointment(ctx context.Context, a *Appointment) error
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error)
	HasAppointmentBetween(ctx context.Context, studentID, psychologistID uuid.UUID) (bool, error)

	// UpdateAppointmentStatus is a compare-and-set: it only writes when the
	// current status is one of from, and returns ErrAppointmentNotFound otherwise.
	// A non-nil notes replaces the stored notes.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus, notes *string) (*Appointment, error)
}

// Outbox records appointment events for the notification relay.
type Outbox interface {
	InsertEvent(ctx context.Context, ev EventLog) error
	FetchUnpublished(ctx context.Context, limit int) ([]EventLog, error)
	MarkPublished(ctx context.Context, ids []int64, at time.Time) error
}

// Repository contains all storage interactions needed by the service.
type Repository interface {
	UserDirectory
	UnavailabilityStore
	BookingLedger
	AppointmentRepository
	Outbox
}
