package appointment

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/counseling-scheduler/internal/schedule"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusRejected  AppointmentStatus = "rejected"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// ActiveStatuses hold a slot; at most one appointment per slot may be in one of them.
var ActiveStatuses = []AppointmentStatus{StatusPending, StatusConfirmed}

func (s AppointmentStatus) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s AppointmentStatus) IsTerminal() bool {
	return s == StatusRejected || s == StatusCancelled || s == StatusCompleted
}

func (s AppointmentStatus) Valid() bool {
	return s.IsActive() || s.IsTerminal()
}

type Role string

const (
	RoleStudent      Role = "student"
	RolePsychologist Role = "psychologist"
	RoleAdmin        Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleStudent || r == RolePsychologist || r == RoleAdmin
}

// Actor is the caller of an operation, as asserted by the authenticating gateway.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// User is a read-only view of the external user directory.
type User struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Role      Role
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID              uuid.UUID
	StudentID       uuid.UUID
	PsychologistID  uuid.UUID
	Date            schedule.Date
	Time            schedule.TimeOfDay
	DurationMinutes int
	Status          AppointmentStatus
	Reason          string
	Notes           *string
	// Intake is opaque patient intake data; scheduling never inspects it.
	Intake    json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UnavailabilityBlock without StartTime and EndTime blocks the whole day.
type UnavailabilityBlock struct {
	ID             uuid.UUID
	PsychologistID uuid.UUID
	Date           schedule.Date
	StartTime      *schedule.TimeOfDay
	EndTime        *schedule.TimeOfDay
	Reason         *string
	CreatedAt      time.Time
}

func (b UnavailabilityBlock) IsWholeDay() bool {
	return b.StartTime == nil && b.EndTime == nil
}

// Covers reports whether a slot starting at t falls in [StartTime, EndTime).
func (b UnavailabilityBlock) Covers(t schedule.TimeOfDay) bool {
	if b.IsWholeDay() {
		return true
	}
	if b.StartTime == nil || b.EndTime == nil {
		return false
	}
	return t >= *b.StartTime && t < *b.EndTime
}

// BookedSlot is a ledger entry: an active appointment holding a slot.
type BookedSlot struct {
	Time          schedule.TimeOfDay
	AppointmentID uuid.UUID
}

type ListFilter struct {
	StudentID      *uuid.UUID
	PsychologistID *uuid.UUID
	Status         *AppointmentStatus
	From           *schedule.Date
	To             *schedule.Date
	Limit          int
	Offset         int
}

// Paged returns f with the default and maximum page sizes applied.
func (f ListFilter) Paged() ListFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
}
