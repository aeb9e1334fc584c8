package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/hackgods/counseling-scheduler/internal/redis"
	"github.com/hackgods/counseling-scheduler/internal/schedule"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentApproved    = "APPOINTMENT_APPROVED"
	EventAppointmentRejected    = "APPOINTMENT_REJECTED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type Service struct {
	repo     Repository
	calendar *schedule.Calendar
	resolver *Resolver
	locker   redisclient.Locker
	log      *zap.Logger
	now      func() time.Time
}

// NewService wires the scheduling engine. locker may be nil, in which case
// bookings rely on the storage constraint alone.
func NewService(repo Repository, calendar *schedule.Calendar, locker redisclient.Locker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		calendar: calendar,
		resolver: NewResolver(calendar, repo, repo),
		locker:   locker,
		log:      logger,
		now:      time.Now,
	}
}

func (s *Service) Calendar() *schedule.Calendar { return s.calendar }

// Availability resolves the bookable view of one psychologist's day.
func (s *Service) Availability(ctx context.Context, psychologistID uuid.UUID, date schedule.Date) (*DayAvailability, error) {
	if _, err := s.psychologist(ctx, psychologistID, true); err != nil {
		return nil, err
	}
	return s.resolver.Resolve(ctx, psychologistID, date)
}

// GetAppointment retrieves an appointment by ID
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, notFound("appointment", id.String())
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListAppointments applies the default and maximum page sizes.
func (s *Service) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	appointments, err := s.repo.ListAppointments(ctx, f.Paged())
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appointments, nil
}

// ViewAppointment is GetAppointment restricted to the appointment's
// participants and admins.
func (s *Service) ViewAppointment(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !participantOrAdmin(actor, appt) {
		return nil, &PermissionError{Role: actor.Role, Action: "view this appointment"}
	}
	return appt, nil
}

// ListAppointmentsFor scopes the filter to the actor: students see their own
// appointments, psychologists their own schedule, admins everything.
func (s *Service) ListAppointmentsFor(ctx context.Context, actor Actor, f ListFilter) ([]Appointment, error) {
	switch actor.Role {
	case RoleAdmin:
	case RoleStudent:
		if f.StudentID != nil && *f.StudentID != actor.ID {
			return nil, &PermissionError{Role: actor.Role, Action: "list another student's appointments"}
		}
		id := actor.ID
		f.StudentID = &id
	case RolePsychologist:
		if f.PsychologistID != nil && *f.PsychologistID != actor.ID {
			return nil, &PermissionError{Role: actor.Role, Action: "list another psychologist's appointments"}
		}
		id := actor.ID
		f.PsychologistID = &id
	default:
		return nil, &PermissionError{Role: actor.Role, Action: "list appointments"}
	}
	return s.ListAppointments(ctx, f)
}

// ResolveStudentEmail maps a student e-mail from a booking form to the directory ID.
func (s *Service) ResolveStudentEmail(ctx context.Context, email string) (uuid.UUID, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return uuid.Nil, notFound("student", email)
		}
		return uuid.Nil, fmt.Errorf("load student by email: %w", err)
	}
	return u.ID, nil
}

// psychologist loads a directory entry that must have the psychologist role.
// With requireActive, inactive psychologists are rejected as well.
func (s *Service) psychologist(ctx context.Context, id uuid.UUID, requireActive bool) (*User, error) {
	return s.userWithRole(ctx, "psychologist", id, RolePsychologist, requireActive)
}

func (s *Service) userWithRole(ctx context.Context, entity string, id uuid.UUID, role Role, requireActive bool) (*User, error) {
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, notFound(entity, id.String())
		}
		return nil, fmt.Errorf("load %s: %w", entity, err)
	}
	if u.Role != role {
		return nil, &NotFoundError{Entity: entity, ID: id.String(), Cause: CauseWrongRole}
	}
	if requireActive && !u.IsActive {
		return nil, &NotFoundError{Entity: entity, ID: id.String(), Cause: CauseInactive}
	}
	return u, nil
}

func eventPayload(appt *Appointment, extra map[string]any) map[string]any {
	payload := map[string]any{
		"appointment_id":  appt.ID.String(),
		"student_id":      appt.StudentID.String(),
		"psychologist_id": appt.PsychologistID.String(),
		"date":            appt.Date.String(),
		"time":            appt.Time.String(),
		"status":          string(appt.Status),
	}
	for k, v := range extra {
		payload[k] = v
	}
	return payload
}

// logEvent records an event for the notification relay. Failures are logged
// and swallowed: the appointment write has already been committed.
func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error("failed to insert event log",
			zap.String("event_type", eventType),
			zap.Stringer("appointment_id", appointmentID),
			zap.Error(err),
		)
	}
}
