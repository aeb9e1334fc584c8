package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/hackgods/counseling-scheduler/internal/redis"
	"github.com/hackgods/counseling-scheduler/internal/schedule"
)

type ReserveRequest struct {
	StudentID      uuid.UUID
	PsychologistID uuid.UUID
	Date           schedule.Date
	Time           schedule.TimeOfDay
	Reason         string
	Notes          *string
	Intake         json.RawMessage
}

// Book reserves a slot on behalf of actor. Students book for themselves;
// admins may book for any student.
func (s *Service) Book(ctx context.Context, actor Actor, req ReserveRequest) (*Appointment, error) {
	switch {
	case actor.IsAdmin():
	case actor.Role == RoleStudent:
		if req.StudentID == uuid.Nil {
			req.StudentID = actor.ID
		}
		if req.StudentID != actor.ID {
			return nil, &PermissionError{Role: actor.Role, Action: "book for another student"}
		}
	default:
		return nil, &PermissionError{Role: actor.Role, Action: "book appointments"}
	}
	return s.Reserve(ctx, req)
}

// Reserve validates a requested slot and atomically creates a pending
// appointment for it. The first failing rule wins, in this order: date,
// time, psychologist, student, reason, slot.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (*Appointment, error) {
	if err := s.calendar.CheckDate(req.Date); err != nil {
		return nil, &ValidationError{Kind: InvalidDate, Field: "date", Message: err.Error()}
	}
	if !s.calendar.IsSlot(req.Date, req.Time) {
		return nil, &ValidationError{Kind: InvalidTime, Field: "time", Message: fmt.Sprintf("%s is not a bookable slot", req.Time)}
	}

	if _, err := s.psychologist(ctx, req.PsychologistID, true); err != nil {
		return nil, err
	}
	if _, err := s.userWithRole(ctx, "student", req.StudentID, RoleStudent, true); err != nil {
		return nil, err
	}

	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		seenBefore, err := s.repo.HasAppointmentBetween(ctx, req.StudentID, req.PsychologistID)
		if err != nil {
			return nil, err
		}
		if !seenBefore {
			return nil, &ValidationError{Kind: ReasonRequired, Field: "reason", Message: "a reason is required for a first appointment"}
		}
	}

	var created *Appointment
	book := func(lockCtx context.Context) error {
		appt, err := s.insertPending(lockCtx, req)
		if err != nil {
			return err
		}
		created = appt
		return nil
	}

	if err := s.withSlotLock(ctx, req, book); err != nil {
		return nil, err
	}

	s.log.Info("appointment reserved",
		zap.Stringer("appointment_id", created.ID),
		zap.Stringer("student_id", created.StudentID),
		zap.Stringer("psychologist_id", created.PsychologistID),
		zap.Stringer("date", created.Date),
		zap.Stringer("time", created.Time),
	)
	s.logEvent(ctx, created.ID, EventAppointmentCreated, eventPayload(created, nil))

	return created, nil
}

// insertPending re-checks the ledger for a friendly error, then relies on the
// storage constraint as the authoritative conflict signal.
func (s *Service) insertPending(ctx context.Context, req ReserveRequest) (*Appointment, error) {
	existing, err := s.repo.ActiveAt(ctx, req.PsychologistID, req.Date, req.Time)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return nil, fmt.Errorf("check active appointment: %w", err)
	}
	if existing != nil {
		return nil, &ConflictError{Kind: SlotTaken}
	}

	appt := &Appointment{
		StudentID:       req.StudentID,
		PsychologistID:  req.PsychologistID,
		Date:            req.Date,
		Time:            req.Time,
		DurationMinutes: int(s.calendar.Policy().SlotDuration.Minutes()),
		Status:          StatusPending,
		Reason:          req.Reason,
		Notes:           req.Notes,
		Intake:          req.Intake,
	}
	if err := s.repo.CreatePendingAppointment(ctx, appt); err != nil {
		if errors.Is(err, ErrActiveSlotTaken) {
			return nil, &ConflictError{Kind: SlotTaken}
		}
		return nil, fmt.Errorf("create pending appointment: %w", err)
	}
	return appt, nil
}

func (s *Service) withSlotLock(ctx context.Context, req ReserveRequest, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}

	key := redisclient.SlotKey(req.PsychologistID, req.Date.String(), req.Time.String())
	err := s.locker.WithSlotLock(ctx, key, fn)
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		return &ConflictError{Kind: SlotBusy}
	case errors.Is(err, redisclient.ErrLockUnavailable):
		s.log.Warn("slot lock unavailable, booking without it", zap.String("slot_key", key), zap.Error(err))
		return fn(ctx)
	default:
		return err
	}
}
