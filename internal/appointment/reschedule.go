package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/counseling-scheduler/internal/schedule"
)

// Reschedule moves an active appointment to another slot by booking the new
// slot first and then cancelling the old appointment. Date and time of an
// existing appointment are never rewritten in place.
func (s *Service) Reschedule(ctx context.Context, actor Actor, id uuid.UUID, date schedule.Date, t schedule.TimeOfDay) (*Appointment, error) {
	old, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !owningStudentOrAdmin(actor, old) {
		return nil, &PermissionError{Role: actor.Role, Action: "reschedule this appointment"}
	}
	if !CanTransition(old.Status, TransitionReschedule) {
		return nil, &InvalidTransitionError{From: old.Status, Transition: TransitionReschedule}
	}

	next, err := s.Reserve(ctx, ReserveRequest{
		StudentID:      old.StudentID,
		PsychologistID: old.PsychologistID,
		Date:           date,
		Time:           t,
		Reason:         old.Reason,
		Notes:          old.Notes,
		Intake:         old.Intake,
	})
	if err != nil {
		return nil, err
	}

	cancelled, err := s.repo.UpdateAppointmentStatus(ctx, old.ID, ActiveStatuses, StatusCancelled, nil)
	if err != nil {
		s.rollbackReschedule(ctx, next)
		if errors.Is(err, ErrAppointmentNotFound) {
			current, getErr := s.GetAppointment(ctx, old.ID)
			if getErr != nil {
				return nil, getErr
			}
			return nil, &InvalidTransitionError{From: current.Status, Transition: TransitionReschedule}
		}
		return nil, fmt.Errorf("cancel rescheduled appointment: %w", err)
	}

	s.log.Info("appointment rescheduled",
		zap.Stringer("from_appointment_id", old.ID),
		zap.Stringer("to_appointment_id", next.ID),
		zap.Stringer("date", next.Date),
		zap.Stringer("time", next.Time),
	)
	s.logEvent(ctx, cancelled.ID, EventAppointmentCancelled, eventPayload(cancelled, map[string]any{
		"rescheduled_to": next.ID.String(),
	}))
	s.logEvent(ctx, next.ID, EventAppointmentRescheduled, eventPayload(next, map[string]any{
		"previous_appointment_id": old.ID.String(),
		"previous_date":           old.Date.String(),
		"previous_time":           old.Time.String(),
	}))

	return next, nil
}

// rollbackReschedule frees the slot taken by a reschedule that could not
// cancel its source appointment.
func (s *Service) rollbackReschedule(ctx context.Context, next *Appointment) {
	if _, err := s.repo.UpdateAppointmentStatus(ctx, next.ID, []AppointmentStatus{StatusPending}, StatusCancelled, nil); err != nil {
		s.log.Error("failed to release rescheduled slot",
			zap.Stringer("appointment_id", next.ID),
			zap.Error(err),
		)
		return
	}
	s.logEvent(ctx, next.ID, EventAppointmentCancelled, eventPayload(next, map[string]any{
		"status": string(StatusCancelled),
	}))
}
