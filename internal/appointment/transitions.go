package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Transition string

const (
	TransitionApprove    Transition = "approve"
	TransitionReject     Transition = "reject"
	TransitionCancel     Transition = "cancel"
	TransitionComplete   Transition = "complete"
	TransitionReschedule Transition = "reschedule"
)

type transitionRule struct {
	from    []AppointmentStatus
	to      AppointmentStatus
	event   string
	allowed func(actor Actor, appt *Appointment) bool
}

func assignedPsychologistOrAdmin(actor Actor, appt *Appointment) bool {
	return actor.IsAdmin() || (actor.Role == RolePsychologist && actor.ID == appt.PsychologistID)
}

func participantOrAdmin(actor Actor, appt *Appointment) bool {
	switch actor.Role {
	case RoleAdmin:
		return true
	case RoleStudent:
		return actor.ID == appt.StudentID
	case RolePsychologist:
		return actor.ID == appt.PsychologistID
	}
	return false
}

func owningStudentOrAdmin(actor Actor, appt *Appointment) bool {
	return actor.IsAdmin() || (actor.Role == RoleStudent && actor.ID == appt.StudentID)
}

var transitionRules = map[Transition]transitionRule{
	TransitionApprove: {
		from:    []AppointmentStatus{StatusPending},
		to:      StatusConfirmed,
		event:   EventAppointmentApproved,
		allowed: assignedPsychologistOrAdmin,
	},
	TransitionReject: {
		from:    []AppointmentStatus{StatusPending},
		to:      StatusRejected,
		event:   EventAppointmentRejected,
		allowed: assignedPsychologistOrAdmin,
	},
	TransitionCancel: {
		from:    []AppointmentStatus{StatusPending, StatusConfirmed},
		to:      StatusCancelled,
		event:   EventAppointmentCancelled,
		allowed: participantOrAdmin,
	},
	TransitionComplete: {
		from:    []AppointmentStatus{StatusConfirmed},
		to:      StatusCompleted,
		event:   EventAppointmentCompleted,
		allowed: assignedPsychologistOrAdmin,
	},
}

// CanTransition reports whether an appointment in status from may take
// transition t, ignoring who asks.
func CanTransition(from AppointmentStatus, t Transition) bool {
	if t == TransitionReschedule {
		return from.IsActive()
	}
	rule, ok := transitionRules[t]
	if !ok {
		return false
	}
	return containsStatus(rule.from, from)
}

func (s *Service) Approve(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, TransitionApprove, nil)
}

// Reject requires a non-empty reason, which replaces the appointment notes.
func (s *Service) Reject(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*Appointment, error) {
	return s.transition(ctx, actor, id, TransitionReject, &reason)
}

func (s *Service) Cancel(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, TransitionCancel, nil)
}

func (s *Service) Complete(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, TransitionComplete, nil)
}

func (s *Service) transition(ctx context.Context, actor Actor, id uuid.UUID, t Transition, reason *string) (*Appointment, error) {
	rule := transitionRules[t]

	appt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	if !rule.allowed(actor, appt) {
		return nil, &PermissionError{Role: actor.Role, Action: string(t) + " this appointment"}
	}

	var notes *string
	if t == TransitionReject {
		trimmed := ""
		if reason != nil {
			trimmed = strings.TrimSpace(*reason)
		}
		if trimmed == "" {
			return nil, &ValidationError{Kind: ReasonRequired, Field: "reason", Message: "a rejection reason is required"}
		}
		notes = &trimmed
	}

	if !containsStatus(rule.from, appt.Status) {
		return nil, &InvalidTransitionError{From: appt.Status, Transition: t}
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, rule.from, rule.to, notes)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// lost a race with another transition; report what is stored now
			current, getErr := s.GetAppointment(ctx, id)
			if getErr != nil {
				return nil, getErr
			}
			return nil, &InvalidTransitionError{From: current.Status, Transition: t}
		}
		return nil, fmt.Errorf("%s appointment: %w", t, err)
	}

	s.log.Info("appointment transitioned",
		zap.Stringer("appointment_id", id),
		zap.String("transition", string(t)),
		zap.String("from", string(appt.Status)),
		zap.String("to", string(updated.Status)),
		zap.String("actor_role", string(actor.Role)),
	)

	var extra map[string]any
	if notes != nil {
		extra = map[string]any{"reason": *notes}
	}
	s.logEvent(ctx, updated.ID, rule.event, eventPayload(updated, extra))

	return updated, nil
}
