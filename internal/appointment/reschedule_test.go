package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/counseling-scheduler/internal/schedule"
)

func TestReschedule_MovesToNewSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.reserve(t, tomorrow, "09:30")
	if _, err := f.svc.Approve(ctx, f.actor(f.psych), old.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	newDate := schedule.NewDate(2025, time.March, 12)
	next, err := f.svc.Reschedule(ctx, f.actor(f.student), old.ID, newDate, schedule.MustParseTimeOfDay("12:30"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ID == old.ID {
		t.Fatal("expected a new appointment")
	}
	if next.Status != StatusPending {
		t.Errorf("expected new appointment pending, got %s", next.Status)
	}
	if next.Date != newDate || next.Time.String() != "12:30" {
		t.Errorf("expected 2025-03-12 12:30, got %s %s", next.Date, next.Time)
	}
	if next.Reason != old.Reason {
		t.Errorf("expected reason carried over, got %q", next.Reason)
	}

	stored, _ := f.repo.GetAppointmentByID(ctx, old.ID)
	if stored.Status != StatusCancelled {
		t.Errorf("expected old appointment cancelled, got %s", stored.Status)
	}
	if stored.Date != tomorrow {
		t.Errorf("expected old appointment date untouched, got %s", stored.Date)
	}

	day, err := f.svc.Availability(ctx, f.psych.ID, tomorrow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s := slotByTime(t, day, "09:30"); !s.Available {
		t.Errorf("expected old slot freed, got %+v", s)
	}

	got := f.eventTypes()
	if got[len(got)-1] != EventAppointmentRescheduled {
		t.Errorf("expected last event %s, got %v", EventAppointmentRescheduled, got)
	}
}

func TestReschedule_TargetTaken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.reserve(t, tomorrow, "09:30")

	req := f.request(tomorrow, "10:15")
	req.StudentID = f.otherStudent.ID
	if _, err := f.svc.Reserve(ctx, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := f.svc.Reschedule(ctx, f.actor(f.student), old.ID, tomorrow, schedule.MustParseTimeOfDay("10:15"))
	expectConflict(t, err, SlotTaken)

	stored, _ := f.repo.GetAppointmentByID(ctx, old.ID)
	if stored.Status != StatusPending {
		t.Errorf("expected original untouched, got %s", stored.Status)
	}
}

func TestReschedule_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.reserve(t, tomorrow, "09:30")
	target := schedule.MustParseTimeOfDay("11:00")

	_, err := f.svc.Reschedule(ctx, f.actor(f.psych), appt.ID, tomorrow, target)
	expectPermission(t, err)

	_, err = f.svc.Reschedule(ctx, f.actor(f.otherStudent), appt.ID, tomorrow, target)
	expectPermission(t, err)

	_, err = f.svc.Reschedule(ctx, f.actor(f.student), appt.ID, schedule.NewDate(2025, time.March, 15), target)
	expectValidation(t, err, InvalidDate, "date")

	if _, err := f.svc.Cancel(ctx, f.actor(f.student), appt.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = f.svc.Reschedule(ctx, f.actor(f.admin), appt.ID, tomorrow, target)
	expectInvalidTransition(t, err, StatusCancelled)
}

// cancelRace lets the reschedule reserve succeed and then loses the cancel of
// the source appointment.
type cancelRace struct {
	*MemoryRepository
}

func (c cancelRace) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus, notes *string) (*Appointment, error) {
	appt, err := c.MemoryRepository.GetAppointmentByID(ctx, id)
	if err == nil && appt.Time.String() == "09:30" {
		if _, err := c.MemoryRepository.UpdateAppointmentStatus(ctx, id, from, StatusCancelled, nil); err != nil {
			return nil, err
		}
		return nil, ErrAppointmentNotFound
	}
	return c.MemoryRepository.UpdateAppointmentStatus(ctx, id, from, to, notes)
}

func TestReschedule_SourceCancelledConcurrently(t *testing.T) {
	f := newFixtureWith(t, func(m *MemoryRepository) Repository { return cancelRace{m} }, nil)
	ctx := context.Background()
	old := f.reserve(t, tomorrow, "09:30")

	_, err := f.svc.Reschedule(ctx, f.actor(f.student), old.ID, tomorrow, schedule.MustParseTimeOfDay("11:00"))
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}

	booked, err := f.repo.ActiveAppointmentsFor(ctx, f.psych.ID, tomorrow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(booked) != 0 {
		t.Fatalf("expected the new slot released again, got %v", booked)
	}
}
