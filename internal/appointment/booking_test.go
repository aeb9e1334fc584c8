package appointment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/hackgods/counseling-scheduler/internal/redis"
	"github.com/hackgods/counseling-scheduler/internal/schedule"
)

// -- Fakes --

// blindLedger hides existing bookings from the pre-check so only the
// storage constraint can catch a double booking.
type blindLedger struct {
	*MemoryRepository
}

func (b blindLedger) ActiveAt(context.Context, uuid.UUID, schedule.Date, schedule.TimeOfDay) (*BookedSlot, error) {
	return nil, ErrAppointmentNotFound
}

type failingOutbox struct {
	*MemoryRepository
}

func (failingOutbox) InsertEvent(context.Context, EventLog) error {
	return errors.New("event store down")
}

type fakeLocker struct {
	err   error
	calls int
}

func (l *fakeLocker) WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error {
	l.calls++
	if l.err != nil {
		return l.err
	}
	return fn(ctx)
}

func expectValidation(t *testing.T, err error, kind ValidationKind, field string) {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Kind != kind || ve.Field != field {
		t.Fatalf("expected %s on %q, got %s on %q", kind, field, ve.Kind, ve.Field)
	}
}

func expectConflict(t *testing.T, err error, kind ConflictKind) {
	t.Helper()
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if ce.Kind != kind {
		t.Fatalf("expected conflict %s, got %s", kind, ce.Kind)
	}
}

// -- Tests --

func TestReserve_Success(t *testing.T) {
	f := newFixture(t)
	req := f.request(tomorrow, "09:30")
	req.Intake = []byte(`{"patient":{"name":"Ana"}}`)

	appt, err := f.svc.Reserve(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if appt.Status != StatusPending {
		t.Errorf("expected pending, got %s", appt.Status)
	}
	if appt.DurationMinutes != 45 {
		t.Errorf("expected 45 minutes, got %d", appt.DurationMinutes)
	}
	if string(appt.Intake) != `{"patient":{"name":"Ana"}}` {
		t.Errorf("expected intake stored untouched, got %s", appt.Intake)
	}
	if got := f.eventTypes(); len(got) != 1 || got[0] != EventAppointmentCreated {
		t.Errorf("expected one %s event, got %v", EventAppointmentCreated, got)
	}
}

func TestReserve_ValidationOrder(t *testing.T) {
	saturday := schedule.NewDate(2025, time.March, 15)
	tests := []struct {
		name  string
		edit  func(f *fixture, r *ReserveRequest)
		kind  ValidationKind
		field string
	}{
		{"weekend", func(_ *fixture, r *ReserveRequest) { r.Date = saturday }, InvalidDate, "date"},
		{"past", func(_ *fixture, r *ReserveRequest) { r.Date = schedule.NewDate(2025, time.March, 7) }, InvalidDate, "date"},
		{"beyond horizon", func(_ *fixture, r *ReserveRequest) { r.Date = schedule.NewDate(2025, time.March, 25) }, InvalidDate, "date"},
		{"date wins over time", func(_ *fixture, r *ReserveRequest) {
			r.Date = saturday
			r.Time = schedule.MustParseTimeOfDay("09:00")
		}, InvalidDate, "date"},
		{"misaligned time", func(_ *fixture, r *ReserveRequest) { r.Time = schedule.MustParseTimeOfDay("09:00") }, InvalidTime, "time"},
		{"after day end", func(_ *fixture, r *ReserveRequest) { r.Time = schedule.MustParseTimeOfDay("14:00") }, InvalidTime, "time"},
		{"time wins over psychologist", func(_ *fixture, r *ReserveRequest) {
			r.Time = schedule.MustParseTimeOfDay("09:00")
			r.PsychologistID = uuid.New()
		}, InvalidTime, "time"},
		{"first booking needs reason", func(_ *fixture, r *ReserveRequest) { r.Reason = "  " }, ReasonRequired, "reason"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := f.request(tomorrow, "09:30")
			tt.edit(f, &req)
			_, err := f.svc.Reserve(context.Background(), req)
			expectValidation(t, err, tt.kind, tt.field)
			if events := f.repo.Events(); len(events) != 0 {
				t.Errorf("expected no events, got %d", len(events))
			}
		})
	}
}

func TestReserve_UnknownParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var nf *NotFoundError

	req := f.request(tomorrow, "09:30")
	req.PsychologistID = uuid.New()
	if _, err := f.svc.Reserve(ctx, req); !errors.As(err, &nf) || nf.Entity != "psychologist" {
		t.Fatalf("expected psychologist NotFoundError, got %v", err)
	}

	req = f.request(tomorrow, "09:30")
	req.PsychologistID = f.student.ID
	if _, err := f.svc.Reserve(ctx, req); !errors.As(err, &nf) || nf.Cause != CauseWrongRole {
		t.Fatalf("expected wrong_role NotFoundError, got %v", err)
	}

	req = f.request(tomorrow, "09:30")
	req.StudentID = f.psych.ID
	if _, err := f.svc.Reserve(ctx, req); !errors.As(err, &nf) || nf.Entity != "student" {
		t.Fatalf("expected student NotFoundError, got %v", err)
	}
}

func TestReserve_InactivePsychologist(t *testing.T) {
	f := newFixture(t)
	inactive := f.psych
	inactive.IsActive = false
	f.repo.PutUser(inactive)

	_, err := f.svc.Reserve(context.Background(), f.request(tomorrow, "09:30"))
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Cause != CauseInactive {
		t.Fatalf("expected inactive NotFoundError, got %v", err)
	}
}

func TestReserve_ReasonOptionalAfterFirstAppointment(t *testing.T) {
	f := newFixture(t)
	first := f.reserve(t, tomorrow, "08:00")
	if _, err := f.svc.Cancel(context.Background(), f.actor(f.student), first.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := f.request(tomorrow, "08:45")
	req.Reason = ""
	if _, err := f.svc.Reserve(context.Background(), req); err != nil {
		t.Fatalf("expected follow-up booking without reason to succeed, got %v", err)
	}
}

func TestReserve_DoubleBooking(t *testing.T) {
	f := newFixture(t)
	f.reserve(t, tomorrow, "09:30")

	req := f.request(tomorrow, "09:30")
	req.StudentID = f.otherStudent.ID
	_, err := f.svc.Reserve(context.Background(), req)
	expectConflict(t, err, SlotTaken)

	// a different psychologist at the same time is fine
	req.PsychologistID = f.otherPsych.ID
	if _, err := f.svc.Reserve(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReserve_ConstraintIsAuthoritative(t *testing.T) {
	f := newFixtureWith(t, func(m *MemoryRepository) Repository { return blindLedger{m} }, nil)
	f.reserve(t, tomorrow, "09:30")

	req := f.request(tomorrow, "09:30")
	req.StudentID = f.otherStudent.ID
	_, err := f.svc.Reserve(context.Background(), req)
	expectConflict(t, err, SlotTaken)
}

func TestReserve_ConcurrentSingleWinner(t *testing.T) {
	f := newFixtureWith(t, func(m *MemoryRepository) Repository { return blindLedger{m} }, nil)

	const attempts = 25
	students := make([]User, attempts)
	for i := range students {
		students[i] = User{ID: uuid.New(), Name: fmt.Sprintf("student %d", i), Role: RoleStudent, IsActive: true}
		f.repo.PutUser(students[i])
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for _, s := range students {
		wg.Add(1)
		go func(studentID uuid.UUID) {
			defer wg.Done()
			req := f.request(tomorrow, "11:00")
			req.StudentID = studentID
			_, err := f.svc.Reserve(context.Background(), req)
			mu.Lock()
			defer mu.Unlock()
			var ce *ConflictError
			switch {
			case err == nil:
				wins++
			case errors.As(err, &ce):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(s.ID)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if conflicts != attempts-1 {
		t.Fatalf("expected %d conflicts, got %d", attempts-1, conflicts)
	}

	booked, err := f.repo.ActiveAppointmentsFor(context.Background(), f.psych.ID, tomorrow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(booked) != 1 {
		t.Fatalf("expected one active appointment, got %d", len(booked))
	}
}

func TestReserve_EventFailureDoesNotRollBack(t *testing.T) {
	f := newFixtureWith(t, func(m *MemoryRepository) Repository { return failingOutbox{m} }, nil)

	appt, err := f.svc.Reserve(context.Background(), f.request(tomorrow, "09:30"))
	if err != nil {
		t.Fatalf("expected booking to succeed despite event failure, got %v", err)
	}
	stored, err := f.repo.GetAppointmentByID(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("expected appointment persisted, got %v", err)
	}
	if stored.Status != StatusPending {
		t.Errorf("expected pending, got %s", stored.Status)
	}
}

func TestReserve_LockBusy(t *testing.T) {
	locker := &fakeLocker{err: redisclient.ErrLockNotAcquired}
	f := newFixtureWith(t, nil, locker)

	_, err := f.svc.Reserve(context.Background(), f.request(tomorrow, "09:30"))
	expectConflict(t, err, SlotBusy)
	if locker.calls != 1 {
		t.Errorf("expected one lock attempt, got %d", locker.calls)
	}
	if booked, _ := f.repo.ActiveAppointmentsFor(context.Background(), f.psych.ID, tomorrow); len(booked) != 0 {
		t.Errorf("expected nothing booked, got %v", booked)
	}
}

func TestReserve_LockUnavailableFallsBack(t *testing.T) {
	locker := &fakeLocker{err: fmt.Errorf("%w: connection refused", redisclient.ErrLockUnavailable)}
	f := newFixtureWith(t, nil, locker)

	appt, err := f.svc.Reserve(context.Background(), f.request(tomorrow, "09:30"))
	if err != nil {
		t.Fatalf("expected booking without lock to succeed, got %v", err)
	}
	if appt.Status != StatusPending {
		t.Errorf("expected pending, got %s", appt.Status)
	}
}

func TestReserve_LockWrapsInsert(t *testing.T) {
	locker := &fakeLocker{}
	f := newFixtureWith(t, nil, locker)
	f.reserve(t, tomorrow, "09:30")
	if locker.calls != 1 {
		t.Fatalf("expected one lock attempt, got %d", locker.calls)
	}
}

func TestBook_ActorRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.request(tomorrow, "08:00")
	req.StudentID = uuid.Nil
	appt, err := f.svc.Book(ctx, f.actor(f.student), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.StudentID != f.student.ID {
		t.Errorf("expected student defaulted to actor, got %v", appt.StudentID)
	}

	req = f.request(tomorrow, "08:45")
	req.StudentID = f.otherStudent.ID
	var pe *PermissionError
	if _, err := f.svc.Book(ctx, f.actor(f.student), req); !errors.As(err, &pe) {
		t.Fatalf("expected PermissionError booking for someone else, got %v", err)
	}

	if _, err := f.svc.Book(ctx, f.actor(f.psych), f.request(tomorrow, "08:45")); !errors.As(err, &pe) {
		t.Fatalf("expected PermissionError for psychologist, got %v", err)
	}

	if _, err := f.svc.Book(ctx, f.actor(f.admin), req); err != nil {
		t.Fatalf("expected admin booking to succeed, got %v", err)
	}
}
