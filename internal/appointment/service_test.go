package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/hackgods/counseling-scheduler/internal/redis"
	"github.com/hackgods/counseling-scheduler/internal/schedule"
)

// Monday 2025-03-10, 07:00 UTC.
var monday = time.Date(2025, time.March, 10, 7, 0, 0, 0, time.UTC)

var (
	today    = schedule.NewDate(2025, time.March, 10)
	tomorrow = schedule.NewDate(2025, time.March, 11)
)

type fixture struct {
	repo         *MemoryRepository
	svc          *Service
	student      User
	otherStudent User
	psych        User
	otherPsych   User
	admin        User
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, nil, nil)
}

// newFixtureWith builds a service over repo (nil means the fixture's memory
// repository) with an optional locker.
func newFixtureWith(t *testing.T, wrap func(*MemoryRepository) Repository, locker redisclient.Locker) *fixture {
	t.Helper()

	f := &fixture{
		repo:         NewMemoryRepository(),
		student:      User{ID: uuid.New(), Name: "Ana Student", Email: "ana@uni.test", Role: RoleStudent, IsActive: true},
		otherStudent: User{ID: uuid.New(), Name: "Ben Student", Email: "ben@uni.test", Role: RoleStudent, IsActive: true},
		psych:        User{ID: uuid.New(), Name: "Dr. Cole", Email: "cole@uni.test", Role: RolePsychologist, IsActive: true},
		otherPsych:   User{ID: uuid.New(), Name: "Dr. Diaz", Email: "diaz@uni.test", Role: RolePsychologist, IsActive: true},
		admin:        User{ID: uuid.New(), Name: "Eve Admin", Email: "eve@uni.test", Role: RoleAdmin, IsActive: true},
	}
	for _, u := range []User{f.student, f.otherStudent, f.psych, f.otherPsych, f.admin} {
		f.repo.PutUser(u)
	}

	var repo Repository = f.repo
	if wrap != nil {
		repo = wrap(f.repo)
	}
	cal := schedule.NewCalendar(schedule.DefaultPolicy(), schedule.FixedClock(monday))
	f.svc = NewService(repo, cal, locker, zap.NewNop())
	return f
}

func (f *fixture) actor(u User) Actor { return Actor{ID: u.ID, Role: u.Role} }

func (f *fixture) request(date schedule.Date, at string) ReserveRequest {
	return ReserveRequest{
		StudentID:      f.student.ID,
		PsychologistID: f.psych.ID,
		Date:           date,
		Time:           schedule.MustParseTimeOfDay(at),
		Reason:         "exam stress",
	}
}

func (f *fixture) reserve(t *testing.T, date schedule.Date, at string) *Appointment {
	t.Helper()
	appt, err := f.svc.Reserve(context.Background(), f.request(date, at))
	if err != nil {
		t.Fatalf("unexpected error reserving %s %s: %v", date, at, err)
	}
	return appt
}

func (f *fixture) eventTypes() []string {
	var out []string
	for _, ev := range f.repo.Events() {
		out = append(out, ev.EventType)
	}
	return out
}

func tod(s string) *schedule.TimeOfDay {
	t := schedule.MustParseTimeOfDay(s)
	return &t
}

func slotByTime(t *testing.T, day *DayAvailability, at string) SlotAvailability {
	t.Helper()
	want := schedule.MustParseTimeOfDay(at)
	for _, s := range day.Slots {
		if s.Time == want {
			return s
		}
	}
	t.Fatalf("slot %s not in %v", at, day.Slots)
	return SlotAvailability{}
}

func TestAvailability_FreeDay(t *testing.T) {
	f := newFixture(t)

	day, err := f.svc.Availability(context.Background(), f.psych.ID, tomorrow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if day.DayBlocked {
		t.Fatal("expected day not blocked")
	}
	if len(day.Slots) != 8 {
		t.Fatalf("expected 8 slots, got %d", len(day.Slots))
	}
	if got := len(day.AvailableTimes()); got != 8 {
		t.Errorf("expected 8 available, got %d", got)
	}
}

func TestAvailability_WholeDayBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.repo.CreateBlock(ctx, &UnavailabilityBlock{PsychologistID: f.psych.ID, Date: today}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	day, err := f.svc.Availability(ctx, f.psych.ID, today)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !day.DayBlocked {
		t.Error("expected day blocked")
	}
	if len(day.Slots) != 0 {
		t.Errorf("expected no slots, got %v", day.Slots)
	}

	// other psychologists are unaffected
	other, err := f.svc.Availability(ctx, f.otherPsych.ID, today)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other.DayBlocked || len(other.AvailableTimes()) != 8 {
		t.Errorf("expected other psychologist fully available, got %+v", other)
	}
}

func TestAvailability_PartialBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	block := &UnavailabilityBlock{PsychologistID: f.psych.ID, Date: tomorrow, StartTime: tod("10:00"), EndTime: tod("11:30")}
	if err := f.repo.CreateBlock(ctx, block); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	day, err := f.svc.Availability(ctx, f.psych.ID, tomorrow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, at := range []string{"10:15", "11:00"} {
		if s := slotByTime(t, day, at); s.Available || s.State != SlotBlocked {
			t.Errorf("expected %s blocked, got %+v", at, s)
		}
	}
	for _, at := range []string{"08:00", "08:45", "09:30", "11:45", "12:30", "13:15"} {
		if s := slotByTime(t, day, at); !s.Available {
			t.Errorf("expected %s available", at)
		}
	}
}

func TestAvailability_BookedThenRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.reserve(t, tomorrow, "09:30")

	day, err := f.svc.Availability(ctx, f.psych.ID, tomorrow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s := slotByTime(t, day, "09:30"); s.Available || s.State != SlotBooked {
		t.Fatalf("expected 09:30 booked, got %+v", s)
	}

	if _, err := f.svc.Reject(ctx, f.actor(f.psych), appt.ID, "schedule conflict"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	day, err = f.svc.Availability(ctx, f.psych.ID, tomorrow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s := slotByTime(t, day, "09:30"); !s.Available {
		t.Fatalf("expected 09:30 available after rejection, got %+v", s)
	}
}

func TestAvailability_BlockedAndBookedIsBlocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.reserve(t, tomorrow, "10:15")
	if err := f.repo.CreateBlock(ctx, &UnavailabilityBlock{PsychologistID: f.psych.ID, Date: tomorrow, StartTime: tod("10:00"), EndTime: tod("11:00")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	day, err := f.svc.Availability(ctx, f.psych.ID, tomorrow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s := slotByTime(t, day, "10:15"); s.Available || s.State != SlotBlocked {
		t.Fatalf("expected 10:15 unavailable as blocked, got %+v", s)
	}
}

func TestAvailability_WeekendAndBeyondHorizon(t *testing.T) {
	f := newFixture(t)
	for _, d := range []schedule.Date{schedule.NewDate(2025, time.March, 15), schedule.NewDate(2025, time.March, 25)} {
		day, err := f.svc.Availability(context.Background(), f.psych.ID, d)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !day.DayBlocked || len(day.Slots) != 0 {
			t.Errorf("%s: expected blocked empty day, got %+v", d, day)
		}
	}
}

func TestAvailability_SameDayCutoff(t *testing.T) {
	f := newFixture(t)
	late := schedule.NewCalendar(schedule.DefaultPolicy(), schedule.FixedClock(monday.Add(6*time.Hour+15*time.Minute)))
	svc := NewService(f.repo, late, nil, zap.NewNop())

	day, err := svc.Availability(context.Background(), f.psych.ID, today)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !day.DayBlocked {
		t.Fatalf("expected today blocked after cutoff, got %+v", day)
	}
}

func TestAvailability_UnknownOrInactivePsychologist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Availability(ctx, uuid.New(), tomorrow)
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Cause != CauseMissing {
		t.Fatalf("expected missing NotFoundError, got %v", err)
	}

	_, err = f.svc.Availability(ctx, f.student.ID, tomorrow)
	if !errors.As(err, &nf) || nf.Cause != CauseWrongRole {
		t.Fatalf("expected wrong_role NotFoundError, got %v", err)
	}

	inactive := f.otherPsych
	inactive.IsActive = false
	f.repo.PutUser(inactive)
	_, err = f.svc.Availability(ctx, inactive.ID, tomorrow)
	if !errors.As(err, &nf) || nf.Cause != CauseInactive {
		t.Fatalf("expected inactive NotFoundError, got %v", err)
	}
}

func TestGetAppointment_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetAppointment(context.Background(), uuid.New())
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestListAppointments_FiltersAndLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.reserve(t, tomorrow, "08:00")
	f.reserve(t, tomorrow, "08:45")
	f.reserve(t, schedule.NewDate(2025, time.March, 12), "08:00")

	if _, err := f.svc.Approve(ctx, f.actor(f.psych), first.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all, err := f.svc.ListAppointments(ctx, ListFilter{StudentID: &f.student.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 appointments, got %d", len(all))
	}
	if all[0].ID != first.ID {
		t.Errorf("expected ordering by date and time, got %v first", all[0].ID)
	}

	confirmed := StatusConfirmed
	got, err := f.svc.ListAppointments(ctx, ListFilter{Status: &confirmed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != first.ID {
		t.Errorf("expected only the confirmed appointment, got %v", got)
	}

	from := schedule.NewDate(2025, time.March, 12)
	got, err = f.svc.ListAppointments(ctx, ListFilter{From: &from})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 appointment from %s, got %d", from, len(got))
	}

	got, err = f.svc.ListAppointments(ctx, ListFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected page of 1, got %d", len(got))
	}
}

func TestResolveStudentEmail(t *testing.T) {
	f := newFixture(t)
	id, err := f.svc.ResolveStudentEmail(context.Background(), f.student.Email)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != f.student.ID {
		t.Errorf("expected %v, got %v", f.student.ID, id)
	}

	_, err = f.svc.ResolveStudentEmail(context.Background(), "nobody@uni.test")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestViewAppointment_Participants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.reserve(t, tomorrow, "09:30")

	for _, u := range []User{f.student, f.psych, f.admin} {
		if _, err := f.svc.ViewAppointment(ctx, f.actor(u), appt.ID); err != nil {
			t.Errorf("%s: unexpected error: %v", u.Role, err)
		}
	}
	for _, u := range []User{f.otherStudent, f.otherPsych} {
		_, err := f.svc.ViewAppointment(ctx, f.actor(u), appt.ID)
		var pe *PermissionError
		if !errors.As(err, &pe) {
			t.Errorf("%s: expected PermissionError, got %v", u.Name, err)
		}
	}
}

func TestListAppointmentsFor_ScopesToActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.reserve(t, tomorrow, "08:00")
	req := f.request(tomorrow, "08:45")
	req.StudentID = f.otherStudent.ID
	req.PsychologistID = f.otherPsych.ID
	if _, err := f.svc.Reserve(ctx, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mine, err := f.svc.ListAppointmentsFor(ctx, f.actor(f.student), ListFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mine) != 1 || mine[0].StudentID != f.student.ID {
		t.Errorf("expected only own appointment, got %v", mine)
	}

	psychAppts, err := f.svc.ListAppointmentsFor(ctx, f.actor(f.otherPsych), ListFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(psychAppts) != 1 || psychAppts[0].PsychologistID != f.otherPsych.ID {
		t.Errorf("expected only own schedule, got %v", psychAppts)
	}

	all, err := f.svc.ListAppointmentsFor(ctx, f.actor(f.admin), ListFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected admin to see 2, got %d", len(all))
	}

	_, err = f.svc.ListAppointmentsFor(ctx, f.actor(f.student), ListFilter{StudentID: &f.otherStudent.ID})
	var pe *PermissionError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
}
