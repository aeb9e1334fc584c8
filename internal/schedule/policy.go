package schedule

import (
	"errors"
	"fmt"
	"time"
)

// NoCutoff disables same-day cutoff filtering.
const NoCutoff TimeOfDay = -1

// Policy describes when sessions may start. It is loaded once per process.
type Policy struct {
	WorkingDays        []time.Weekday
	DayStart           TimeOfDay
	DayEnd             TimeOfDay
	SlotDuration       time.Duration
	BookingHorizonDays int
	Location           *time.Location
	SameDayCutoff      TimeOfDay
}

// DefaultPolicy is Monday to Friday, 08:00-14:00, 45 minute sessions, two weeks ahead.
func DefaultPolicy() Policy {
	return Policy{
		WorkingDays:        []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		DayStart:           MustParseTimeOfDay("08:00"),
		DayEnd:             MustParseTimeOfDay("14:00"),
		SlotDuration:       45 * time.Minute,
		BookingHorizonDays: 14,
		Location:           time.UTC,
		SameDayCutoff:      MustParseTimeOfDay("13:10"),
	}
}

func (p Policy) Validate() error {
	if len(p.WorkingDays) == 0 {
		return errors.New("policy: at least one working day is required")
	}
	if !p.DayStart.Valid() || !p.DayEnd.Valid() {
		return errors.New("policy: day start and end must be valid times of day")
	}
	if p.DayStart >= p.DayEnd {
		return fmt.Errorf("policy: day start %s must be before day end %s", p.DayStart, p.DayEnd)
	}
	if p.SlotDuration < time.Minute || p.SlotDuration%time.Minute != 0 {
		return fmt.Errorf("policy: slot duration %s must be a whole number of minutes", p.SlotDuration)
	}
	if p.BookingHorizonDays < 0 {
		return errors.New("policy: booking horizon must not be negative")
	}
	if p.Location == nil {
		return errors.New("policy: location is required")
	}
	if p.SameDayCutoff != NoCutoff && !p.SameDayCutoff.Valid() {
		return errors.New("policy: same-day cutoff must be a valid time of day")
	}
	return nil
}

func (p Policy) isWorkingDay(wd time.Weekday) bool {
	for _, d := range p.WorkingDays {
		if d == wd {
			return true
		}
	}
	return false
}

// Clock supplies the current instant. Tests inject a fixed clock.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// FixedClock always returns t.
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}
