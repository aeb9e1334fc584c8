package schedule

import (
	"errors"
	"time"
)

var (
	ErrNonWorkingDay = errors.New("date is not a working day")
	ErrPastDate      = errors.New("date is in the past")
	ErrBeyondHorizon = errors.New("date is beyond the booking horizon")
)

// Calendar turns dates into the canonical slot start times of a Policy.
// "Today" is always derived from the injected Clock in the policy location.
type Calendar struct {
	policy Policy
	clock  Clock
}

func NewCalendar(policy Policy, clock Clock) *Calendar {
	if clock == nil {
		clock = SystemClock
	}
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	return &Calendar{policy: policy, clock: clock}
}

func (c *Calendar) Policy() Policy { return c.policy }

// Today returns the current date in the policy location.
func (c *Calendar) Today() Date {
	return DateOf(c.clock.Now().In(c.policy.Location))
}

// CheckDate reports which booking rule, if any, the date violates.
func (c *Calendar) CheckDate(d Date) error {
	if !c.policy.isWorkingDay(d.Weekday()) {
		return ErrNonWorkingDay
	}
	today := c.Today()
	if d.Before(today) {
		return ErrPastDate
	}
	if d.DaysSince(today) > c.policy.BookingHorizonDays {
		return ErrBeyondHorizon
	}
	return nil
}

// GenerateSlots returns the ordered slot start times for d, or nil when d
// cannot be booked at all.
func (c *Calendar) GenerateSlots(d Date) []TimeOfDay {
	if c.CheckDate(d) != nil {
		return nil
	}
	var slots []TimeOfDay
	for t := c.policy.DayStart; t < c.policy.DayEnd; t = t.Add(c.policy.SlotDuration) {
		slots = append(slots, t)
	}
	return slots
}

// IsSlot reports whether t is one of the generated slots for d.
func (c *Calendar) IsSlot(d Date, t TimeOfDay) bool {
	for _, s := range c.GenerateSlots(d) {
		if s == t {
			return true
		}
	}
	return false
}

// ApplySameDayCutoff drops slots of today that should no longer be offered.
// After the cutoff nothing of today is offered; before it, only slots that
// start after the current wall-clock time remain. Other dates are returned as is.
// This is display filtering only and is not enforced at booking time.
func (c *Calendar) ApplySameDayCutoff(d Date, slots []TimeOfDay) []TimeOfDay {
	now := c.clock.Now().In(c.policy.Location)
	if d != DateOf(now) {
		return slots
	}
	current := TimeOfDayOf(now)
	if c.policy.SameDayCutoff != NoCutoff && current > c.policy.SameDayCutoff {
		return nil
	}
	kept := make([]TimeOfDay, 0, len(slots))
	for _, s := range slots {
		if s > current {
			kept = append(kept, s)
		}
	}
	return kept
}
