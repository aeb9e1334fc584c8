package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/counseling-scheduler/internal/schedule"
)

// SlotState explains why a slot is unavailable. It is informational only;
// booking decisions are made by Reserve against storage.
type SlotState string

const (
	SlotAvailable SlotState = "available"
	SlotBlocked   SlotState = "blocked"
	SlotBooked    SlotState = "booked"
)

type SlotAvailability struct {
	Time      schedule.TimeOfDay
	Available bool
	State     SlotState
}

type DayAvailability struct {
	Date       schedule.Date
	Slots      []SlotAvailability
	DayBlocked bool
}

// AvailableTimes returns the start times that can currently be booked.
func (d DayAvailability) AvailableTimes() []schedule.TimeOfDay {
	out := make([]schedule.TimeOfDay, 0, len(d.Slots))
	for _, s := range d.Slots {
		if s.Available {
			out = append(out, s.Time)
		}
	}
	return out
}

// UnavailableTimes returns the start times that are blocked or booked.
func (d DayAvailability) UnavailableTimes() []schedule.TimeOfDay {
	out := make([]schedule.TimeOfDay, 0, len(d.Slots))
	for _, s := range d.Slots {
		if !s.Available {
			out = append(out, s.Time)
		}
	}
	return out
}

// Resolver composes the calendar, declared unavailability and the booking
// ledger into a per-slot view. It never locks; results may be stale.
type Resolver struct {
	calendar *schedule.Calendar
	blocks   UnavailabilityStore
	ledger   BookingLedger
}

func NewResolver(calendar *schedule.Calendar, blocks UnavailabilityStore, ledger BookingLedger) *Resolver {
	return &Resolver{calendar: calendar, blocks: blocks, ledger: ledger}
}

func blockedDay(date schedule.Date) *DayAvailability {
	return &DayAvailability{Date: date, Slots: []SlotAvailability{}, DayBlocked: true}
}

func (r *Resolver) Resolve(ctx context.Context, psychologistID uuid.UUID, date schedule.Date) (*DayAvailability, error) {
	allSlots := r.calendar.GenerateSlots(date)
	if len(allSlots) == 0 {
		return blockedDay(date), nil
	}

	blocks, err := r.blocks.BlocksFor(ctx, psychologistID, date)
	if err != nil {
		return nil, fmt.Errorf("load unavailability: %w", err)
	}
	for _, b := range blocks {
		if b.IsWholeDay() {
			return blockedDay(date), nil
		}
	}

	booked, err := r.ledger.ActiveAppointmentsFor(ctx, psychologistID, date)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	bookedAt := make(map[schedule.TimeOfDay]bool, len(booked))
	for _, b := range booked {
		bookedAt[b.Time] = true
	}

	offered := r.calendar.ApplySameDayCutoff(date, allSlots)
	if len(offered) == 0 {
		return blockedDay(date), nil
	}

	day := &DayAvailability{Date: date, Slots: make([]SlotAvailability, 0, len(offered))}
	for _, t := range offered {
		slot := SlotAvailability{Time: t, Available: true, State: SlotAvailable}
		if bookedAt[t] {
			slot.Available = false
			slot.State = SlotBooked
		}
		for _, b := range blocks {
			if b.Covers(t) {
				slot.Available = false
				slot.State = SlotBlocked
				break
			}
		}
		day.Slots = append(day.Slots, slot)
	}
	return day, nil
}
