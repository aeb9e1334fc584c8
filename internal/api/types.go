package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/counseling-scheduler/internal/appointment"
	"github.com/hackgods/counseling-scheduler/internal/schedule"
)

type CreateAppointmentRequest struct {
	StudentID      string          `json:"student_id" validate:"omitempty,uuid"`
	StudentEmail   string          `json:"student_email" validate:"omitempty,email"`
	PsychologistID string          `json:"psychologist_id" validate:"required,uuid"`
	Date           string          `json:"date" validate:"required"`
	Time           string          `json:"time" validate:"required"`
	Reason         string          `json:"reason" validate:"max=2000"`
	Notes          *string         `json:"notes" validate:"omitempty,max=4000"`
	Intake         json.RawMessage `json:"intake"`
}

type RejectRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

type RescheduleRequest struct {
	Date string `json:"date" validate:"required"`
	Time string `json:"time" validate:"required"`
}

type CreateBlockRequest struct {
	Date      string  `json:"date" validate:"required"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	Reason    *string `json:"reason" validate:"omitempty,max=500"`
}

type AppointmentResponse struct {
	ID              uuid.UUID          `json:"id"`
	StudentID       uuid.UUID          `json:"student_id"`
	PsychologistID  uuid.UUID          `json:"psychologist_id"`
	Date            schedule.Date      `json:"date"`
	Time            schedule.TimeOfDay `json:"time"`
	DurationMinutes int                `json:"duration_minutes"`
	Status          string             `json:"status"`
	Reason          string             `json:"reason,omitempty"`
	Notes           *string            `json:"notes,omitempty"`
	Intake          json.RawMessage    `json:"intake,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

type ListAppointmentsResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

type SlotResponse struct {
	Time      schedule.TimeOfDay `json:"time"`
	Available bool               `json:"available"`
	State     string             `json:"state,omitempty"`
}

type AvailabilityResponse struct {
	Date           schedule.Date        `json:"date"`
	Slots          []SlotResponse       `json:"slots"`
	AvailableSlots []schedule.TimeOfDay `json:"available_slots"`
	BlockedSlots   []schedule.TimeOfDay `json:"blocked_slots"`
	IsDayBlocked   bool                 `json:"is_day_blocked"`
}

type BlockResponse struct {
	ID             uuid.UUID           `json:"id"`
	PsychologistID uuid.UUID           `json:"psychologist_id"`
	Date           schedule.Date       `json:"date"`
	StartTime      *schedule.TimeOfDay `json:"start_time,omitempty"`
	EndTime        *schedule.TimeOfDay `json:"end_time,omitempty"`
	WholeDay       bool                `json:"whole_day"`
	Reason         *string             `json:"reason,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		StudentID:       a.StudentID,
		PsychologistID:  a.PsychologistID,
		Date:            a.Date,
		Time:            a.Time,
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		Reason:          a.Reason,
		Notes:           a.Notes,
		Intake:          a.Intake,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toAvailabilityResponse(day *appointment.DayAvailability) AvailabilityResponse {
	resp := AvailabilityResponse{
		Date:           day.Date,
		Slots:          make([]SlotResponse, 0, len(day.Slots)),
		AvailableSlots: day.AvailableTimes(),
		BlockedSlots:   day.UnavailableTimes(),
		IsDayBlocked:   day.DayBlocked,
	}
	for _, s := range day.Slots {
		slot := SlotResponse{Time: s.Time, Available: s.Available}
		if !s.Available {
			slot.State = string(s.State)
		}
		resp.Slots = append(resp.Slots, slot)
	}
	return resp
}

func toBlockResponse(b *appointment.UnavailabilityBlock) BlockResponse {
	return BlockResponse{
		ID:             b.ID,
		PsychologistID: b.PsychologistID,
		Date:           b.Date,
		StartTime:      b.StartTime,
		EndTime:        b.EndTime,
		WholeDay:       b.IsWholeDay(),
		Reason:         b.Reason,
		CreatedAt:      b.CreatedAt,
	}
}
