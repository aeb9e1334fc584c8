package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/counseling-scheduler/internal/appointment"
	"github.com/hackgods/counseling-scheduler/internal/metrics"
	"github.com/hackgods/counseling-scheduler/internal/schedule"
)

func uuidParam(w http.ResponseWriter, r *http.Request, name, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseDateField(w http.ResponseWriter, field, raw string) (schedule.Date, bool) {
	d, err := schedule.ParseDate(raw)
	if err != nil {
		writeFieldError(w, http.StatusUnprocessableEntity, string(appointment.InvalidDate), field, field+" must be YYYY-MM-DD")
		return schedule.Date{}, false
	}
	return d, true
}

func parseTimeField(w http.ResponseWriter, field, raw string) (schedule.TimeOfDay, bool) {
	t, err := schedule.ParseTimeOfDay(raw)
	if err != nil {
		writeFieldError(w, http.StatusUnprocessableEntity, string(appointment.InvalidTime), field, field+" must be HH:MM")
		return 0, false
	}
	return t, true
}

func parseOptionalTime(w http.ResponseWriter, field string, raw *string) (*schedule.TimeOfDay, bool) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, true
	}
	t, ok := parseTimeField(w, field, *raw)
	if !ok {
		return nil, false
	}
	return &t, true
}

func mustActor(r *http.Request) appointment.Actor {
	actor, _ := ActorFrom(r.Context())
	return actor
}

func availabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		psychologistID, ok := uuidParam(w, r, "id", "invalid_psychologist_id")
		if !ok {
			return
		}
		date, ok := parseDateField(w, "date", r.URL.Query().Get("date"))
		if !ok {
			return
		}

		day, err := svc.Availability(r.Context(), psychologistID, date)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAvailabilityResponse(day))
	}
}

func createAppointmentHandler(svc *appointment.Service, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req, false) || !validateRequest(w, req) {
			m.ObserveBooking("invalid")
			return
		}

		date, ok := parseDateField(w, "date", req.Date)
		if !ok {
			m.ObserveBooking("invalid")
			return
		}
		at, ok := parseTimeField(w, "time", req.Time)
		if !ok {
			m.ObserveBooking("invalid")
			return
		}

		reserve := appointment.ReserveRequest{
			PsychologistID: uuid.MustParse(req.PsychologistID),
			Date:           date,
			Time:           at,
			Reason:         req.Reason,
			Notes:          req.Notes,
			Intake:         req.Intake,
		}
		switch {
		case req.StudentID != "":
			reserve.StudentID = uuid.MustParse(req.StudentID)
		case req.StudentEmail != "":
			id, err := svc.ResolveStudentEmail(r.Context(), req.StudentEmail)
			if err != nil {
				m.ObserveBooking(outcome(err))
				handleServiceError(w, err)
				return
			}
			reserve.StudentID = id
		}

		appt, err := svc.Book(r.Context(), mustActor(r), reserve)
		if err != nil {
			m.ObserveBooking(outcome(err))
			handleServiceError(w, err)
			return
		}

		m.ObserveBooking("created")
		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := svc.ViewAppointment(r.Context(), mustActor(r), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var f appointment.ListFilter

		for param, dst := range map[string]**uuid.UUID{
			"student_id":      &f.StudentID,
			"psychologist_id": &f.PsychologistID,
		} {
			if v := q.Get(param); v != "" {
				id, err := uuid.Parse(v)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid_"+param, param+" must be a valid UUID")
					return
				}
				*dst = &id
			}
		}

		if v := q.Get("status"); v != "" {
			status := appointment.AppointmentStatus(strings.ToLower(v))
			if !status.Valid() {
				writeError(w, http.StatusBadRequest, "invalid_status", "unknown status "+v)
				return
			}
			f.Status = &status
		}

		for param, dst := range map[string]**schedule.Date{"from": &f.From, "to": &f.To} {
			if v := q.Get(param); v != "" {
				d, ok := parseDateField(w, param, v)
				if !ok {
					return
				}
				*dst = &d
			}
		}

		for param, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
			if v := q.Get(param); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n < 0 {
					writeError(w, http.StatusBadRequest, "invalid_"+param, param+" must be a non-negative integer")
					return
				}
				*dst = n
			}
		}

		f = f.Paged()
		appointments, err := svc.ListAppointmentsFor(r.Context(), mustActor(r), f)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := ListAppointmentsResponse{
			Appointments: make([]AppointmentResponse, 0, len(appointments)),
			Limit:        f.Limit,
			Offset:       f.Offset,
		}
		for i := range appointments {
			resp.Appointments = append(resp.Appointments, toAppointmentResponse(&appointments[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// transitionHandler runs one state transition for the {id} in the path.
func transitionHandler(m *metrics.Metrics, t appointment.Transition, w http.ResponseWriter, r *http.Request, do func(id uuid.UUID) (*appointment.Appointment, error)) {
	id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
	if !ok {
		return
	}

	appt, err := do(id)
	m.ObserveTransition(string(t), outcome(err))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func approveAppointmentHandler(svc *appointment.Service, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		transitionHandler(m, appointment.TransitionApprove, w, r, func(id uuid.UUID) (*appointment.Appointment, error) {
			return svc.Approve(r.Context(), mustActor(r), id)
		})
	}
}

func rejectAppointmentHandler(svc *appointment.Service, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RejectRequest
		if !decodeJSON(w, r, &req, true) || !validateRequest(w, req) {
			return
		}
		transitionHandler(m, appointment.TransitionReject, w, r, func(id uuid.UUID) (*appointment.Appointment, error) {
			return svc.Reject(r.Context(), mustActor(r), id, req.Reason)
		})
	}
}

func cancelAppointmentHandler(svc *appointment.Service, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		transitionHandler(m, appointment.TransitionCancel, w, r, func(id uuid.UUID) (*appointment.Appointment, error) {
			return svc.Cancel(r.Context(), mustActor(r), id)
		})
	}
}

func completeAppointmentHandler(svc *appointment.Service, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		transitionHandler(m, appointment.TransitionComplete, w, r, func(id uuid.UUID) (*appointment.Appointment, error) {
			return svc.Complete(r.Context(), mustActor(r), id)
		})
	}
}

func rescheduleAppointmentHandler(svc *appointment.Service, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}
		var req RescheduleRequest
		if !decodeJSON(w, r, &req, false) || !validateRequest(w, req) {
			return
		}
		date, ok := parseDateField(w, "date", req.Date)
		if !ok {
			return
		}
		at, ok := parseTimeField(w, "time", req.Time)
		if !ok {
			return
		}

		appt, err := svc.Reschedule(r.Context(), mustActor(r), id, date, at)
		m.ObserveTransition(string(appointment.TransitionReschedule), outcome(err))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func listBlocksHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		psychologistID, ok := uuidParam(w, r, "id", "invalid_psychologist_id")
		if !ok {
			return
		}

		var from, to schedule.Date
		q := r.URL.Query()
		if v := q.Get("from"); v != "" {
			if from, ok = parseDateField(w, "from", v); !ok {
				return
			}
		}
		if v := q.Get("to"); v != "" {
			if to, ok = parseDateField(w, "to", v); !ok {
				return
			}
		}

		blocks, err := svc.ListBlocks(r.Context(), psychologistID, from, to)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		resp := make([]BlockResponse, 0, len(blocks))
		for i := range blocks {
			resp = append(resp, toBlockResponse(&blocks[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createBlockHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		psychologistID, ok := uuidParam(w, r, "id", "invalid_psychologist_id")
		if !ok {
			return
		}
		var req CreateBlockRequest
		if !decodeJSON(w, r, &req, false) || !validateRequest(w, req) {
			return
		}
		date, ok := parseDateField(w, "date", req.Date)
		if !ok {
			return
		}
		start, ok := parseOptionalTime(w, "start_time", req.StartTime)
		if !ok {
			return
		}
		end, ok := parseOptionalTime(w, "end_time", req.EndTime)
		if !ok {
			return
		}

		block, err := svc.CreateBlock(r.Context(), mustActor(r), appointment.BlockRequest{
			PsychologistID: psychologistID,
			Date:           date,
			StartTime:      start,
			EndTime:        end,
			Reason:         req.Reason,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toBlockResponse(block))
	}
}

func deleteBlockHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		psychologistID, ok := uuidParam(w, r, "id", "invalid_psychologist_id")
		if !ok {
			return
		}
		blockID, ok := uuidParam(w, r, "blockID", "invalid_block_id")
		if !ok {
			return
		}

		if err := svc.DeleteBlock(r.Context(), mustActor(r), psychologistID, blockID); err != nil {
			handleServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
