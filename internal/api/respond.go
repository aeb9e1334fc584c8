package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hackgods/counseling-scheduler/internal/appointment"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func writeFieldError(w http.ResponseWriter, status int, code, field, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details, Field: field})
}

var errEmptyBody = errors.New("request body is empty")

// decodeJSON reads a single JSON object into dst. With optional set an empty
// body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	err := dec.Decode(dst)
	if errors.Is(err, io.EOF) {
		if optional {
			return true
		}
		err = errEmptyBody
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

// validateRequest runs struct validation and writes a 422 for the first
// failing field.
func validateRequest(w http.ResponseWriter, req any) bool {
	err := validate.Struct(req)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		writeFieldError(w, http.StatusUnprocessableEntity, "invalid_request", fe.Field(),
			fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag()))
		return false
	}
	writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	return false
}

// handleServiceError maps the scheduling error taxonomy onto HTTP.
func handleServiceError(w http.ResponseWriter, err error) {
	var (
		validationErr *appointment.ValidationError
		notFoundErr   *appointment.NotFoundError
		conflictErr   *appointment.ConflictError
		transitionErr *appointment.InvalidTransitionError
		permissionErr *appointment.PermissionError
	)

	switch {
	case errors.As(err, &validationErr):
		writeFieldError(w, http.StatusUnprocessableEntity, string(validationErr.Kind), validationErr.Field, validationErr.Message)
	case errors.As(err, &notFoundErr):
		entity := strings.ReplaceAll(notFoundErr.Entity, " ", "_")
		if notFoundErr.Cause == appointment.CauseInactive {
			writeError(w, http.StatusForbidden, entity+"_inactive", err.Error())
			return
		}
		writeError(w, http.StatusNotFound, entity+"_not_found", err.Error())
	case errors.As(err, &conflictErr):
		writeError(w, http.StatusConflict, string(conflictErr.Kind), err.Error())
	case errors.As(err, &transitionErr):
		writeError(w, http.StatusUnprocessableEntity, "invalid_transition", err.Error())
	case errors.As(err, &permissionErr):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// outcome labels an operation result for metrics.
func outcome(err error) string {
	var (
		validationErr *appointment.ValidationError
		notFoundErr   *appointment.NotFoundError
		conflictErr   *appointment.ConflictError
		transitionErr *appointment.InvalidTransitionError
		permissionErr *appointment.PermissionError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &validationErr):
		return "invalid"
	case errors.As(err, &notFoundErr):
		return "not_found"
	case errors.As(err, &conflictErr):
		return string(conflictErr.Kind)
	case errors.As(err, &transitionErr):
		return "invalid_transition"
	case errors.As(err, &permissionErr):
		return "forbidden"
	default:
		return "error"
	}
}
