package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hackgods/counseling-scheduler/internal/appointment"
	"github.com/hackgods/counseling-scheduler/internal/metrics"
)

type RouterConfig struct {
	Service        *appointment.Service
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	Checks         []Check
	RequestTimeout time.Duration
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(middleware.Recoverer)
	r.Use(cfg.Metrics.Middleware)

	health := NewHealthHandler(cfg.Env, cfg.Version, cfg.Checks...)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	svc := cfg.Service
	m := cfg.Metrics

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		r.Use(ActorMiddleware)

		// public reads
		r.Get("/psychologists/{id}/availability", availabilityHandler(svc))
		r.Get("/psychologists/{id}/unavailability", listBlocksHandler(svc))

		r.Group(func(r chi.Router) {
			r.Use(RequireActor)

			r.Post("/psychologists/{id}/unavailability", createBlockHandler(svc))
			r.Delete("/psychologists/{id}/unavailability/{blockID}", deleteBlockHandler(svc))

			r.Post("/appointments", createAppointmentHandler(svc, m))
			r.Get("/appointments", listAppointmentsHandler(svc))
			r.Get("/appointments/{id}", getAppointmentHandler(svc))
			r.Patch("/appointments/{id}/approve", approveAppointmentHandler(svc, m))
			r.Patch("/appointments/{id}/reject", rejectAppointmentHandler(svc, m))
			r.Patch("/appointments/{id}/cancel", cancelAppointmentHandler(svc, m))
			r.Patch("/appointments/{id}/complete", completeAppointmentHandler(svc, m))
			r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(svc, m))
		})
	})

	return r
}
