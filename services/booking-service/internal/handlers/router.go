package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/md-rashed-zaman/groomly/libs/httpx"
	"github.com/md-rashed-zaman/groomly/libs/runtime"
)

type RouterConfig struct {
	Logger  *slog.Logger
	Booking *BookingHandler
	Admin   *AdminHandler
	// RateLimit guards the customer facing routes. Nil disables limiting.
	RateLimit      httpx.Middleware
	ReadyChecks    []runtime.ReadyCheck
	MetricsHandler http.Handler
	CORS           httpx.CORSPolicy
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httpx.WithRequestID)
	r.Use(httpx.WithAccessLog(cfg.Logger))
	r.Use(httpx.WithCORS(cfg.CORS))

	r.Get("/healthz", runtime.HealthHandler)
	r.Method(http.MethodGet, "/readyz", runtime.ReadyHandler(cfg.ReadyChecks...))
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(requireTenant)
		api.Use(httpx.WithBodyLimit(cfg.MaxBodyBytes))
		api.Use(httpx.WithTimeout(cfg.RequestTimeout))

		api.Group(func(public chi.Router) {
			if cfg.RateLimit != nil {
				public.Use(cfg.RateLimit)
			}
			b := cfg.Booking
			public.Get("/services/{serviceID}/slots", b.Slots)
			public.Get("/availability", b.Availability)
			public.Post("/appointments", b.Create)
			public.Get("/appointments", b.List)
			public.Route("/appointments/{appointmentID}", func(appt chi.Router) {
				appt.Get("/", b.Get)
				appt.Get("/history", b.History)
				appt.Post("/confirm", b.Confirm)
				appt.Post("/cancel", b.Cancel)
				appt.Post("/reschedule", b.Reschedule)
				appt.Post("/status", b.UpdateStatus)
				appt.Post("/arrival", b.Arrival)
				appt.Post("/payment", b.Payment)
				appt.Post("/review", b.Review)
			})
		})

		if cfg.Admin != nil {
			api.Route("/admin", func(admin chi.Router) {
				a := cfg.Admin
				admin.Get("/services", a.ListServices)
				admin.Post("/services", a.SaveService)
				admin.Get("/services/{serviceID}", a.GetService)
				admin.Put("/services/{serviceID}", a.SaveService)

				admin.Get("/windows", a.ListWindows)
				admin.Post("/windows", a.SaveWindow)
				admin.Put("/windows/{windowID}", a.SaveWindow)
				admin.Delete("/windows/{windowID}", a.DeleteWindow)

				admin.Get("/blocked-dates", a.ListBlockedDates)
				admin.Post("/blocked-dates", a.AddBlockedDate)
				admin.Delete("/blocked-dates/{blockedID}", a.DeleteBlockedDate)
			})
		}
	})
	return r
}
