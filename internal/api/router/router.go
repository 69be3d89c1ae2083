package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-frontdesk/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-frontdesk/internal/http/middleware"
	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Health             http.Handler
	Appointments       *handlers.AppointmentsHandler
	Patient            *handlers.PatientHandler
	Capacity           *handlers.CapacityHandler
	Dashboard          *handlers.DashboardHandler
	Auth               *handlers.AuthHandler
	StaffVerifier      httpmiddleware.StaffVerifier
	Media              http.Handler
	MetricsHandler     http.Handler
	MetricsToken       string
	CORSAllowedOrigins []string

	// Per-client limits on the public patient and login endpoints.
	PatientRateLimit float64
	PatientRateBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (health checks, metrics, media)
	r.Group(func(public chi.Router) {
		if cfg.Health != nil {
			public.Handle("/health", cfg.Health)
			public.Handle("/api/health", cfg.Health)
		}
		if cfg.MetricsHandler != nil {
			public.With(requireMetricsToken(cfg.MetricsToken)).Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Media != nil {
			public.Handle("/uploads/*", cfg.Media)
		}
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(noStore)

		// Patient self-service and staff login are rate limited per client,
		// each in its own scope.
		limitPatient := passthrough
		limitLogin := passthrough
		if cfg.PatientRateLimit > 0 {
			limiter := httpmiddleware.NewLimiter(cfg.PatientRateLimit, cfg.PatientRateBurst)
			limitPatient = limiter.Scope("patient")
			limitLogin = limiter.Scope("login")
		}
		if cfg.Patient != nil {
			api.With(limitPatient).Route("/patient", func(p chi.Router) {
				p.Get("/appointments", cfg.Patient.Resolve)
				p.Get("/session", cfg.Patient.Session)
				p.Get("/availability", cfg.Patient.Availability)
				p.Post("/book", cfg.Patient.Book)
			})
		}
		if cfg.Auth != nil {
			api.With(limitLogin).Post("/login/staff", cfg.Auth.Login)
			api.Post("/logout", cfg.Auth.Logout)
		}

		// Staff routes (token from Authorization header or session cookie)
		api.Group(func(staff chi.Router) {
			staff.Use(httpmiddleware.StaffAuth(cfg.StaffVerifier))
			if cfg.Auth != nil {
				staff.Get("/auth/verify", cfg.Auth.Verify)
			}
			if cfg.Appointments != nil {
				staff.Route("/appointments", func(a chi.Router) {
					a.Get("/", cfg.Appointments.List)
					a.Post("/", cfg.Appointments.Create)
					a.Get("/search", cfg.Appointments.Search)
					a.Get("/export", cfg.Appointments.Export)
					a.Put("/{id}", cfg.Appointments.Update)
					a.Delete("/{id}", cfg.Appointments.Delete)
					a.Get("/{id}/history", cfg.Appointments.History)
				})
			}
			if cfg.Capacity != nil {
				staff.Route("/capacity", func(c chi.Router) {
					c.Get("/", cfg.Capacity.List)
					c.Get("/effective", cfg.Capacity.Effective)
					c.Put("/{day}", cfg.Capacity.Put)
					c.Delete("/{day}", cfg.Capacity.Delete)
				})
			}
			if cfg.Dashboard != nil {
				staff.Get("/dashboard", cfg.Dashboard.Summary)
				staff.Get("/dashboard/stats", cfg.Dashboard.Stats)
			}
		})
	})

	return r
}

func passthrough(next http.Handler) http.Handler { return next }
