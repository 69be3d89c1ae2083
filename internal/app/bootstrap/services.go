package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-frontdesk/internal/api/router"
	"github.com/wolfman30/clinic-frontdesk/internal/appointments"
	"github.com/wolfman30/clinic-frontdesk/internal/booking"
	"github.com/wolfman30/clinic-frontdesk/internal/capacity"
	appconfig "github.com/wolfman30/clinic-frontdesk/internal/config"
	"github.com/wolfman30/clinic-frontdesk/internal/dashboard"
	"github.com/wolfman30/clinic-frontdesk/internal/http/handlers"
	"github.com/wolfman30/clinic-frontdesk/internal/identity"
	"github.com/wolfman30/clinic-frontdesk/internal/media"
	"github.com/wolfman30/clinic-frontdesk/internal/observability/metrics"
	"github.com/wolfman30/clinic-frontdesk/internal/staffauth"
	"github.com/wolfman30/clinic-frontdesk/internal/tokens"
	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

// Services are the domain components shared by the HTTP layer.
type Services struct {
	Booking   *booking.Service
	Lifecycle *appointments.Controller
	Resolver  *identity.Resolver
	Ledger    *capacity.Ledger
	Dashboard *dashboard.Service
	Staff     *staffauth.Authenticator
	Media     media.Store
	Metrics   *metrics.FrontDeskMetrics
}

// BuildServices wires the booking, lifecycle, identity and dashboard services over stores.
func BuildServices(cfg *appconfig.Config, stores Stores, mediaStore media.Store, m *metrics.FrontDeskMetrics, logger *logging.Logger) (*Services, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if stores.Appointments == nil || stores.Capacity == nil || stores.Tickets == nil {
		return nil, fmt.Errorf("bootstrap: stores are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	loc := cfg.ClinicLocation()
	if cfg.StaffTokenSecret == "" {
		logger.Warn("STAFF_TOKEN_SECRET not set; staff login and patient sessions are disabled")
	}

	ledger := capacity.NewLedger(stores.Capacity, cfg.DefaultDailyCapacity)
	svc := &Services{
		Ledger:  ledger,
		Media:   mediaStore,
		Metrics: m,
		Booking: booking.NewService(stores.Appointments, ledger, stores.Tickets, mediaStore, logger.Component("booking")).
			WithAudit(stores.Audit).
			WithMetrics(m).
			WithLocation(loc).
			WithHorizon(cfg.BookingHorizonDays),
		Lifecycle: appointments.NewController(stores.Appointments, logger.Component("appointments")).
			WithAudit(stores.Audit).
			WithMetrics(m).
			WithLocation(loc).
			WithCapacity(func(ctx context.Context, date string) (int, error) {
				limit, err := ledger.Effective(ctx, date)
				return limit.Capacity, err
			}),
		Resolver: identity.NewResolver(stores.Appointments, logger.Component("identity")).
			WithSigner(tokens.NewSigner(cfg.StaffTokenSecret, tokens.AudiencePatient, cfg.PatientTokenTTL)).
			WithMetrics(m),
		Staff: staffauth.New(cfg.StaffUsername, cfg.StaffPasswordHash,
			tokens.NewSigner(cfg.StaffTokenSecret, tokens.AudienceStaff, cfg.StaffTokenTTL), logger.Component("staffauth")),
	}
	if stores.Aggregator != nil {
		svc.Dashboard = dashboard.NewService(stores.Aggregator, stores.Appointments, ledger, logger.Component("dashboard")).
			WithLocation(loc)
	}
	return svc, nil
}

// BuildHealthChecks pings whichever backends are connected.
func BuildHealthChecks(pool *pgxpool.Pool, redisClient *redis.Client) map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{}
	if pool != nil {
		checks["postgres"] = func(ctx context.Context) error { return pool.Ping(ctx) }
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	return checks
}

// RouterConfig assembles the HTTP handlers for svc.
func RouterConfig(cfg *appconfig.Config, svc *Services, stores Stores, checks map[string]handlers.HealthCheck, metricsHandler http.Handler, logger *logging.Logger) *router.Config {
	patient := handlers.NewPatientHandler(svc.Resolver, svc.Booking, logger)
	if cfg.MaxUploadBytes > 0 {
		patient = patient.WithMaxUpload(cfg.MaxUploadBytes)
	}
	rc := &router.Config{
		Logger:             logger,
		Health:             handlers.NewHealthHandler(checks, logger),
		Appointments:       handlers.NewAppointmentsHandler(stores.Appointments, svc.Lifecycle, svc.Booking, stores.Audit, logger),
		Patient:            patient,
		Capacity:           handlers.NewCapacityHandler(svc.Ledger, stores.Audit, svc.Metrics, logger),
		Auth:               handlers.NewAuthHandler(svc.Staff, cfg.SecureCookies(), logger),
		StaffVerifier:      svc.Staff,
		MetricsHandler:     metricsHandler,
		MetricsToken:       cfg.MetricsToken,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		PatientRateLimit:   cfg.PatientRateLimit,
		PatientRateBurst:   cfg.PatientRateBurst,
	}
	if svc.Dashboard != nil {
		rc.Dashboard = handlers.NewDashboardHandler(svc.Dashboard, logger)
	}
	if svc.Media != nil {
		rc.Media = media.NewHandler(svc.Media, logger)
	}
	return rc
}
