package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/wolfman30/clinic-frontdesk/internal/appointments"
	"github.com/wolfman30/clinic-frontdesk/internal/audit"
	"github.com/wolfman30/clinic-frontdesk/internal/booking"
	"github.com/wolfman30/clinic-frontdesk/internal/capacity"
	"github.com/wolfman30/clinic-frontdesk/internal/dashboard"
	"github.com/wolfman30/clinic-frontdesk/internal/http/handlers"
	"github.com/wolfman30/clinic-frontdesk/internal/identity"
	"github.com/wolfman30/clinic-frontdesk/internal/media"
	"github.com/wolfman30/clinic-frontdesk/internal/observability/metrics"
	"github.com/wolfman30/clinic-frontdesk/internal/staffauth"
	"github.com/wolfman30/clinic-frontdesk/internal/tokens"
	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

type testRouter struct {
	handler http.Handler
	media   *media.MemoryStore
	token   string
}

func newTestRouter(t *testing.T, rateLimit float64) *testRouter {
	t.Helper()

	logger := logging.Discard()
	reg := prometheus.NewRegistry()
	m := metrics.NewFrontDeskMetrics(reg)
	repo := appointments.NewInMemoryRepository()
	ledger := capacity.NewLedger(capacity.NewMemoryStore(), 10)
	trail := audit.NewMemoryStore()
	store := media.NewMemoryStore()

	svc := booking.NewService(repo, ledger, booking.NewMemoryAllocator(), store, logger).
		WithAudit(trail).
		WithMetrics(m)
	ctrl := appointments.NewController(repo, logger).WithAudit(trail).WithMetrics(m)
	resolver := identity.NewResolver(repo, logger).
		WithSigner(tokens.NewSigner("patient-key", tokens.AudiencePatient, time.Hour)).
		WithMetrics(m)

	hash, err := bcrypt.GenerateFromPassword([]byte("opensesame"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	auth := staffauth.New("frontdesk", string(hash), tokens.NewSigner("staff-key", tokens.AudienceStaff, time.Hour), logger)
	session, err := auth.Login(context.Background(), "frontdesk", "opensesame")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	cfg := &Config{
		Logger: logger,
		Health: handlers.NewHealthHandler(map[string]handlers.HealthCheck{
			"store": func(context.Context) error { return nil },
		}, logger),
		Appointments:     handlers.NewAppointmentsHandler(repo, ctrl, svc, trail, logger),
		Patient:          handlers.NewPatientHandler(resolver, svc, logger),
		Capacity:         handlers.NewCapacityHandler(ledger, trail, m, logger),
		Dashboard:        handlers.NewDashboardHandler(dashboard.NewService(dashboard.NewRepositoryAggregator(repo), repo, ledger, logger), logger),
		Auth:             handlers.NewAuthHandler(auth, false, logger),
		StaffVerifier:    auth,
		Media:            media.NewHandler(store, logger),
		MetricsHandler:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		PatientRateLimit: rateLimit,
		PatientRateBurst: 2,
	}
	return &testRouter{handler: New(cfg), media: store, token: session.Token}
}

func (tr *testRouter) do(method, target string, body []byte, staff bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if staff {
		req.Header.Set("Authorization", "Bearer "+tr.token)
	}
	rr := httptest.NewRecorder()
	tr.handler.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, 0)

	for _, path := range []string{"/health", "/api/health"} {
		rr := router.do(http.MethodGet, path, nil, false)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected status %d, got %d", path, http.StatusOK, rr.Code)
		}
		var resp struct {
			OK   bool `json:"ok"`
			Data struct {
				Status string `json:"status"`
			} `json:"data"`
		}
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode health response: %v", err)
		}
		if !resp.OK || resp.Data.Status != "ok" {
			t.Errorf("expected status 'ok', got %+v", resp)
		}
	}
}

func TestRouterStaffRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t, 0)

	for _, path := range []string{"/api/appointments", "/api/capacity", "/api/dashboard", "/api/dashboard/stats", "/api/auth/verify"} {
		if rr := router.do(http.MethodGet, path, nil, false); rr.Code != http.StatusForbidden {
			t.Fatalf("%s without token: expected 403, got %d", path, rr.Code)
		}
		rr := router.do(http.MethodGet, path, nil, true)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s with token: expected 200, got %d: %s", path, rr.Code, rr.Body.String())
		}
		if got := rr.Header().Get("Cache-Control"); got != "no-store" {
			t.Fatalf("%s: expected no-store, got %q", path, got)
		}
	}
}

func TestRouterPatientBookingFlow(t *testing.T) {
	router := newTestRouter(t, 0)

	body := []byte(`{"name":"Router Test","phone":"01012345678","national_id":"29801011234567","symptoms":"cough"}`)
	rr := router.do(http.MethodPost, "/api/patient/book", body, false)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = router.do(http.MethodGet, "/api/patient/appointments?national_id=29801011234567", nil, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on lookup, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"status":"resolved"`) {
		t.Fatalf("expected resolved lookup, got %s", rr.Body.String())
	}

	rr = router.do(http.MethodPut, "/api/capacity/Monday", []byte(`{"capacity":4}`), true)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on capacity update, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = router.do(http.MethodGet, "/metrics", nil, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected metrics, got %d", rr.Code)
	}
	for _, series := range []string{"frontdesk_booking_requests_total", "frontdesk_identity_lookups_total", "frontdesk_capacity_updates_total"} {
		if !strings.Contains(rr.Body.String(), series) {
			t.Fatalf("expected %s in metrics output", series)
		}
	}
}

func TestRouterServesUploads(t *testing.T) {
	router := newTestRouter(t, 0)
	key := "uploads/patients/patient_29801011234567/images/img_20250602080000.png"
	if err := router.media.Put(context.Background(), key, "image/png", strings.NewReader("png-bytes")); err != nil {
		t.Fatalf("put media: %v", err)
	}

	rr := router.do(http.MethodGet, "/"+key, nil, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Body.String() != "png-bytes" || rr.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected media response %q %q", rr.Header().Get("Content-Type"), rr.Body.String())
	}

	if rr := router.do(http.MethodGet, "/uploads/../config.yaml", nil, false); rr.Code != http.StatusNotFound {
		t.Fatalf("expected traversal to 404, got %d", rr.Code)
	}
}

func TestRouterRateLimitsPatientEndpoints(t *testing.T) {
	router := newTestRouter(t, 0.001)

	var last int
	for i := 0; i < 3; i++ {
		last = router.do(http.MethodGet, "/api/patient/availability?date=2099-01-01", nil, false).Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected third request to be limited, got %d", last)
	}

	// login is charged to its own scope
	login := []byte(`{"username":"frontdesk","password":"wrong"}`)
	if rr := router.do(http.MethodPost, "/api/login/staff", login, false); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected login to keep its own bucket, got %d", rr.Code)
	}

	// staff routes are not limited
	if rr := router.do(http.MethodGet, "/api/capacity", nil, true); rr.Code != http.StatusOK {
		t.Fatalf("expected staff route to pass, got %d", rr.Code)
	}
}
