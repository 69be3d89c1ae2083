package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-frontdesk/internal/appointments"
	"github.com/wolfman30/clinic-frontdesk/internal/audit"
	"github.com/wolfman30/clinic-frontdesk/internal/booking"
	"github.com/wolfman30/clinic-frontdesk/internal/capacity"
	"github.com/wolfman30/clinic-frontdesk/internal/http/respond"
	"github.com/wolfman30/clinic-frontdesk/internal/identity"
	"github.com/wolfman30/clinic-frontdesk/internal/media"
	"github.com/wolfman30/clinic-frontdesk/internal/tokens"
	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

// 2025-06-02 is a Monday.
var fixedNow = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	repo   *appointments.InMemoryRepository
	ledger *capacity.Ledger
	trail  *audit.MemoryStore
	media  *media.MemoryStore
	svc    *booking.Service
	ctrl   *appointments.Controller
	router chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logging.Discard()
	clock := func() time.Time { return fixedNow }

	env := &testEnv{
		repo:   appointments.NewInMemoryRepository(),
		ledger: capacity.NewLedger(capacity.NewMemoryStore(), 10),
		trail:  audit.NewMemoryStore(),
		media:  media.NewMemoryStore(),
	}
	env.svc = booking.NewService(env.repo, env.ledger, booking.NewMemoryAllocator(), env.media, logger).
		WithAudit(env.trail).
		WithClock(clock)
	env.ctrl = appointments.NewController(env.repo, logger).WithAudit(env.trail).WithClock(clock)
	resolver := identity.NewResolver(env.repo, logger).
		WithSigner(tokens.NewSigner("patient-key", tokens.AudiencePatient, time.Hour))

	appts := NewAppointmentsHandler(env.repo, env.ctrl, env.svc, env.trail, logger)
	appts.now = clock
	patient := NewPatientHandler(resolver, env.svc, logger)
	caps := NewCapacityHandler(env.ledger, env.trail, nil, logger)

	r := chi.NewRouter()
	r.Get("/api/appointments", appts.List)
	r.Post("/api/appointments", appts.Create)
	r.Get("/api/appointments/search", appts.Search)
	r.Get("/api/appointments/export", appts.Export)
	r.Put("/api/appointments/{id}", appts.Update)
	r.Delete("/api/appointments/{id}", appts.Delete)
	r.Get("/api/appointments/{id}/history", appts.History)
	r.Get("/api/patient/appointments", patient.Resolve)
	r.Get("/api/patient/session", patient.Session)
	r.Post("/api/patient/book", patient.Book)
	r.Get("/api/patient/availability", patient.Availability)
	r.Get("/api/capacity", caps.List)
	r.Get("/api/capacity/effective", caps.Effective)
	r.Put("/api/capacity/{day}", caps.Put)
	r.Delete("/api/capacity/{day}", caps.Delete)
	env.router = r
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) book(t *testing.T, nationalID, date string) *booking.Confirmation {
	t.Helper()
	conf, err := e.svc.Book(t.Context(), booking.Request{
		Name:          "Patient",
		Phone:         "01012345678",
		NationalID:    nationalID,
		Symptoms:      "cough",
		ScheduledDate: date,
	})
	require.NoError(t, err)
	return conf
}

type envelope struct {
	OK    bool               `json:"ok"`
	Data  json.RawMessage    `json:"data"`
	Error *respond.ErrorBody `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	env := decodeEnvelope(t, rec)
	require.True(t, env.OK, rec.Body.String())
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	env := decodeEnvelope(t, rec)
	require.False(t, env.OK)
	require.NotNil(t, env.Error)
	return env.Error.Message
}
