package identity

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-frontdesk/internal/appointments"
	"github.com/wolfman30/clinic-frontdesk/internal/observability/metrics"
	"github.com/wolfman30/clinic-frontdesk/internal/tokens"
	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

const patientNID = "29801011234567"

func seed(t *testing.T) (*appointments.InMemoryRepository, []*appointments.Appointment) {
	t.Helper()
	repo := appointments.NewInMemoryRepository()
	ctx := context.Background()
	rows := []*appointments.Appointment{
		{TicketNumber: 202506010014567, NationalID: patientNID, Phone: "01012345678", ScheduledDate: "2025-06-01", Status: appointments.StatusCompleted, CompletionHour: "10:00"},
		{TicketNumber: 202506100024567, NationalID: patientNID, Phone: "01012345678", ScheduledDate: "2025-06-10", Status: appointments.StatusPending},
		{TicketNumber: 202505200034567, NationalID: patientNID, Phone: "01099999999", ScheduledDate: "2025-05-20", Status: appointments.StatusCancelled},
		// legacy row written before national IDs were collected
		{TicketNumber: 202401150074567, Phone: "01055555555", ScheduledDate: "2024-01-15", Status: appointments.StatusCompleted, CompletionHour: "12:00"},
		{TicketNumber: 202506100019999, NationalID: "29901019999999", Phone: "01011111111", ScheduledDate: "2025-06-10", Status: appointments.StatusPending},
	}
	var saved []*appointments.Appointment
	for _, row := range rows {
		row.Name = "Patient"
		s, err := repo.Reserve(ctx, row, 0)
		require.NoError(t, err)
		saved = append(saved, s)
	}
	return repo, saved
}

func TestResolve_TicketShortCircuits(t *testing.T) {
	repo, saved := seed(t)
	r := NewResolver(repo, logging.Discard())

	res, err := r.Resolve(context.Background(), Query{Ticket: "202506100024567", Phone: "0000", Date: "1999-01-01"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeResolved, res.Outcome)
	assert.Equal(t, saved[1].ID, res.Appointment.ID)
}

func TestResolve_TicketNotNumeric(t *testing.T) {
	repo, _ := seed(t)
	r := NewResolver(repo, logging.Discard())

	_, err := r.Resolve(context.Background(), Query{Ticket: "ABC-1"})
	assert.ErrorIs(t, err, appointments.ErrNotFound)
	_, err = r.Resolve(context.Background(), Query{Ticket: "1"})
	assert.ErrorIs(t, err, appointments.ErrNotFound)
}

func TestResolve_TicketAndNationalIDRejected(t *testing.T) {
	repo, _ := seed(t)
	r := NewResolver(repo, logging.Discard())

	_, err := r.Resolve(context.Background(), Query{Ticket: "202506100024567", NationalID: patientNID})
	assert.ErrorIs(t, err, appointments.ErrInvalidRequest)
}

func TestResolve_NationalIDRequired(t *testing.T) {
	repo, _ := seed(t)
	r := NewResolver(repo, logging.Discard())

	for _, q := range []Query{{}, {NationalID: "123"}, {NationalID: "12a4567"}, {Phone: "01012345678"}} {
		_, err := r.Resolve(context.Background(), q)
		assert.ErrorIs(t, err, appointments.ErrInvalidRequest, "%+v", q)
	}
}

func TestResolve_MultipleMatchesOrderedByDate(t *testing.T) {
	repo, _ := seed(t)
	r := NewResolver(repo, logging.Discard())

	res, err := r.Resolve(context.Background(), Query{NationalID: patientNID})
	require.NoError(t, err)
	require.Equal(t, OutcomeDisambiguating, res.Outcome)
	assert.Nil(t, res.Appointment)

	var dates []string
	for _, c := range res.Candidates {
		dates = append(dates, c.ScheduledDate)
	}
	assert.Equal(t, []string{"2025-06-10", "2025-06-01", "2025-05-20", "2024-01-15"}, dates)
	assert.Equal(t, appointments.StatusCancelled, res.Candidates[2].Status)
}

func TestResolve_DateAndPhoneNarrow(t *testing.T) {
	repo, saved := seed(t)
	r := NewResolver(repo, logging.Discard())

	res, err := r.Resolve(context.Background(), Query{NationalID: patientNID, Date: "2025-06-01"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeResolved, res.Outcome)
	assert.Equal(t, saved[0].ID, res.Appointment.ID)

	res, err = r.Resolve(context.Background(), Query{NationalID: patientNID, Phone: "010-9999-9999"})
	require.NoError(t, err)
	assert.Equal(t, saved[2].ID, res.Appointment.ID)

	_, err = r.Resolve(context.Background(), Query{NationalID: patientNID, Date: "2025-07-01"})
	assert.ErrorIs(t, err, appointments.ErrNotFound)

	_, err = r.Resolve(context.Background(), Query{NationalID: patientNID, Date: "July"})
	assert.ErrorIs(t, err, appointments.ErrInvalidRequest)
}

func TestResolve_LegacySuffixMatch(t *testing.T) {
	repo, saved := seed(t)
	r := NewResolver(repo, logging.Discard())

	res, err := r.Resolve(context.Background(), Query{NationalID: "00000000004567", Date: "2024-01-15"})
	require.NoError(t, err)
	assert.Equal(t, saved[3].ID, res.Appointment.ID)

	_, err = r.Resolve(context.Background(), Query{NationalID: "5555", Date: "2024-01-15"})
	assert.ErrorIs(t, err, appointments.ErrNotFound)
}

func TestResolve_CountsLookups(t *testing.T) {
	repo, _ := seed(t)
	reg := prometheus.NewRegistry()
	r := NewResolver(repo, logging.Discard()).WithMetrics(metrics.NewFrontDeskMetrics(reg))

	_, _ = r.Resolve(context.Background(), Query{NationalID: patientNID})
	_, _ = r.Resolve(context.Background(), Query{Ticket: "nope"})

	series, err := testutil.GatherAndCount(reg, "frontdesk_identity_lookups_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series)
}

func TestSessionToken(t *testing.T) {
	repo, saved := seed(t)
	signer := tokens.NewSigner("secret", tokens.AudiencePatient, 30*time.Minute)
	r := NewResolver(repo, logging.Discard()).WithSigner(signer)
	ctx := context.Background()

	res, err := r.Resolve(ctx, Query{Ticket: "202506100024567"})
	require.NoError(t, err)
	raw, err := r.IssueToken(res)
	require.NoError(t, err)

	appt, err := r.SessionAppointment(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, saved[1].ID, appt.ID)

	multi, err := r.Resolve(ctx, Query{NationalID: patientNID})
	require.NoError(t, err)
	_, err = r.IssueToken(multi)
	assert.ErrorIs(t, err, appointments.ErrInvalidRequest)

	_, err = r.SessionAppointment(ctx, "garbage")
	assert.ErrorIs(t, err, tokens.ErrInvalidToken)
}
