package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-frontdesk/internal/appointments"
	"github.com/wolfman30/clinic-frontdesk/internal/booking"
	"github.com/wolfman30/clinic-frontdesk/internal/capacity"
	"github.com/wolfman30/clinic-frontdesk/internal/identity"
	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

const patientNID = "29801011234567"

func TestPatientResolveAndSession(t *testing.T) {
	env := newTestEnv(t)
	conf := env.book(t, patientNID, "")

	rec := env.do(t, http.MethodGet, "/api/patient/appointments?national_id="+patientNID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeData[ResolveResponse](t, rec)
	assert.Equal(t, identity.OutcomeResolved, resp.Status)
	require.NotNil(t, resp.Appointment)
	assert.Equal(t, conf.AppointmentID, resp.Appointment.ID)
	require.NotEmpty(t, resp.SessionToken)

	req := httptest.NewRequest(http.MethodGet, "/api/patient/session", nil)
	req.Header.Set("Authorization", "Bearer "+resp.SessionToken)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	appt := decodeData[appointments.Appointment](t, rec)
	assert.Equal(t, conf.AppointmentID, appt.ID)
}

func TestPatientSessionRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/patient/session", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/patient/session", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", errorMessage(t, rec))
}

func TestPatientResolveDisambiguates(t *testing.T) {
	env := newTestEnv(t)
	first := env.book(t, patientNID, "2025-06-03")
	completed := appointments.StatusCompleted
	_, err := env.ctrl.Apply(t.Context(), first.AppointmentID, appointments.Change{Status: &completed, CompletionHour: "09:00"})
	require.NoError(t, err)
	env.book(t, patientNID, "2025-06-04")

	rec := env.do(t, http.MethodGet, "/api/patient/appointments?national_id="+patientNID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeData[ResolveResponse](t, rec)
	assert.Equal(t, identity.OutcomeDisambiguating, resp.Status)
	assert.Len(t, resp.Candidates, 2)
	assert.Nil(t, resp.Appointment)
	assert.Empty(t, resp.SessionToken)

	rec = env.do(t, http.MethodGet, "/api/patient/appointments?national_id="+patientNID+"&date=2025-06-04", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeData[ResolveResponse](t, rec)
	assert.Equal(t, identity.OutcomeResolved, resp.Status)
	assert.Equal(t, "2025-06-04", resp.Appointment.ScheduledDate)
}

func TestPatientResolveErrors(t *testing.T) {
	env := newTestEnv(t)
	env.book(t, patientNID, "")

	cases := map[string]int{
		"/api/patient/appointments":                                        http.StatusBadRequest,
		"/api/patient/appointments?national_id=12":                         http.StatusBadRequest,
		"/api/patient/appointments?national_id=29901019999999":             http.StatusNotFound,
		"/api/patient/appointments?ticket=ABC":                             http.StatusNotFound,
		"/api/patient/appointments?ticket=1&national_id=" + patientNID:     http.StatusBadRequest,
		"/api/patient/appointments?national_id=" + patientNID + "&date=x":  http.StatusBadRequest,
		"/api/patient/appointments?national_id=" + patientNID + "&phone=9": http.StatusNotFound,
	}
	for target, want := range cases {
		rec := env.do(t, http.MethodGet, target, nil)
		assert.Equal(t, want, rec.Code, target)
	}
}

func TestPatientBookJSON(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/patient/book", createRequest{
		Name:       "Online",
		Phone:      "010-1234-5678",
		NationalID: patientNID,
		Symptoms:   "fever",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	conf := decodeData[booking.Confirmation](t, rec)
	assert.Equal(t, "2025-06-02", conf.ScheduledDate)

	saved, err := env.repo.Get(t.Context(), conf.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, "01012345678", saved.Phone)
}

func multipartBooking(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, value := range map[string]string{
		"name":        "Uploader",
		"phone":       "01012345678",
		"national_id": patientNID,
		"symptoms":    "rash",
	} {
		require.NoError(t, mw.WriteField(field, value))
	}
	for field, contentType := range files {
		h := make(textproto.MIMEHeader)
		filename := "photo.png"
		if field == "voice" {
			filename = "note.webm"
		}
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte("payload"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestPatientBookMultipart(t *testing.T) {
	env := newTestEnv(t)
	body, contentType := multipartBooking(t, map[string]string{"image": "image/png", "voice": "audio/webm"})

	req := httptest.NewRequest(http.MethodPost, "/api/patient/book", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	conf := decodeData[booking.Confirmation](t, rec)
	saved, err := env.repo.Get(t.Context(), conf.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, []string{"uploads/patients/patient_" + patientNID + "/images/img_20250602080000.png"}, saved.ImagePaths)
	assert.Equal(t, "uploads/patients/patient_"+patientNID+"/voices/voice_20250602080000.webm", saved.VoiceNotePath)
	assert.Len(t, env.media.Keys(), 2)
}

func TestPatientBookMultipartKeepsEveryImage(t *testing.T) {
	env := newTestEnv(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "Uploader"))
	require.NoError(t, mw.WriteField("phone", "01012345678"))
	require.NoError(t, mw.WriteField("national_id", patientNID))
	require.NoError(t, mw.WriteField("symptoms", "rash"))
	for _, name := range []string{"front.jpg", "back.jpg"} {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="`+name+`"`)
		h.Set("Content-Type", "image/jpeg")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte(name))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/patient/book", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	conf := decodeData[booking.Confirmation](t, rec)
	saved, err := env.repo.Get(t.Context(), conf.AppointmentID)
	require.NoError(t, err)
	folder := "uploads/patients/patient_" + patientNID + "/images/"
	assert.Equal(t, []string{folder + "img_20250602080000.jpg", folder + "img_20250602080000_2.jpg"}, saved.ImagePaths)
	assert.Len(t, env.media.Keys(), 2)
}

func TestPatientBookRejectsWrongUploadType(t *testing.T) {
	env := newTestEnv(t)
	body, contentType := multipartBooking(t, map[string]string{"image": "text/html"})

	req := httptest.NewRequest(http.MethodPost, "/api/patient/book", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "text/html")
	assert.Empty(t, env.media.Keys())
}

func TestPatientBookRejectsOversizedForm(t *testing.T) {
	env := newTestEnv(t)
	resolver := identity.NewResolver(env.repo, logging.Discard())
	h := NewPatientHandler(resolver, env.svc, logging.Discard()).WithMaxUpload(64)

	body, contentType := multipartBooking(t, map[string]string{"image": "image/png"})
	req := httptest.NewRequest(http.MethodPost, "/api/patient/book", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Book(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPatientAvailability(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ledger.Set(t.Context(), "2025-06-02", 1)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/patient/availability?date=2025-06-02", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	a := decodeData[booking.Availability](t, rec)
	assert.Equal(t, 1, a.Remaining)
	assert.Equal(t, capacity.SourceDate, a.Source)

	env.book(t, patientNID, "")

	rec = env.do(t, http.MethodGet, "/api/patient/availability", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	a = decodeData[booking.Availability](t, rec)
	assert.Equal(t, "2025-06-03", a.Date)
	assert.Equal(t, 10, a.Remaining)
	assert.Equal(t, capacity.SourceFallback, a.Source)

	rec = env.do(t, http.MethodGet, "/api/patient/availability?date=tomorrow", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
