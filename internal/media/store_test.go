package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

type mockS3Client struct {
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	body, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = body
	m.types[*input.Key] = aws.ToString(input.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentType:   aws.String(m.types[*input.Key]),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func TestS3Store_PutAndOpen(t *testing.T) {
	mock := newMockS3()
	store := NewS3Store(mock, "clinic-media", logging.Discard())
	key := "uploads/patients/patient_1/images/img_1.jpg"

	require.NoError(t, store.Put(context.Background(), key, "image/jpeg", strings.NewReader("jpeg-bytes")))
	assert.Equal(t, "image/jpeg", mock.types[key])

	obj, err := store.Open(context.Background(), key)
	require.NoError(t, err)
	defer obj.Body.Close()
	data, _ := io.ReadAll(obj.Body)
	assert.Equal(t, "jpeg-bytes", string(data))
	assert.Equal(t, int64(10), obj.ContentLength)
}

func TestS3Store_OpenMissing(t *testing.T) {
	store := NewS3Store(newMockS3(), "clinic-media", logging.Discard())
	_, err := store.Open(context.Background(), "uploads/images/missing.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3Store_PutError(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("boom")
	store := NewS3Store(mock, "clinic-media", logging.Discard())
	err := store.Put(context.Background(), "uploads/images/a.jpg", "", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uploads/images/a.jpg")
}

func TestHandler_ServesStoredObject(t *testing.T) {
	store := NewMemoryStore()
	key := "uploads/patients/patient_1/voices/voice_1.webm"
	require.NoError(t, store.Put(context.Background(), key, "audio/webm", strings.NewReader("ogg")))
	h := NewHandler(store, logging.Discard())

	req := httptest.NewRequest(http.MethodGet, "/"+key, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/webm", w.Header().Get("Content-Type"))
	assert.Equal(t, "ogg", w.Body.String())
}

func TestHandler_RejectsUnknownKeys(t *testing.T) {
	h := NewHandler(NewMemoryStore(), logging.Discard())
	for _, p := range []string{"/uploads/patients/patient_1/images/none.jpg", "/uploads/../config"} {
		req := httptest.NewRequest(http.MethodGet, p, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code, p)
	}
}
