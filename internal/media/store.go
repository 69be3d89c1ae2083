package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

// ErrNotFound is returned when no object exists under the key.
var ErrNotFound = errors.New("media: object not found")

// Object is a stored attachment opened for reading.
type Object struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// Store persists patient attachments.
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) error
	Open(ctx context.Context, key string) (*Object, error)
}

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store keeps attachments in an S3 compatible bucket, keyed by their uploads path.
type S3Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

// NewS3Store creates an S3 backed store.
func NewS3Store(s3Client S3API, bucket string, logger *logging.Logger) *S3Store {
	if s3Client == nil || bucket == "" {
		panic("media: s3 client and bucket required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &S3Store{bucket: bucket, s3Client: s3Client, logger: logger}
}

// Put uploads body under key.
func (s *S3Store) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("media: s3 put %s: %w", key, err)
	}
	s.logger.Debug("media stored", "key", key, "content_type", contentType)
	return nil
}

// Open streams the object stored under key.
func (s *S3Store) Open(ctx context.Context, key string) (*Object, error) {
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) || strings.Contains(err.Error(), "NoSuchKey") {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("media: s3 get %s: %w", key, err)
	}
	obj := &Object{Body: out.Body, ContentType: aws.ToString(out.ContentType)}
	if out.ContentLength != nil {
		obj.ContentLength = *out.ContentLength
	}
	return obj, nil
}

// MemoryStore keeps attachments in process memory for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

// Put stores a copy of body under key.
func (m *MemoryStore) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("media: read body: %w", err)
	}
	m.mu.Lock()
	m.objects[key] = memoryObject{data: data, contentType: contentType}
	m.mu.Unlock()
	return nil
}

// Open returns the object stored under key.
func (m *MemoryStore) Open(ctx context.Context, key string) (*Object, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &Object{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentType:   obj.contentType,
		ContentLength: int64(len(obj.data)),
	}, nil
}

// Keys lists stored keys.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
