package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// ErrNotFound is returned when a requested object or record does not exist.
var ErrNotFound = errors.New("not found")

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// ObjectAttrs is the subset of object metadata the pipeline cares about.
type ObjectAttrs struct {
	Size        int64
	ContentType string
}

// ContentStore is durable blob storage for source documents and externalized
// intermediate artifacts. Implementations must be safe for concurrent use by
// independent jobs; distinct jobs never contend on the same key.
type ContentStore interface {
	Put(ctx context.Context, bucket, key, contentType string, data []byte) error
	// PutIfAbsent writes only when the object does not already exist. An
	// existing object is not a failure in an idempotent workflow.
	PutIfAbsent(ctx context.Context, bucket, key, contentType string, data []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Attrs(ctx context.Context, bucket, key string) (*ObjectAttrs, error)
	Delete(ctx context.Context, bucket, key string) error
	SignedURL(bucket, key string, expiry time.Duration) (string, error)
}

// GCSStore implements ContentStore over Cloud Storage.
type GCSStore struct {
	client *storage.Client
}

// NewGCSStore wraps an existing storage client.
func NewGCSStore(client *storage.Client) *GCSStore {
	return &GCSStore{client: client}
}

func (s *GCSStore) Put(ctx context.Context, bucket, key, contentType string, data []byte) error {
	w := s.client.Bucket(bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, strings.NewReader(string(data))); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func (s *GCSStore) PutIfAbsent(ctx context.Context, bucket, key, contentType string, data []byte) error {
	w := s.client.Bucket(bucket).Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, strings.NewReader(string(data))); err != nil {
		_ = w.Close()
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 412 {
			log.Printf("SKIPPING: Object %s already exists.", key)
			return nil
		}
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 412 {
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func (s *GCSStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("gs://%s/%s: %w", bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", bucket, key, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}

func (s *GCSStore) Attrs(ctx context.Context, bucket, key string) (*ObjectAttrs, error) {
	attrs, err := s.client.Bucket(bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("gs://%s/%s: %w", bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to stat gs://%s/%s: %w", bucket, key, err)
	}
	return &ObjectAttrs{Size: attrs.Size, ContentType: attrs.ContentType}, nil
}

func (s *GCSStore) Delete(ctx context.Context, bucket, key string) error {
	if err := s.client.Bucket(bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("gs://%s/%s: %w", bucket, key, ErrNotFound)
		}
		return fmt.Errorf("failed to delete gs://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *GCSStore) SignedURL(bucket, key string, expiry time.Duration) (string, error) {
	url, err := s.client.Bucket(bucket).SignedURL(key, &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(expiry),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign URL for gs://%s/%s: %w", bucket, key, err)
	}
	return url, nil
}
