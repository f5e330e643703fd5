package gcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aseekbot/pipeline/internal/models"
)

// MemStore is an in-memory ContentStore used by tests and the local
// development server.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	types   map[string]string
}

func NewMemStore() *MemStore {
	return &MemStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func memKey(bucket, key string) string { return bucket + "/" + key }

func (s *MemStore) Put(_ context.Context, bucket, key, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[memKey(bucket, key)] = append([]byte(nil), data...)
	s.types[memKey(bucket, key)] = contentType
	return nil
}

func (s *MemStore) PutIfAbsent(ctx context.Context, bucket, key, contentType string, data []byte) error {
	s.mu.Lock()
	_, exists := s.objects[memKey(bucket, key)]
	s.mu.Unlock()
	if exists {
		return nil
	}
	return s.Put(ctx, bucket, key, contentType, data)
}

func (s *MemStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[memKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemStore) Attrs(_ context.Context, bucket, key string) (*ObjectAttrs, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[memKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
	}
	return &ObjectAttrs{Size: int64(len(data)), ContentType: s.types[memKey(bucket, key)]}, nil
}

func (s *MemStore) Delete(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[memKey(bucket, key)]; !ok {
		return fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
	}
	delete(s.objects, memKey(bucket, key))
	delete(s.types, memKey(bucket, key))
	return nil
}

func (s *MemStore) SignedURL(bucket, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://storage.local/%s/%s?expires=%d", bucket, key, int(expiry.Seconds())), nil
}

// MemStatusStore is an in-memory StatusStore.
type MemStatusStore struct {
	mu      sync.RWMutex
	records map[string]*models.StatusRecord
}

func NewMemStatusStore() *MemStatusStore {
	return &MemStatusStore{records: make(map[string]*models.StatusRecord)}
}

func (s *MemStatusStore) Create(_ context.Context, rec *models.StatusRecord) error {
	id := rec.RequestID
	if id == "" {
		id = rec.DocumentID
	}
	if id == "" {
		return fmt.Errorf("status record needs a requestId or documentId")
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	cp := *rec
	s.mu.Lock()
	s.records[id] = &cp
	s.mu.Unlock()
	return nil
}

func (s *MemStatusStore) Get(_ context.Context, id string) (*models.StatusRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("status record %s: %w", id, ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (s *MemStatusStore) Update(_ context.Context, id string, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("status record %s: %w", id, ErrNotFound)
	}
	for path, value := range updates {
		switch path {
		case "status":
			switch v := value.(type) {
			case models.Status:
				rec.Status = v
			case string:
				rec.Status = models.Status(v)
			}
		case "progress":
			if v, ok := value.(int); ok {
				rec.Progress = v
			}
		case "message":
			if v, ok := value.(string); ok {
				rec.Message = v
			}
		case "resultLocation":
			if v, ok := value.(string); ok {
				rec.ResultLocation = v
			}
		case "documentId":
			if v, ok := value.(string); ok {
				rec.DocumentID = v
			}
		case "executionName":
			if v, ok := value.(string); ok {
				rec.ExecutionName = v
			}
		case "error":
			switch v := value.(type) {
			case *models.ErrorDetail:
				rec.Error = v
			case models.ErrorDetail:
				rec.Error = &v
			}
		}
	}
	rec.UpdatedAt = time.Now().UTC()
	return nil
}
