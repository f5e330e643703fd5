package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aseekbot/pipeline/internal/models"
)

// StatusStore persists the per-job status record read by the polling API.
// Updates are last-writer-wins field merges; each job id is driven by
// exactly one workflow execution, so there is no cross-job contention.
type StatusStore interface {
	Create(ctx context.Context, rec *models.StatusRecord) error
	Get(ctx context.Context, id string) (*models.StatusRecord, error)
	Update(ctx context.Context, id string, updates map[string]interface{}) error
}

// NewFirestoreClient creates and returns a new Firestore client for the given
// project ID. It centralizes client creation for all services.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return client, nil
}

// FirestoreStatusStore implements StatusStore over a Firestore collection,
// one document per job id.
type FirestoreStatusStore struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreStatusStore(client *firestore.Client, collection string) *FirestoreStatusStore {
	return &FirestoreStatusStore{client: client, collection: collection}
}

func (s *FirestoreStatusStore) Create(ctx context.Context, rec *models.StatusRecord) error {
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
	if _, err := s.client.Collection(s.collection).Doc(id).Set(ctx, rec); err != nil {
		return fmt.Errorf("failed to create status record %s: %w", id, err)
	}
	return nil
}

func (s *FirestoreStatusStore) Get(ctx context.Context, id string) (*models.StatusRecord, error) {
	snap, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("status record %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read status record %s: %w", id, err)
	}
	var rec models.StatusRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode status record %s: %w", id, err)
	}
	return &rec, nil
}

func (s *FirestoreStatusStore) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	fsUpdates := make([]firestore.Update, 0, len(updates)+1)
	for path, value := range updates {
		fsUpdates = append(fsUpdates, firestore.Update{Path: path, Value: value})
	}
	fsUpdates = append(fsUpdates, firestore.Update{Path: "updatedAt", Value: time.Now().UTC()})
	if _, err := s.client.Collection(s.collection).Doc(id).Update(ctx, fsUpdates); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("status record %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to update status record %s: %w", id, err)
	}
	return nil
}
