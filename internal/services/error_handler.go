package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aseekbot/pipeline/internal/gcp"
	"github.com/aseekbot/pipeline/internal/models"
)

// ErrorHandlerFunction is the workflow's error branch. Whatever stage
// failed, the job still reaches a terminal FAILED status with a
// human-readable message.
type ErrorHandlerFunction struct {
	status gcp.StatusStore
}

func NewErrorHandler(status gcp.StatusStore) *ErrorHandlerFunction {
	return &ErrorHandlerFunction{status: status}
}

// NewErrorHandlerFromEnv builds the stage against real GCP clients.
func NewErrorHandlerFromEnv(ctx context.Context) (*ErrorHandlerFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	collection := gcp.GetEnv("STATUS_COLLECTION", "documentStatus")
	return NewErrorHandler(gcp.NewFirestoreStatusStore(firestoreClient, collection)), nil
}

// Process records the failure on the job and in the status table.
func (f *ErrorHandlerFunction) Process(ctx context.Context, job *models.JobPayload) (*models.JobPayload, error) {
	if job.Error == nil {
		job.Error = &models.ErrorDetail{Message: "document processing failed", Kind: "pipeline"}
	}
	slog.Error("Pipeline entered error branch.", "documentId", job.DocumentID, "kind", job.Error.Kind, "message", job.Error.Message)

	if err := markFailed(ctx, f.status, job, job.Error); err != nil {
		slog.Error("CRITICAL: Failed to record FAILED status after a processing error.", "documentId", job.DocumentID, "updateError", err)
		return nil, err
	}
	return job, nil
}
