package services

import (
	"context"
	"log/slog"

	"github.com/aseekbot/pipeline/internal/gcp"
	"github.com/aseekbot/pipeline/internal/models"
)

// jobStatusID resolves the status-table key for a job. Chat-driven jobs are
// keyed by requestId, direct starts by documentId.
func jobStatusID(job *models.JobPayload) string {
	if job.RequestID != "" {
		return job.RequestID
	}
	return job.DocumentID
}

// markProcessing records stage progress. Progress writes are best effort: a
// failed write is logged, never fatal, because the workflow itself is the
// source of truth for liveness.
func markProcessing(ctx context.Context, status gcp.StatusStore, job *models.JobPayload, progress int, message string) {
	if status == nil {
		return
	}
	updates := map[string]interface{}{
		"status":   models.StatusProcessing,
		"progress": progress,
		"message":  message,
	}
	if job.DocumentID != "" {
		updates["documentId"] = job.DocumentID
	}
	if err := status.Update(ctx, jobStatusID(job), updates); err != nil {
		slog.Warn("Failed to record stage progress.", "documentId", job.DocumentID, "progress", progress, "error", err)
	}
}

// markCompleted writes the terminal COMPLETED state with the result location.
func markCompleted(ctx context.Context, status gcp.StatusStore, job *models.JobPayload) error {
	if status == nil {
		return nil
	}
	return status.Update(ctx, jobStatusID(job), map[string]interface{}{
		"status":         models.StatusCompleted,
		"progress":       100,
		"message":        "Document analysis complete",
		"resultLocation": job.ResultLocation,
	})
}

// markFailed writes the terminal FAILED state with a human-readable error.
// No stage surfaces a raw stack trace through this path.
func markFailed(ctx context.Context, status gcp.StatusStore, job *models.JobPayload, detail *models.ErrorDetail) error {
	if status == nil {
		return nil
	}
	return status.Update(ctx, jobStatusID(job), map[string]interface{}{
		"status":   models.StatusFailed,
		"progress": 100,
		"message":  detail.Message,
		"error":    detail,
	})
}
