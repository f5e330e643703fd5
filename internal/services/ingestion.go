package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/aseekbot/pipeline/internal/gcp"
	"github.com/aseekbot/pipeline/internal/models"
)

// IngestionFunction accepts a chat/document request, writes the initial
// QUEUED record and dispatches the attached documents to the pipeline.
type IngestionFunction struct {
	status     gcp.StatusStore
	dispatcher Dispatcher
}

func NewIngestion(status gcp.StatusStore, dispatcher Dispatcher) *IngestionFunction {
	return &IngestionFunction{status: status, dispatcher: dispatcher}
}

// NewIngestionFromEnv builds the API against real GCP clients. With
// QUEUE_TOPIC set, jobs are published for the queue consumer; otherwise the
// API launches workflow executions itself.
func NewIngestionFromEnv(ctx context.Context) (*IngestionFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	status := gcp.NewFirestoreStatusStore(firestoreClient, gcp.GetEnv("STATUS_COLLECTION", "documentStatus"))

	if topic := gcp.GetEnv("QUEUE_TOPIC", ""); topic != "" {
		dispatcher, err := NewPubSubDispatcher(ctx, projectID, topic)
		if err != nil {
			return nil, err
		}
		return NewIngestion(status, dispatcher), nil
	}

	executor, err := gcp.NewWorkflowsExecutor(ctx, projectID,
		gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		gcp.GetEnv("WORKFLOW_ID", "document-analysis-pipeline"),
	)
	if err != nil {
		return nil, err
	}
	return NewIngestion(status, NewWorkflowDispatcher(executor, status)), nil
}

// Handle is the HTTP surface: POST with an IngestionRequest body.
func (f *IngestionFunction) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "only POST is supported")
		return
	}
	var req models.IngestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "could not parse JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSONError(w, http.StatusBadRequest, "message is required")
		return
	}

	resp, err := f.Process(r.Context(), &req)
	if err != nil {
		slog.Error("Ingestion failed.", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to queue request")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Process creates the QUEUED record and dispatches one pipeline job per
// attached file. With multiple files the first job is the primary: it
// carries the comparison flag and its siblings' ids.
func (f *IngestionFunction) Process(ctx context.Context, req *models.IngestionRequest) (*models.IngestionResponse, error) {
	requestID := uuid.NewString()

	jobs, err := buildJobs(requestID, req)
	if err != nil {
		return nil, err
	}

	rec := &models.StatusRecord{
		RequestID: requestID,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Status:    models.StatusQueued,
		Message:   "Request received and queued for processing",
	}
	if len(jobs) > 0 {
		rec.DocumentID = jobs[0].DocumentID
	}
	if err := f.status.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create status record: %w", err)
	}

	// Every sibling job is tracked through its own per-document record; only
	// the primary rides on the request record.
	for i := 1; i < len(jobs); i++ {
		sibling := &models.StatusRecord{
			DocumentID: jobs[i].DocumentID,
			UserID:     req.UserID,
			SessionID:  req.SessionID,
			Status:     models.StatusQueued,
			Message:    "Document queued for processing",
		}
		if err := f.status.Create(ctx, sibling); err != nil {
			return nil, fmt.Errorf("failed to create status record for document %s: %w", jobs[i].DocumentID, err)
		}
	}

	// Siblings dispatch first so their result artifacts exist by the time the
	// primary's comparison stage goes looking for them.
	for i := 1; i < len(jobs); i++ {
		if err := f.dispatcher.Dispatch(ctx, &models.QueueMessage{RequestID: requestID, Job: jobs[i]}); err != nil {
			return nil, err
		}
	}
	if len(jobs) > 0 {
		if err := f.dispatcher.Dispatch(ctx, &models.QueueMessage{RequestID: requestID, Job: jobs[0]}); err != nil {
			return nil, err
		}
	}

	slog.Info("Request queued.", "requestId", requestID, "documents", len(jobs))
	return &models.IngestionResponse{
		RequestID:    requestID,
		Status:       models.StatusQueued,
		Message:      "Your request has been queued for processing",
		ChatID:       req.ChatID,
		MessageOrder: 1,
	}, nil
}

// buildJobs converts the request's file references into pipeline jobs.
func buildJobs(requestID string, req *models.IngestionRequest) ([]models.JobPayload, error) {
	jobs := make([]models.JobPayload, 0, len(req.Files))
	ids := make([]string, 0, len(req.Files))
	for range req.Files {
		ids = append(ids, uuid.NewString())
	}

	for i, file := range req.Files {
		source, err := parseStorageURL(file.URL)
		if err != nil {
			return nil, fmt.Errorf("file %q: %w", file.Name, err)
		}
		job := models.JobPayload{
			DocumentID: ids[i],
			UserID:     req.UserID,
			SessionID:  req.SessionID,
			Source:     source,
			FileType:   fileTypeOf(file),
			UseCase:    file.UseCase,
		}
		// Only the primary job is keyed by the request record and carries
		// the comparison flags.
		if i == 0 {
			job.RequestID = requestID
			if len(req.Files) > 1 {
				job.IsMultipleDocuments = true
				job.SiblingDocumentIDs = ids[1:]
			}
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// parseStorageURL resolves a gs://bucket/key reference.
func parseStorageURL(raw string) (models.ObjectRef, error) {
	trimmed := strings.TrimPrefix(raw, "gs://")
	if trimmed == raw {
		return models.ObjectRef{}, fmt.Errorf("unsupported storage URL %q", raw)
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return models.ObjectRef{}, fmt.Errorf("malformed storage URL %q", raw)
	}
	return models.ObjectRef{Bucket: parts[0], Key: parts[1]}, nil
}

func fileTypeOf(file models.IngestionFile) string {
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(file.Name)), "."); ext != "" {
		return ext
	}
	// Fall back to the declared mime type's subtype.
	if idx := strings.LastIndex(file.MimeType, "/"); idx >= 0 {
		return file.MimeType[idx+1:]
	}
	return ""
}
