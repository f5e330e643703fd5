package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/aseekbot/pipeline/internal/gcp"
	"github.com/aseekbot/pipeline/internal/models"
)

// StartAnalysisFunction kicks off the pipeline for a single document that is
// already in the content store, bypassing the chat ingestion surface.
type StartAnalysisFunction struct {
	status     gcp.StatusStore
	dispatcher Dispatcher
}

func NewStartAnalysis(status gcp.StatusStore, dispatcher Dispatcher) *StartAnalysisFunction {
	return &StartAnalysisFunction{status: status, dispatcher: dispatcher}
}

// NewStartAnalysisFromEnv builds the API against real GCP clients.
func NewStartAnalysisFromEnv(ctx context.Context) (*StartAnalysisFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	executor, err := gcp.NewWorkflowsExecutor(ctx, projectID,
		gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		gcp.GetEnv("WORKFLOW_ID", "document-analysis-pipeline"),
	)
	if err != nil {
		return nil, err
	}
	status := gcp.NewFirestoreStatusStore(firestoreClient, gcp.GetEnv("STATUS_COLLECTION", "documentStatus"))
	return NewStartAnalysis(status, NewWorkflowDispatcher(executor, status)), nil
}

// Handle is the HTTP surface: POST with bucket, key, fileType and userId.
func (f *StartAnalysisFunction) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "only POST is supported")
		return
	}
	var req models.StartAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "could not parse JSON body")
		return
	}
	if missing := missingStartAnalysisField(&req); missing != "" {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("%s is required", missing))
		return
	}

	resp, err := f.Process(r.Context(), &req)
	if err != nil {
		slog.Error("Failed to start analysis.", "bucket", req.Bucket, "key", req.Key, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to start analysis")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func missingStartAnalysisField(req *models.StartAnalysisRequest) string {
	switch {
	case strings.TrimSpace(req.Bucket) == "":
		return "bucket"
	case strings.TrimSpace(req.Key) == "":
		return "key"
	case strings.TrimSpace(req.FileType) == "":
		return "fileType"
	case strings.TrimSpace(req.UserID) == "":
		return "userId"
	}
	return ""
}

// Process creates a per-document status record and dispatches the job.
func (f *StartAnalysisFunction) Process(ctx context.Context, req *models.StartAnalysisRequest) (*models.StartAnalysisResponse, error) {
	documentID := uuid.NewString()

	rec := &models.StatusRecord{
		DocumentID: documentID,
		UserID:     req.UserID,
		Status:     models.StatusQueued,
		Message:    "Document queued for analysis",
	}
	if err := f.status.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create status record: %w", err)
	}

	job := models.JobPayload{
		DocumentID: documentID,
		UserID:     req.UserID,
		Source:     models.ObjectRef{Bucket: req.Bucket, Key: req.Key},
		FileType:   strings.ToLower(req.FileType),
	}
	if err := f.dispatcher.Dispatch(ctx, &models.QueueMessage{Job: job}); err != nil {
		return nil, err
	}

	rec2, err := f.status.Get(ctx, documentID)
	executionName := ""
	if err == nil {
		executionName = rec2.ExecutionName
	}
	slog.Info("Analysis started.", "documentId", documentID, "execution", executionName)
	return &models.StartAnalysisResponse{
		Success:       true,
		ExecutionName: executionName,
		DocumentID:    documentID,
	}, nil
}
