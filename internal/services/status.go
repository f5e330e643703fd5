package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aseekbot/pipeline/internal/gcp"
	"github.com/aseekbot/pipeline/internal/models"
)

// assumedExecutionDuration is the heuristic total runtime used to estimate
// progress for a still-running execution. It has no adaptive basis; progress
// is capped below 100 until the execution truly finishes.
const assumedExecutionDuration = 2 * time.Minute

// StatusFunction serves the polling API. It reads the persisted record and,
// when that record still shows PROCESSING against a live execution,
// reconciles it with the orchestrator's current state.
type StatusFunction struct {
	status   gcp.StatusStore
	workflow gcp.WorkflowClient
	now      func() time.Time
}

// NewStatus wires the status API with injected dependencies. workflow may be
// nil, in which case reconciliation is skipped entirely.
func NewStatus(status gcp.StatusStore, workflow gcp.WorkflowClient) *StatusFunction {
	return &StatusFunction{status: status, workflow: workflow, now: time.Now}
}

// NewStatusFromEnv builds the API against real GCP clients.
func NewStatusFromEnv(ctx context.Context) (*StatusFunction, error) {
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
	collection := gcp.GetEnv("STATUS_COLLECTION", "documentStatus")
	return NewStatus(gcp.NewFirestoreStatusStore(firestoreClient, collection), executor), nil
}

// Resolve returns the freshest known status for the given job id.
func (f *StatusFunction) Resolve(ctx context.Context, id string) (*models.StatusResponse, error) {
	rec, err := f.status.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := &models.StatusResponse{
		RequestID:  rec.RequestID,
		DocumentID: rec.DocumentID,
		Status:     rec.Status,
		Progress:   rec.Progress,
		Error:      rec.Error,
	}
	if !rec.UpdatedAt.IsZero() {
		resp.UpdatedAt = rec.UpdatedAt.UTC().Format(time.RFC3339)
	}

	if rec.Status != models.StatusProcessing || rec.ExecutionName == "" || f.workflow == nil {
		return resp, nil
	}

	exec, err := f.workflow.Describe(ctx, rec.ExecutionName)
	if err != nil {
		// Polling must keep working even when the live-execution check is
		// degraded; the persisted record is the answer of last resort.
		slog.Warn("Execution reconciliation failed, returning persisted record.", "id", id, "error", err)
		return resp, nil
	}

	switch exec.State {
	case gcp.ExecutionSucceeded:
		resp.Status = models.StatusCompleted
		resp.Progress = 100
		resp.Completion = extractResultPayload(exec.Result, rec)
		if resp.Completion != nil && resp.Completion.ResultLocation != "" {
			f.persistReconciled(ctx, id, map[string]interface{}{
				"status":         models.StatusCompleted,
				"progress":       100,
				"resultLocation": resp.Completion.ResultLocation,
			})
		} else {
			f.persistReconciled(ctx, id, map[string]interface{}{
				"status":   models.StatusCompleted,
				"progress": 100,
			})
		}

	case gcp.ExecutionFailed, gcp.ExecutionCancelled:
		detail := &models.ErrorDetail{
			Message: fmt.Sprintf("workflow execution %s: %s", strings.ToLower(string(exec.State)), firstNonEmpty(exec.Error, "no error detail reported")),
			Kind:    "execution",
		}
		resp.Status = models.StatusFailed
		resp.Error = detail
		f.persistReconciled(ctx, id, map[string]interface{}{
			"status": models.StatusFailed,
			"error":  detail,
		})

	case gcp.ExecutionActive:
		resp.Progress = estimateProgress(rec.Progress, exec.StartTime, f.now())
	}
	return resp, nil
}

// persistReconciled overwrites the stale PROCESSING view. Best effort: the
// response already carries the reconciled state.
func (f *StatusFunction) persistReconciled(ctx context.Context, id string, updates map[string]interface{}) {
	if err := f.status.Update(ctx, id, updates); err != nil {
		slog.Warn("Failed to persist reconciled status.", "id", id, "error", err)
	}
}

// estimateProgress projects progress from elapsed time against the assumed
// total duration, capped at 95 and never regressing below the persisted
// value. 100 is reserved for a truly terminal execution.
func estimateProgress(persisted int, startTime, now time.Time) int {
	if startTime.IsZero() {
		return persisted
	}
	elapsed := now.Sub(startTime)
	estimated := int(float64(elapsed) / float64(assumedExecutionDuration) * 100)
	if estimated > 95 {
		estimated = 95
	}
	if estimated < persisted {
		return persisted
	}
	return estimated
}

// extractResultPayload digs the terminal job payload out of the execution
// output. Different pipeline variants nest their result differently, so the
// lookup walks an ordered fallback chain: the store stage's named payload,
// then the top level, then a "result" wrapper, then whatever the persisted
// record already had. The multi-shape search is compatibility baggage, not a
// contract to extend.
func extractResultPayload(resultJSON string, rec *models.StatusRecord) *models.JobPayload {
	usable := func(p *models.JobPayload) bool {
		return p != nil && (p.DocumentID != "" || p.ResultLocation != "")
	}

	if resultJSON != "" {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal([]byte(resultJSON), &envelope); err == nil {
			for _, key := range []string{"storeResult"} {
				if raw, ok := envelope[key]; ok {
					var p models.JobPayload
					if json.Unmarshal(raw, &p) == nil && usable(&p) {
						return &p
					}
				}
			}
		}

		var top models.JobPayload
		if json.Unmarshal([]byte(resultJSON), &top) == nil && usable(&top) {
			return &top
		}

		if raw, ok := envelope["result"]; ok {
			var p models.JobPayload
			if json.Unmarshal(raw, &p) == nil && usable(&p) {
				return &p
			}
		}
	}

	if rec.ResultLocation != "" {
		return &models.JobPayload{
			DocumentID:     rec.DocumentID,
			RequestID:      rec.RequestID,
			ResultLocation: rec.ResultLocation,
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Handle is the HTTP surface: GET /status/{id}?userId=...
func (f *StatusFunction) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "only GET is supported")
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/status"), "/")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "missing request identifier")
		return
	}
	if r.URL.Query().Get("userId") == "" {
		writeJSONError(w, http.StatusBadRequest, "missing userId")
		return
	}

	resp, err := f.Resolve(r.Context(), id)
	if err != nil {
		if errors.Is(err, gcp.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, fmt.Sprintf("no status record for %q", id))
			return
		}
		slog.Error("Status lookup failed.", "id", id, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "status lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response.", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
