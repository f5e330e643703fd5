package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/aseekbot/pipeline/internal/models"
)

// StageHandler adapts a pipeline stage to the HTTP shape the workflow
// invokes: POST a job payload in, get the enriched payload back. A stage
// error becomes a 500 so the workflow's error branch takes over.
func StageHandler(process func(ctx context.Context, job *models.JobPayload) (*models.JobPayload, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "only POST is supported")
			return
		}
		var job models.JobPayload
		if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
			writeJSONError(w, http.StatusBadRequest, "could not parse job payload")
			return
		}

		result, err := process(r.Context(), &job)
		if err != nil {
			slog.Error("Stage processing failed.", "documentId", job.DocumentID, "error", err)
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
