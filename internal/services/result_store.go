package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"

	"github.com/aseekbot/pipeline/internal/gcp"
	"github.com/aseekbot/pipeline/internal/models"
)

// ResultStoreConfig holds configuration for the store stage.
type ResultStoreConfig struct {
	ProjectID        string
	ResultBucket     string
	VertexAIRegion   string
	StatusCollection string
}

// ResultStoreFunction persists the final analysis artifact and closes out
// the status record.
type ResultStoreFunction struct {
	store        gcp.ContentStore
	status       gcp.StatusStore
	agent        gcp.InsightsAgent
	resultBucket string
}

// NewResultStore wires the store stage with injected dependencies. agent may
// be nil; insights then fall back to the fixed placeholder.
func NewResultStore(store gcp.ContentStore, status gcp.StatusStore, agent gcp.InsightsAgent, resultBucket string) *ResultStoreFunction {
	return &ResultStoreFunction{store: store, status: status, agent: agent, resultBucket: resultBucket}
}

// NewResultStoreFromEnv builds the stage against real GCP clients.
func NewResultStoreFromEnv(ctx context.Context) (*ResultStoreFunction, error) {
	config := &ResultStoreConfig{
		ProjectID:        gcp.GetEnv("PROJECT_ID", ""),
		ResultBucket:     gcp.GetEnv("RESULT_BUCKET", ""),
		VertexAIRegion:   gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		StatusCollection: gcp.GetEnv("STATUS_COLLECTION", "documentStatus"),
	}
	if config.ProjectID == "" || config.ResultBucket == "" {
		return nil, fmt.Errorf("PROJECT_ID and RESULT_BUCKET must be set")
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, err
	}
	vertexClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}
	return NewResultStore(
		gcp.NewGCSStore(storageClient),
		gcp.NewFirestoreStatusStore(firestoreClient, config.StatusCollection),
		vertexClient,
		config.ResultBucket,
	), nil
}

// Process generates insights, writes the full result artifact to the content
// store and marks the job COMPLETED. The artifact write is idempotent so a
// replayed workflow step does not clobber an existing result.
func (f *ResultStoreFunction) Process(ctx context.Context, job *models.JobPayload) (*models.JobPayload, error) {
	logCtx := slog.With("documentId", job.DocumentID)
	markProcessing(ctx, f.status, job, 90, "Storing results")

	job.Insights = f.generateInsights(ctx, logCtx, job)

	artifact := models.ResultArtifact{
		DocumentID:         job.DocumentID,
		UserID:             job.UserID,
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		Insights:           job.Insights,
		AnalysisResults:    job.AnalysisResults,
		ComparisonResults:  job.ComparisonResults,
		ProcessingComplete: true,
	}
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result artifact: %w", err)
	}

	key := fmt.Sprintf("results/%s/analysis.json", job.DocumentID)
	if err := f.store.PutIfAbsent(ctx, f.resultBucket, key, "application/json", data); err != nil {
		return nil, fmt.Errorf("failed to store result artifact: %w", err)
	}
	job.ResultLocation = fmt.Sprintf("gs://%s/%s", f.resultBucket, key)

	if err := markCompleted(ctx, f.status, job); err != nil {
		return nil, fmt.Errorf("failed to record completed status: %w", err)
	}
	logCtx.Info("Result stored.", "resultLocation", job.ResultLocation)
	return job, nil
}

// generateInsights asks the agent for recommendations. The agent path has
// its own bounded retry; total failure degrades to the fixed fallback.
func (f *ResultStoreFunction) generateInsights(ctx context.Context, logCtx *slog.Logger, job *models.JobPayload) string {
	if f.agent == nil || job.AnalysisResults == nil {
		return gcp.FallbackInsights
	}
	insights, err := f.agent.GenerateInsights(ctx, job.AnalysisResults, job.ComparisonResults)
	if err != nil {
		logCtx.Warn("Insights generation failed, using fallback.", "error", err)
		return gcp.FallbackInsights
	}
	return insights
}
