package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aseekbot/pipeline/internal/analyze"
	"github.com/aseekbot/pipeline/internal/gcp"
	"github.com/aseekbot/pipeline/internal/models"
)

// AnalyzerFunction is the content-analysis stage.
type AnalyzerFunction struct {
	status gcp.StatusStore
}

func NewAnalyzer(status gcp.StatusStore) *AnalyzerFunction {
	return &AnalyzerFunction{status: status}
}

// NewAnalyzerFromEnv builds the stage against real GCP clients.
func NewAnalyzerFromEnv(ctx context.Context) (*AnalyzerFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	collection := gcp.GetEnv("STATUS_COLLECTION", "documentStatus")
	return NewAnalyzer(gcp.NewFirestoreStatusStore(firestoreClient, collection)), nil
}

// Process classifies the extracted text. The analyzer itself never fails;
// its worst case is a structured error result, which still lets the
// pipeline reach the store stage.
func (f *AnalyzerFunction) Process(ctx context.Context, job *models.JobPayload) (*models.JobPayload, error) {
	markProcessing(ctx, f.status, job, 60, "Analyzing content")

	job.AnalysisResults = analyze.Run(analyze.Input{
		Text:       job.ExtractedText,
		FileType:   job.FileType,
		Structured: job.StructuredData,
	})

	slog.Info("Content analysis complete.",
		"documentId", job.DocumentID,
		"documentType", job.AnalysisResults.DocumentType,
		"sentiment", job.AnalysisResults.Sentiment,
	)
	return job, nil
}
