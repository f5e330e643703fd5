package services

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"

	"github.com/aseekbot/pipeline/internal/extract"
	"github.com/aseekbot/pipeline/internal/gcp"
	"github.com/aseekbot/pipeline/internal/models"
)

// ExtractorConfig holds configuration for the extraction stage.
type ExtractorConfig struct {
	ProjectID        string
	ArtifactBucket   string
	StatusCollection string
	DocAI            gcp.DocAIConfig
}

func loadExtractorConfig() (*ExtractorConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	artifactBucket := gcp.GetEnv("ARTIFACT_BUCKET", "")
	if artifactBucket == "" {
		return nil, fmt.Errorf("ARTIFACT_BUCKET environment variable must be set")
	}
	return &ExtractorConfig{
		ProjectID:        projectID,
		ArtifactBucket:   artifactBucket,
		StatusCollection: gcp.GetEnv("STATUS_COLLECTION", "documentStatus"),
		DocAI: gcp.DocAIConfig{
			ProjectID:       projectID,
			Location:        gcp.GetEnv("DOCAI_LOCATION", "us"),
			OCRProcessorID:  gcp.GetEnv("DOCAI_OCR_PROCESSOR", ""),
			FormProcessorID: gcp.GetEnv("DOCAI_FORM_PROCESSOR", ""),
			OutputBucket:    artifactBucket,
		},
	}, nil
}

// ExtractorFunction is the extraction stage: it always extends the payload
// with extracted text, degraded or not.
type ExtractorFunction struct {
	extractor *extract.Extractor
	status    gcp.StatusStore
}

// NewExtractor wires the extraction stage with injected dependencies.
func NewExtractor(store gcp.ContentStore, ocr gcp.OCRBackend, status gcp.StatusStore, artifactBucket string) *ExtractorFunction {
	return &ExtractorFunction{
		extractor: extract.New(store, ocr, artifactBucket),
		status:    status,
	}
}

// NewExtractorFromEnv builds the stage against real GCP clients.
func NewExtractorFromEnv(ctx context.Context) (*ExtractorFunction, error) {
	config, err := loadExtractorConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, err
	}
	docai, err := gcp.NewDocAIClient(ctx, storageClient, config.DocAI)
	if err != nil {
		return nil, err
	}
	return NewExtractor(
		gcp.NewGCSStore(storageClient),
		docai,
		gcp.NewFirestoreStatusStore(firestoreClient, config.StatusCollection),
		config.ArtifactBucket,
	), nil
}

// Process runs the format-appropriate extractor. By policy this stage never
// fails the pipeline; downstream analysis must always receive something
// textual.
func (f *ExtractorFunction) Process(ctx context.Context, job *models.JobPayload) (*models.JobPayload, error) {
	markProcessing(ctx, f.status, job, 40, "Extracting text")
	f.extractor.Run(ctx, job)
	return job, nil
}
