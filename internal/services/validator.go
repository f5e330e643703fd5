package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/aseekbot/pipeline/internal/gcp"
	"github.com/aseekbot/pipeline/internal/models"
)

// MaxDocumentBytes is the hard ceiling on analyzable documents.
const MaxDocumentBytes = 10 * 1024 * 1024

// ocrEligibleTypes partitions the supported formats: these go through the
// OCR extractor, everything else through a structured-format parser.
var ocrEligibleTypes = map[string]bool{
	"pdf": true, "tiff": true, "jpeg": true, "jpg": true, "png": true,
}

var structuredTypes = map[string]bool{
	"docx": true, "xlsx": true, "csv": true, "txt": true,
}

// contentTypeOverrides maps declared content-type substrings to the
// normalized file type. A match overrides the caller-supplied type; order
// matters for ambiguous types, so this is a slice, not a map.
var contentTypeOverrides = []struct {
	substring string
	fileType  string
}{
	{"application/pdf", "pdf"},
	{"image/tiff", "tiff"},
	{"image/jpeg", "jpeg"},
	{"image/jpg", "jpeg"},
	{"image/png", "png"},
	{"wordprocessingml", "docx"},
	{"msword", "docx"},
	{"spreadsheetml", "xlsx"},
	{"ms-excel", "xlsx"},
	{"text/csv", "csv"},
	{"text/plain", "txt"},
}

// ValidatorFunction checks the source object and normalizes the file type
// before any extraction work is spent on it.
type ValidatorFunction struct {
	store  gcp.ContentStore
	status gcp.StatusStore
}

// NewValidator wires the validation stage with injected dependencies.
func NewValidator(store gcp.ContentStore, status gcp.StatusStore) *ValidatorFunction {
	return &ValidatorFunction{store: store, status: status}
}

// NewValidatorFromEnv builds the stage against real GCP clients.
func NewValidatorFromEnv(ctx context.Context) (*ValidatorFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	collection := gcp.GetEnv("STATUS_COLLECTION", "documentStatus")
	return NewValidator(gcp.NewGCSStore(storageClient), gcp.NewFirestoreStatusStore(firestoreClient, collection)), nil
}

// Process validates the job's source object. Validation failures are fatal:
// a missing object, an oversized file or an unresolvable type halts the
// pipeline before garbage reaches the extractors.
func (f *ValidatorFunction) Process(ctx context.Context, job *models.JobPayload) (*models.JobPayload, error) {
	logCtx := slog.With("documentId", job.DocumentID, "bucket", job.Source.Bucket, "key", job.Source.Key)
	logCtx.Info("Validating source document.")

	markProcessing(ctx, f.status, job, 10, "Validating document")

	attrs, err := f.store.Attrs(ctx, job.Source.Bucket, job.Source.Key)
	if err != nil {
		if errors.Is(err, gcp.ErrNotFound) {
			return nil, fmt.Errorf("source document does not exist: %w", err)
		}
		return nil, fmt.Errorf("failed to read source document metadata: %w", err)
	}

	if attrs.Size > MaxDocumentBytes {
		return nil, fmt.Errorf("file size %d bytes exceeds maximum allowed %d bytes", attrs.Size, MaxDocumentBytes)
	}

	fileType, err := resolveFileType(job.FileType, attrs.ContentType)
	if err != nil {
		return nil, err
	}

	job.FileType = fileType
	job.FileSizeBytes = attrs.Size
	job.ContentType = attrs.ContentType
	job.OCRSupported = ocrEligibleTypes[fileType]

	if fileType == "pdf" {
		job.PageCount = f.pdfPageCount(ctx, logCtx, job)
	}

	logCtx.Info("Validation passed.", "fileType", fileType, "sizeBytes", attrs.Size, "ocrSupported", job.OCRSupported)
	return job, nil
}

// resolveFileType reconciles the caller-supplied type with the declared
// content type. The content type wins on a substring match; an unresolvable
// type is fatal.
func resolveFileType(declared, contentType string) (string, error) {
	for _, o := range contentTypeOverrides {
		if strings.Contains(strings.ToLower(contentType), o.substring) {
			return o.fileType, nil
		}
	}
	normalized := strings.ToLower(strings.TrimPrefix(declared, "."))
	if normalized == "jpg" {
		normalized = "jpeg"
	}
	if ocrEligibleTypes[normalized] || structuredTypes[normalized] {
		return normalized, nil
	}
	return "", fmt.Errorf("unsupported file type %q (content type %q)", declared, contentType)
}

// pdfPageCount downloads the PDF and counts its pages. Failure degrades to
// zero; page count is metadata, not a gate.
func (f *ValidatorFunction) pdfPageCount(ctx context.Context, logCtx *slog.Logger, job *models.JobPayload) int {
	data, err := f.store.Get(ctx, job.Source.Bucket, job.Source.Key)
	if err != nil {
		logCtx.Warn("Failed to download PDF for page count.", "error", err)
		return 0
	}
	tempDir, err := os.MkdirTemp("", "validate-*")
	if err != nil {
		logCtx.Warn("Failed to create temp dir for page count.", "error", err)
		return 0
	}
	defer os.RemoveAll(tempDir)

	path := filepath.Join(tempDir, "source.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		logCtx.Warn("Failed to write temp PDF.", "error", err)
		return 0
	}
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, cfg); err != nil {
		logCtx.Warn("PDF failed relaxed validation.", "error", err)
	}
	count, err := api.PageCountFile(path)
	if err != nil {
		logCtx.Warn("Failed to count PDF pages.", "error", err)
		return 0
	}
	return count
}
