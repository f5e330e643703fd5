// Package extract turns a stored document into text for downstream
// analysis. Extraction never fails the pipeline: every internal error
// degrades to an explanatory placeholder plus a method tag suffixed
// "-error", so the analyzer always receives something textual.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aseekbot/pipeline/internal/gcp"
	"github.com/aseekbot/pipeline/internal/models"
)

const (
	// maxInlineTextChars bounds the text carried through the workflow
	// payload. Larger text is externalized to the content store and
	// replaced by a preview plus a reference.
	maxInlineTextChars = 100000
	previewTextChars   = 50000
	truncationMarker   = " ... (truncated, full content in S3)"

	// maxInlineBlocks bounds raw OCR block lists kept in the payload.
	maxInlineBlocks = 1000
)

// Extractor dispatches to the format-specific extraction strategies.
type Extractor struct {
	store          gcp.ContentStore
	ocr            gcp.OCRBackend
	artifactBucket string

	// sleep is swapped out by tests to avoid real poll delays.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(store gcp.ContentStore, ocr gcp.OCRBackend, artifactBucket string) *Extractor {
	return &Extractor{
		store:          store,
		ocr:            ocr,
		artifactBucket: artifactBucket,
		sleep:          sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run extracts text for the job's file type and extends the payload with
// extractedText, textExtractionMethod and any externalized references.
// It always leaves a non-empty extractedText behind.
func (e *Extractor) Run(ctx context.Context, job *models.JobPayload) {
	logCtx := slog.With("documentId", job.DocumentID, "fileType", job.FileType)
	logCtx.Info("Starting text extraction.")

	switch strings.ToLower(job.FileType) {
	case "csv":
		e.extractCSV(ctx, job)
	case "xlsx":
		e.extractSpreadsheet(ctx, job)
	case "docx":
		e.extractDocx(ctx, job)
	case "txt":
		e.extractPlainText(ctx, job)
	case "pdf", "tiff", "jpeg", "jpg", "png":
		e.extractOCR(ctx, job)
	default:
		job.ExtractedText = fmt.Sprintf("Unsupported file type %q reached the extraction stage.", job.FileType)
		job.TextExtractionMethod = "unsupported-error"
	}

	if job.ExtractedText == "" {
		job.ExtractedText = "No text content was produced by the extraction stage."
		if job.TextExtractionMethod == "" {
			job.TextExtractionMethod = "empty-error"
		}
	}

	e.externalizeText(ctx, job)
	logCtx.Info("Text extraction complete.", "method", job.TextExtractionMethod, "chars", len(job.ExtractedText))
}

// degrade records a failed strategy as placeholder output instead of an error.
func degrade(job *models.JobPayload, method, what string, err error) {
	slog.Warn("Extraction degraded to placeholder.", "documentId", job.DocumentID, "method", method, "error", err)
	job.ExtractedText = fmt.Sprintf("Text extraction failed for this %s file: %v. The document was stored but its content could not be read.", what, err)
	job.TextExtractionMethod = method + "-error"
}

func (e *Extractor) extractPlainText(ctx context.Context, job *models.JobPayload) {
	data, err := e.store.Get(ctx, job.Source.Bucket, job.Source.Key)
	if err != nil {
		degrade(job, "text-file", "text", err)
		return
	}
	job.ExtractedText = string(data)
	job.TextExtractionMethod = "text-file"
}

// externalizeText enforces the payload size limit on extractedText, storing
// the full text out of band when it exceeds the threshold.
func (e *Extractor) externalizeText(ctx context.Context, job *models.JobPayload) {
	if len(job.ExtractedText) <= maxInlineTextChars {
		return
	}
	key := fmt.Sprintf("artifacts/%s/full-text.txt", job.DocumentID)
	if err := e.store.Put(ctx, e.artifactBucket, key, "text/plain", []byte(job.ExtractedText)); err != nil {
		// Without a reference we must not drop content silently; keep the
		// oversized text and let the workflow reject it loudly if it must.
		slog.Error("Failed to externalize extracted text.", "documentId", job.DocumentID, "error", err)
		return
	}
	job.TextRef = &models.ObjectRef{Bucket: e.artifactBucket, Key: key}
	job.TextTruncated = true
	// Back the cut off to a rune boundary so the preview stays valid UTF-8.
	cut := previewTextChars
	for cut > 0 && !utf8.RuneStart(job.ExtractedText[cut]) {
		cut--
	}
	job.ExtractedText = job.ExtractedText[:cut] + truncationMarker
}

// putJSON stores a JSON side artifact and returns its reference.
func (e *Extractor) putJSON(ctx context.Context, job *models.JobPayload, name string, v interface{}) (*models.ObjectRef, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	key := fmt.Sprintf("artifacts/%s/%s.json", job.DocumentID, name)
	if err := e.store.Put(ctx, e.artifactBucket, key, "application/json", data); err != nil {
		return nil, err
	}
	return &models.ObjectRef{Bucket: e.artifactBucket, Key: key}, nil
}
