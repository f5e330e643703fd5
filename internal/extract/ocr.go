package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aseekbot/pipeline/internal/gcp"
	"github.com/aseekbot/pipeline/internal/models"
)

const (
	// syncSizeLimit is the largest object the synchronous OCR calls accept.
	syncSizeLimit = 5 * 1024 * 1024

	pollBaseDelay   = 1 * time.Second
	pollMaxDelay    = 10 * time.Second
	pollFactor      = 1.5
	maxPollAttempts = 24

	// EmptyResultText is returned when every OCR strategy yields no text.
	// OCR emptiness is an expected edge case, not an error.
	EmptyResultText = "No text could be detected in this document. It may be blank, contain only images, or use a script the OCR engine does not recognize."
	// MethodEmptyResult tags the empty-result fallback.
	MethodEmptyResult = "textract-empty-result"
)

// extractOCR runs the OCR strategy ladder: sync dual-attempt for small
// objects, then an async forms/tables analysis job, then an async plain
// detection job, then the fixed empty-result placeholder. Strategy failures
// never halt the pipeline; only a definitive job FAILED or poll exhaustion
// attaches an error object to the job, and even then the fallback text
// carries the payload forward.
func (e *Extractor) extractOCR(ctx context.Context, job *models.JobPayload) {
	logCtx := slog.With("documentId", job.DocumentID, "fileType", job.FileType)
	mimeType := ocrMimeType(job.FileType)

	var text string
	var blocks []gcp.OCRBlock
	method := ""

	if job.FileSizeBytes > 0 && job.FileSizeBytes < syncSizeLimit {
		text, blocks, method = e.trySyncOCR(ctx, job, mimeType, logCtx)
	}

	if strings.TrimSpace(text) == "" {
		asyncText, asyncBlocks, asyncMethod, err := e.tryAsyncOCR(ctx, job, mimeType, logCtx)
		if err != nil {
			job.Error = &models.ErrorDetail{Message: err.Error(), Kind: "ocr"}
		}
		if strings.TrimSpace(asyncText) != "" {
			text, blocks, method = asyncText, asyncBlocks, asyncMethod
		}
	}

	if strings.TrimSpace(text) == "" {
		logCtx.Warn("All OCR strategies yielded empty text, using fallback.")
		job.ExtractedText = EmptyResultText
		job.TextExtractionMethod = MethodEmptyResult
		return
	}

	job.ExtractedText = text
	job.TextExtractionMethod = method
	e.externalizeBlocks(ctx, job, blocks)
}

// trySyncOCR attempts both synchronous calls and keeps whichever yields more
// text. Sync failure is non-fatal and falls through to the async path.
func (e *Extractor) trySyncOCR(ctx context.Context, job *models.JobPayload, mimeType string, logCtx *slog.Logger) (string, []gcp.OCRBlock, string) {
	data, err := e.store.Get(ctx, job.Source.Bucket, job.Source.Key)
	if err != nil {
		logCtx.Warn("Failed to fetch object for sync OCR, falling through to async.", "error", err)
		return "", nil, ""
	}

	detectText, detectBlocks, detectErr := e.ocr.DetectTextSync(ctx, data, mimeType)
	if detectErr != nil {
		logCtx.Warn("Sync text detection failed.", "error", detectErr)
	}
	analyzeText, analyzeBlocks, analyzeErr := e.ocr.AnalyzeDocumentSync(ctx, data, mimeType)
	if analyzeErr != nil {
		logCtx.Warn("Sync document analysis failed.", "error", analyzeErr)
	}

	if len(analyzeText) > len(detectText) {
		return analyzeText, analyzeBlocks, "textract"
	}
	if detectText != "" {
		return detectText, detectBlocks, "textract"
	}
	return "", nil, ""
}

// tryAsyncOCR submits a forms/tables analysis job, and if that yields no
// usable text falls back to a plain detection job under the same polling
// discipline. The returned error marks definitive failure of the async path.
func (e *Extractor) tryAsyncOCR(ctx context.Context, job *models.JobPayload, mimeType string, logCtx *slog.Logger) (string, []gcp.OCRBlock, string, error) {
	text, blocks, err := e.runOCRJob(ctx, logCtx, "analysis", func() (string, error) {
		return e.ocr.StartAnalysisJob(ctx, job.Source, mimeType)
	})
	if err == nil && strings.TrimSpace(text) != "" {
		return text, blocks, "textract-analysis", nil
	}
	if err != nil {
		logCtx.Warn("Async analysis job failed, falling back to text detection.", "error", err)
	} else {
		logCtx.Info("Async analysis yielded no usable text, falling back to text detection.")
	}

	text, blocks, err = e.runOCRJob(ctx, logCtx, "detection", func() (string, error) {
		return e.ocr.StartDetectionJob(ctx, job.Source, mimeType)
	})
	if err != nil {
		return "", nil, "", err
	}
	return text, blocks, "textract-detection", nil
}

// runOCRJob submits one async job, polls it to a terminal state and pages
// through the full result set.
func (e *Extractor) runOCRJob(ctx context.Context, logCtx *slog.Logger, kind string, start func() (string, error)) (string, []gcp.OCRBlock, error) {
	jobID, err := start()
	if err != nil {
		return "", nil, fmt.Errorf("failed to submit OCR %s job: %w", kind, err)
	}
	logCtx.Info("Submitted async OCR job.", "kind", kind, "jobId", jobID)

	if err := e.waitForOCRJob(ctx, jobID); err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	var blocks []gcp.OCRBlock
	token := ""
	for {
		page, err := e.ocr.JobResults(ctx, jobID, token)
		if err != nil {
			return "", nil, fmt.Errorf("failed to fetch OCR %s results: %w", kind, err)
		}
		if sb.Len() > 0 && page.Text != "" {
			sb.WriteByte('\n')
		}
		sb.WriteString(page.Text)
		blocks = append(blocks, page.Blocks...)
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}
	return sb.String(), blocks, nil
}

// waitForOCRJob polls with exponential backoff until the job reaches a
// terminal state. The attempt ceiling guarantees termination: a job that
// never finishes surfaces as a timeout error, it never loops forever.
func (e *Extractor) waitForOCRJob(ctx context.Context, jobID string) error {
	delay := pollBaseDelay
	for attempt := 1; attempt <= maxPollAttempts; attempt++ {
		state, err := e.ocr.JobStatus(ctx, jobID)
		switch state {
		case gcp.OCRJobSucceeded:
			return nil
		case gcp.OCRJobFailed:
			if err == nil {
				err = fmt.Errorf("OCR job %s reported FAILED", jobID)
			}
			return err
		default:
			if err != nil {
				// Transient poll error: keep waiting, the ceiling bounds us.
				slog.Warn("OCR status poll failed, will retry.", "jobId", jobID, "attempt", attempt, "error", err)
			}
		}

		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
		delay = time.Duration(float64(delay) * pollFactor)
		if delay > pollMaxDelay {
			delay = pollMaxDelay
		}
	}
	return fmt.Errorf("OCR job %s did not reach a terminal state within %d polls", jobID, maxPollAttempts)
}

// externalizeBlocks stores oversized raw block lists out of band.
func (e *Extractor) externalizeBlocks(ctx context.Context, job *models.JobPayload, blocks []gcp.OCRBlock) {
	if len(blocks) <= maxInlineBlocks {
		return
	}
	ref, err := e.putJSON(ctx, job, "raw-blocks", blocks)
	if err != nil {
		slog.Warn("Failed to externalize raw OCR blocks.", "documentId", job.DocumentID, "error", err)
		return
	}
	job.RawBlocksRef = ref
}

func ocrMimeType(fileType string) string {
	switch strings.ToLower(fileType) {
	case "pdf":
		return "application/pdf"
	case "tiff":
		return "image/tiff"
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
