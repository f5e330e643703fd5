package extract

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aseekbot/pipeline/internal/gcp"
	"github.com/aseekbot/pipeline/internal/models"
)

const testBucket = "documents"
const artifactBucket = "artifacts"

func newTestExtractor(store *gcp.MemStore, ocr gcp.OCRBackend) *Extractor {
	e := New(store, ocr, artifactBucket)
	e.sleep = func(context.Context, time.Duration) error { return nil }
	return e
}

func putObject(t *testing.T, store *gcp.MemStore, key, contentType string, data []byte) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), testBucket, key, contentType, data))
}

func newJob(key, fileType string) *models.JobPayload {
	return &models.JobPayload{
		DocumentID: "doc-1",
		Source:     models.ObjectRef{Bucket: testBucket, Key: key},
		FileType:   fileType,
	}
}

func TestExtractPlainText(t *testing.T) {
	store := gcp.NewMemStore()
	putObject(t, store, "notes.txt", "text/plain", []byte("hello world"))

	job := newJob("notes.txt", "txt")
	newTestExtractor(store, nil).Run(context.Background(), job)

	assert.Equal(t, "hello world", job.ExtractedText)
	assert.Equal(t, "text-file", job.TextExtractionMethod)
	assert.False(t, job.TextTruncated)
}

func TestExtractCSV(t *testing.T) {
	store := gcp.NewMemStore()
	putObject(t, store, "data.csv", "text/csv", []byte("vendor,price\nAcme,100\nGlobex,250\n"))

	job := newJob("data.csv", "csv")
	newTestExtractor(store, nil).Run(context.Background(), job)

	assert.Equal(t, "csv-parser", job.TextExtractionMethod)
	assert.Contains(t, job.ExtractedText, `"vendor": "Acme"`)
	assert.Contains(t, job.ExtractedText, `"price": "250"`)
}

func TestExtractCSVEmpty(t *testing.T) {
	store := gcp.NewMemStore()
	putObject(t, store, "empty.csv", "text/csv", nil)

	job := newJob("empty.csv", "csv")
	newTestExtractor(store, nil).Run(context.Background(), job)

	assert.Equal(t, "The CSV file is empty.", job.ExtractedText)
	assert.Equal(t, "csv-parser", job.TextExtractionMethod)
}

func TestExtractCSVRaggedRows(t *testing.T) {
	store := gcp.NewMemStore()
	putObject(t, store, "ragged.csv", "text/csv", []byte("a,b\n1,2,3\n4\n"))

	job := newJob("ragged.csv", "csv")
	newTestExtractor(store, nil).Run(context.Background(), job)

	assert.Equal(t, "csv-parser", job.TextExtractionMethod)
	assert.Contains(t, job.ExtractedText, `"column_3": "3"`)
}

func TestExtractMissingObjectDegrades(t *testing.T) {
	store := gcp.NewMemStore()
	job := newJob("gone.csv", "csv")
	newTestExtractor(store, nil).Run(context.Background(), job)

	assert.Equal(t, "csv-parser-error", job.TextExtractionMethod)
	assert.Contains(t, job.ExtractedText, "Text extraction failed")
	assert.NotEmpty(t, job.ExtractedText)
}

func TestUnsupportedFileType(t *testing.T) {
	store := gcp.NewMemStore()
	job := newJob("movie.mp4", "mp4")
	newTestExtractor(store, nil).Run(context.Background(), job)

	assert.Equal(t, "unsupported-error", job.TextExtractionMethod)
	assert.NotEmpty(t, job.ExtractedText)
}

func TestExternalizeLargeText(t *testing.T) {
	store := gcp.NewMemStore()
	large := strings.Repeat("x", maxInlineTextChars+1)
	putObject(t, store, "big.txt", "text/plain", []byte(large))

	job := newJob("big.txt", "txt")
	newTestExtractor(store, nil).Run(context.Background(), job)

	assert.True(t, job.TextTruncated)
	require.NotNil(t, job.TextRef)
	assert.Equal(t, artifactBucket, job.TextRef.Bucket)
	assert.Len(t, job.ExtractedText, previewTextChars+len(truncationMarker))
	assert.True(t, strings.HasSuffix(job.ExtractedText, truncationMarker))

	stored, err := store.Get(context.Background(), job.TextRef.Bucket, job.TextRef.Key)
	require.NoError(t, err)
	assert.Len(t, stored, len(large))
}

func TestExternalizePreviewEndsOnRuneBoundary(t *testing.T) {
	store := gcp.NewMemStore()
	// 3-byte runes; the byte cut at previewTextChars lands mid-rune.
	text := strings.Repeat("€", 40000)
	putObject(t, store, "unicode.txt", "text/plain", []byte(text))

	job := newJob("unicode.txt", "txt")
	newTestExtractor(store, nil).Run(context.Background(), job)

	require.True(t, job.TextTruncated)
	assert.True(t, utf8.ValidString(job.ExtractedText))
	preview := strings.TrimSuffix(job.ExtractedText, truncationMarker)
	assert.Equal(t, previewTextChars-previewTextChars%3, len(preview))
}

func TestInlineTextNotExternalized(t *testing.T) {
	store := gcp.NewMemStore()
	text := strings.Repeat("y", maxInlineTextChars)
	putObject(t, store, "edge.txt", "text/plain", []byte(text))

	job := newJob("edge.txt", "txt")
	newTestExtractor(store, nil).Run(context.Background(), job)

	assert.False(t, job.TextTruncated)
	assert.Nil(t, job.TextRef)
	assert.Len(t, job.ExtractedText, maxInlineTextChars)
}
