package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aseekbot/pipeline/internal/gcp"
	"github.com/aseekbot/pipeline/internal/models"
)

func validatorFixture(t *testing.T) (*ValidatorFunction, *gcp.MemStore, *gcp.MemStatusStore) {
	t.Helper()
	store := gcp.NewMemStore()
	status := gcp.NewMemStatusStore()
	return NewValidator(store, status), store, status
}

func validationJob(key, fileType string) *models.JobPayload {
	return &models.JobPayload{
		DocumentID: "doc-1",
		Source:     models.ObjectRef{Bucket: "documents", Key: key},
		FileType:   fileType,
	}
}

func TestValidateMissingObject(t *testing.T) {
	v, _, _ := validatorFixture(t)

	_, err := v.Process(context.Background(), validationJob("nope.pdf", "pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source document does not exist")
}

func TestValidateOversizedObject(t *testing.T) {
	v, store, _ := validatorFixture(t)
	big := make([]byte, MaxDocumentBytes+1)
	require.NoError(t, store.Put(context.Background(), "documents", "big.pdf", "application/pdf", big))

	_, err := v.Process(context.Background(), validationJob("big.pdf", "pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum allowed")
}

func TestValidateSizeLimitBoundary(t *testing.T) {
	v, store, _ := validatorFixture(t)
	exact := make([]byte, MaxDocumentBytes)
	require.NoError(t, store.Put(context.Background(), "documents", "exact.txt", "text/plain", exact))

	job, err := v.Process(context.Background(), validationJob("exact.txt", "txt"))
	require.NoError(t, err)
	assert.Equal(t, int64(MaxDocumentBytes), job.FileSizeBytes)
}

func TestResolveFileType(t *testing.T) {
	cases := []struct {
		name        string
		declared    string
		contentType string
		want        string
		wantErr     bool
	}{
		{"content type wins", "bin", "application/pdf", "pdf", false},
		{"wordprocessingml override", "zip", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "docx", false},
		{"spreadsheetml override", "", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx", false},
		{"legacy excel", "", "application/vnd.ms-excel", "xlsx", false},
		{"csv content type", "", "text/csv; charset=utf-8", "csv", false},
		{"plain text", "", "text/plain", "txt", false},
		{"declared type honored", "docx", "application/octet-stream", "docx", false},
		{"jpg normalized", "jpg", "", "jpeg", false},
		{"dotted extension", ".pdf", "", "pdf", false},
		{"uppercase declared", "PDF", "", "pdf", false},
		{"unsupported", "exe", "application/octet-stream", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveFileType(tc.declared, tc.contentType)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unsupported file type")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestValidateSetsOCREligibility(t *testing.T) {
	v, store, _ := validatorFixture(t)
	require.NoError(t, store.Put(context.Background(), "documents", "scan.png", "image/png", []byte("png")))
	require.NoError(t, store.Put(context.Background(), "documents", "data.csv", "text/csv", []byte("a,b")))

	scan, err := v.Process(context.Background(), validationJob("scan.png", "png"))
	require.NoError(t, err)
	assert.True(t, scan.OCRSupported)

	data, err := v.Process(context.Background(), validationJob("data.csv", "csv"))
	require.NoError(t, err)
	assert.False(t, data.OCRSupported)
}

func TestValidateRecordsProgress(t *testing.T) {
	v, store, status := validatorFixture(t)
	require.NoError(t, store.Put(context.Background(), "documents", "doc.txt", "text/plain", []byte("hi")))
	require.NoError(t, status.Create(context.Background(), &models.StatusRecord{DocumentID: "doc-1", Status: models.StatusQueued}))

	_, err := v.Process(context.Background(), validationJob("doc.txt", "txt"))
	require.NoError(t, err)

	rec, err := status.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, rec.Status)
	assert.Equal(t, 10, rec.Progress)
	assert.True(t, strings.Contains(rec.Message, "Validating"))
}

func TestValidateBrokenPDFDegradesPageCount(t *testing.T) {
	v, store, _ := validatorFixture(t)
	require.NoError(t, store.Put(context.Background(), "documents", "bad.pdf", "application/pdf", []byte("not really a pdf")))

	job, err := v.Process(context.Background(), validationJob("bad.pdf", "pdf"))
	require.NoError(t, err)
	assert.Equal(t, 0, job.PageCount)
	assert.Equal(t, "pdf", job.FileType)
}
