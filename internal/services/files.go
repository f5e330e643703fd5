package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/aseekbot/pipeline/internal/gcp"
	"github.com/aseekbot/pipeline/internal/models"
)

const (
	downloadURLExpiry  = 300 * time.Second
	maxUploadMemory    = 32 << 20
	uploadedFilePrefix = "uploads"
)

// FileFunction serves document upload and signed-download endpoints for the
// front end.
type FileFunction struct {
	store  gcp.ContentStore
	bucket string
}

func NewFileAPI(store gcp.ContentStore, bucket string) *FileFunction {
	return &FileFunction{store: store, bucket: bucket}
}

// NewFileAPIFromEnv builds the API against the real storage client.
func NewFileAPIFromEnv(ctx context.Context) (*FileFunction, error) {
	bucket := gcp.GetEnv("UPLOAD_BUCKET", "")
	if bucket == "" {
		return nil, fmt.Errorf("UPLOAD_BUCKET environment variable must be set")
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return NewFileAPI(gcp.NewGCSStore(storageClient), bucket), nil
}

// Handle routes /files/download (GET) and /files/upload (POST).
func (f *FileFunction) Handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/download") && r.Method == http.MethodGet:
		f.handleDownload(w, r)
	case strings.HasSuffix(r.URL.Path, "/upload") && r.Method == http.MethodPost:
		f.handleUpload(w, r)
	default:
		writeJSONError(w, http.StatusNotFound, "unknown file operation")
	}
}

// handleDownload returns a short-lived signed URL for a stored object.
func (f *FileFunction) handleDownload(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeJSONError(w, http.StatusBadRequest, "missing key")
		return
	}
	url, err := f.store.SignedURL(f.bucket, key, downloadURLExpiry)
	if err != nil {
		slog.Error("Failed to sign download URL.", "key", key, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to generate download URL")
		return
	}
	writeJSON(w, http.StatusOK, models.DownloadResponse{URL: url})
}

// handleUpload accepts a multipart form with a single "file" part and stores
// it under a collision-free key.
func (f *FileFunction) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeJSONError(w, http.StatusBadRequest, "could not parse multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		slog.Error("Failed to read uploaded file.", "name", header.Filename, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to read upload")
		return
	}

	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	key := fmt.Sprintf("%s/%s/%s", uploadedFilePrefix, uuid.NewString(), header.Filename)
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := f.store.Put(r.Context(), f.bucket, key, contentType, data); err != nil {
		slog.Error("Failed to store uploaded file.", "key", key, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	slog.Info("File uploaded.", "key", key, "bytes", len(data))
	writeJSON(w, http.StatusOK, models.UploadResponse{
		Success:  true,
		FileURL:  fmt.Sprintf("gs://%s/%s", f.bucket, key),
		FileName: header.Filename,
		FileType: fileType,
		FileSize: int64(len(data)),
	})
}
