package services

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aseekbot/pipeline/internal/gcp"
	"github.com/aseekbot/pipeline/internal/models"
)

func TestFileDownload(t *testing.T) {
	store := gcp.NewMemStore()
	f := NewFileAPI(store, "uploads")

	rr := httptest.NewRecorder()
	f.Handle(rr, httptest.NewRequest(http.MethodGet, "/files/download?key=u1/quote.pdf", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp models.DownloadResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Contains(t, resp.URL, "uploads/u1/quote.pdf")
}

func TestFileDownloadMissingKey(t *testing.T) {
	f := NewFileAPI(gcp.NewMemStore(), "uploads")
	rr := httptest.NewRecorder()
	f.Handle(rr, httptest.NewRequest(http.MethodGet, "/files/download", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestFileUpload(t *testing.T) {
	store := gcp.NewMemStore()
	f := NewFileAPI(store, "uploads")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "quote.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.7 content"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/files/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	f.Handle(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp models.UploadResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "quote.pdf", resp.FileName)
	assert.Equal(t, "pdf", resp.FileType)
	assert.Equal(t, int64(len("%PDF-1.7 content")), resp.FileSize)
	assert.Contains(t, resp.FileURL, "gs://uploads/uploads/")

	// The object really landed in the store.
	key := resp.FileURL[len("gs://uploads/"):]
	data, err := store.Get(context.Background(), "uploads", key)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7 content"), data)
}

func TestFileUploadMissingPart(t *testing.T) {
	f := NewFileAPI(gcp.NewMemStore(), "uploads")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("note", "no file here"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/files/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	f.Handle(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestFileUnknownRoute(t *testing.T) {
	f := NewFileAPI(gcp.NewMemStore(), "uploads")
	rr := httptest.NewRecorder()
	f.Handle(rr, httptest.NewRequest(http.MethodGet, "/files/list", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
