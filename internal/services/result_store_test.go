package services

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aseekbot/pipeline/internal/gcp"
	"github.com/aseekbot/pipeline/internal/models"
)

type fakeAgent struct {
	insights string
	err      error
	calls    int
}

func (a *fakeAgent) GenerateInsights(context.Context, *models.AnalysisResult, *models.ComparisonResult) (string, error) {
	a.calls++
	return a.insights, a.err
}

func storedJob() *models.JobPayload {
	return &models.JobPayload{
		DocumentID:      "doc-1",
		UserID:          "u1",
		AnalysisResults: &models.AnalysisResult{DocumentType: "Invoice"},
	}
}

func TestStoreResultWritesArtifact(t *testing.T) {
	store := gcp.NewMemStore()
	status := gcp.NewMemStatusStore()
	require.NoError(t, status.Create(context.Background(), &models.StatusRecord{DocumentID: "doc-1", Status: models.StatusProcessing}))
	agent := &fakeAgent{insights: "Negotiate a volume discount."}

	f := NewResultStore(store, status, agent, "results")
	out, err := f.Process(context.Background(), storedJob())
	require.NoError(t, err)

	assert.Equal(t, "gs://results/results/doc-1/analysis.json", out.ResultLocation)
	assert.Equal(t, "Negotiate a volume discount.", out.Insights)

	raw, err := store.Get(context.Background(), "results", "results/doc-1/analysis.json")
	require.NoError(t, err)
	var artifact models.ResultArtifact
	require.NoError(t, json.Unmarshal(raw, &artifact))
	assert.Equal(t, "doc-1", artifact.DocumentID)
	assert.True(t, artifact.ProcessingComplete)
	assert.NotEmpty(t, artifact.Timestamp)

	rec, err := status.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.Equal(t, 100, rec.Progress)
	assert.Equal(t, out.ResultLocation, rec.ResultLocation)
}

func TestStoreResultInsightsFallback(t *testing.T) {
	status := gcp.NewMemStatusStore()
	require.NoError(t, status.Create(context.Background(), &models.StatusRecord{DocumentID: "doc-1"}))
	agent := &fakeAgent{err: fmt.Errorf("model unavailable")}

	f := NewResultStore(gcp.NewMemStore(), status, agent, "results")
	out, err := f.Process(context.Background(), storedJob())
	require.NoError(t, err)
	assert.Equal(t, gcp.FallbackInsights, out.Insights)
}

func TestStoreResultNilAgent(t *testing.T) {
	status := gcp.NewMemStatusStore()
	require.NoError(t, status.Create(context.Background(), &models.StatusRecord{DocumentID: "doc-1"}))

	f := NewResultStore(gcp.NewMemStore(), status, nil, "results")
	out, err := f.Process(context.Background(), storedJob())
	require.NoError(t, err)
	assert.Equal(t, gcp.FallbackInsights, out.Insights)
}

func TestStoreResultIdempotent(t *testing.T) {
	store := gcp.NewMemStore()
	status := gcp.NewMemStatusStore()
	require.NoError(t, status.Create(context.Background(), &models.StatusRecord{DocumentID: "doc-1"}))
	require.NoError(t, store.Put(context.Background(), "results", "results/doc-1/analysis.json", "application/json", []byte(`{"documentId":"doc-1","insights":"original"}`)))

	f := NewResultStore(store, status, &fakeAgent{insights: "replay"}, "results")
	_, err := f.Process(context.Background(), storedJob())
	require.NoError(t, err)

	// A replayed step must not clobber the first write.
	raw, err := store.Get(context.Background(), "results", "results/doc-1/analysis.json")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "original")
}
