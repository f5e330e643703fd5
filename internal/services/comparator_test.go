package services

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aseekbot/pipeline/internal/gcp"
	"github.com/aseekbot/pipeline/internal/models"
)

func storeSiblingArtifact(t *testing.T, store *gcp.MemStore, bucket, documentID string, analysis *models.AnalysisResult) {
	t.Helper()
	data, err := json.Marshal(models.ResultArtifact{
		DocumentID:      documentID,
		AnalysisResults: analysis,
	})
	require.NoError(t, err)
	key := fmt.Sprintf("results/%s/analysis.json", documentID)
	require.NoError(t, store.Put(context.Background(), bucket, key, "application/json", data))
}

func comparisonJob() *models.JobPayload {
	return &models.JobPayload{
		DocumentID:          "doc-1",
		IsMultipleDocuments: true,
		SiblingDocumentIDs:  []string{"doc-2", "doc-3"},
		AnalysisResults: &models.AnalysisResult{
			DocumentType: "Vendor Proposal",
			Entities: models.Entities{
				Vendors: []string{"Acme Corp", "Initech"},
				Prices:  []string{"$100.00"},
			},
		},
	}
}

func TestCompareSkippedForSingleDocument(t *testing.T) {
	f := NewComparator(gcp.NewMemStore(), gcp.NewMemStatusStore(), "results")
	job := &models.JobPayload{DocumentID: "doc-1"}

	out, err := f.Process(context.Background(), job)
	require.NoError(t, err)
	assert.Nil(t, out.ComparisonResults)
}

func TestCompareAcrossSiblings(t *testing.T) {
	store := gcp.NewMemStore()
	storeSiblingArtifact(t, store, "results", "doc-2", &models.AnalysisResult{
		DocumentType: "Vendor Proposal",
		Entities: models.Entities{
			Vendors: []string{"Acme Corp"},
			Prices:  []string{"$250.00"},
		},
	})
	storeSiblingArtifact(t, store, "results", "doc-3", &models.AnalysisResult{
		DocumentType: "Invoice",
		Entities: models.Entities{
			Vendors: []string{"Acme Corp", "Globex"},
			Prices:  []string{"75.50 USD"},
		},
	})

	f := NewComparator(store, gcp.NewMemStatusStore(), "results")
	job := comparisonJob()

	out, err := f.Process(context.Background(), job)
	require.NoError(t, err)
	require.NotNil(t, out.ComparisonResults)

	result := out.ComparisonResults
	assert.Len(t, result.DocumentIDs, 3)
	assert.Equal(t, []string{"Acme Corp"}, result.CommonVendors)
	assert.Equal(t, "75.50 - 250.00", result.PriceRange)
	assert.Contains(t, result.Recommendation, "share 1 vendor(s)")
}

func TestCompareMissingSiblingIsFatal(t *testing.T) {
	store := gcp.NewMemStore()
	storeSiblingArtifact(t, store, "results", "doc-2", &models.AnalysisResult{DocumentType: "Invoice"})
	// doc-3 artifact intentionally absent

	f := NewComparator(store, gcp.NewMemStatusStore(), "results")
	f.sleep = func(context.Context, time.Duration) error { return nil }

	_, err := f.Process(context.Background(), comparisonJob())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "doc-3")
}

func TestCompareWaitsForLateSiblingArtifact(t *testing.T) {
	store := gcp.NewMemStore()
	storeSiblingArtifact(t, store, "results", "doc-2", &models.AnalysisResult{DocumentType: "Invoice"})
	// doc-3's store stage is still running; its artifact shows up after a
	// few polls.
	polls := 0
	f := NewComparator(store, gcp.NewMemStatusStore(), "results")
	f.sleep = func(context.Context, time.Duration) error {
		polls++
		if polls == 3 {
			storeSiblingArtifact(t, store, "results", "doc-3", &models.AnalysisResult{DocumentType: "Quotation"})
		}
		return nil
	}

	out, err := f.Process(context.Background(), comparisonJob())
	require.NoError(t, err)
	require.NotNil(t, out.ComparisonResults)
	assert.Len(t, out.ComparisonResults.DocumentIDs, 3)
	assert.GreaterOrEqual(t, polls, 3)
}

func TestCompareNoOverlap(t *testing.T) {
	analyses := []*models.AnalysisResult{
		{DocumentType: "Invoice", Entities: models.Entities{Vendors: []string{"A"}, Prices: []string{"$1.00"}}},
		{DocumentType: "Invoice", Entities: models.Entities{Vendors: []string{"B"}, Prices: []string{"$2.00"}}},
	}
	result := compare([]string{"d1", "d2"}, analyses)
	assert.Empty(t, result.CommonVendors)
	assert.Equal(t, "1.00 - 2.00", result.PriceRange)
	assert.Contains(t, result.Recommendation, "No overlapping vendors")
}

func TestCompareInsufficientData(t *testing.T) {
	analyses := []*models.AnalysisResult{
		{DocumentType: "Invoice"},
		{DocumentType: "Contract Document"},
	}
	result := compare([]string{"d1", "d2"}, analyses)
	assert.Empty(t, result.PriceRange)
	assert.Contains(t, result.Recommendation, "Insufficient overlapping data")
}

func TestParsePrice(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"$1,234.56", 1234.56, true},
		{"75.50 USD", 75.5, true},
		{"€99", 99, true},
		{"free", 0, false},
	}
	for _, tc := range cases {
		got, ok := parsePrice(tc.raw)
		assert.Equal(t, tc.ok, ok, tc.raw)
		if tc.ok {
			assert.InDelta(t, tc.want, got, 0.001, tc.raw)
		}
	}
}
