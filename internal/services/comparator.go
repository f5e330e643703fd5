package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"

	"github.com/aseekbot/pipeline/internal/gcp"
	"github.com/aseekbot/pipeline/internal/models"
)

const (
	// Sibling executions race this stage; their artifacts are awaited with a
	// bounded poll before a missing sibling becomes fatal.
	siblingPollInterval = 2 * time.Second
	siblingPollAttempts = 30
)

// ComparatorFunction is the optional multi-document comparison stage. It
// only runs when the job carries isMultipleDocuments and sibling ids.
type ComparatorFunction struct {
	store        gcp.ContentStore
	status       gcp.StatusStore
	resultBucket string

	// sleep is swapped out by tests to avoid real poll delays.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewComparator(store gcp.ContentStore, status gcp.StatusStore, resultBucket string) *ComparatorFunction {
	return &ComparatorFunction{store: store, status: status, resultBucket: resultBucket, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewComparatorFromEnv builds the stage against real GCP clients.
func NewComparatorFromEnv(ctx context.Context) (*ComparatorFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	resultBucket := gcp.GetEnv("RESULT_BUCKET", "")
	if resultBucket == "" {
		return nil, fmt.Errorf("RESULT_BUCKET environment variable must be set")
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
	return NewComparator(gcp.NewGCSStore(storageClient), gcp.NewFirestoreStatusStore(firestoreClient, collection), resultBucket), nil
}

// Process fetches the sibling documents' analysis artifacts concurrently and
// derives a comparison. A sibling that cannot be fetched is fatal: comparing
// a partial set would produce a silently wrong recommendation.
func (f *ComparatorFunction) Process(ctx context.Context, job *models.JobPayload) (*models.JobPayload, error) {
	if !job.IsMultipleDocuments || len(job.SiblingDocumentIDs) == 0 {
		return job, nil
	}
	markProcessing(ctx, f.status, job, 70, "Comparing documents")

	analyses := make([]*models.AnalysisResult, 0, len(job.SiblingDocumentIDs)+1)
	ids := make([]string, 0, len(job.SiblingDocumentIDs)+1)
	if job.AnalysisResults != nil {
		analyses = append(analyses, job.AnalysisResults)
		ids = append(ids, job.DocumentID)
	}

	var mu sync.Mutex
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(4)
	for _, siblingID := range job.SiblingDocumentIDs {
		siblingID := siblingID
		eg.Go(func() error {
			artifact, err := f.awaitSiblingArtifact(gctx, siblingID)
			if err != nil {
				return fmt.Errorf("sibling %s: %w", siblingID, err)
			}
			mu.Lock()
			analyses = append(analyses, artifact.AnalysisResults)
			ids = append(ids, siblingID)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("document comparison failed: %w", err)
	}

	job.ComparisonResults = compare(ids, analyses)
	slog.Info("Document comparison complete.", "documentId", job.DocumentID, "documents", len(ids))
	return job, nil
}

// awaitSiblingArtifact fetches a sibling's persisted analysis, polling while
// the artifact does not exist yet. Only a not-found error is retried; any
// other failure is immediately fatal.
func (f *ComparatorFunction) awaitSiblingArtifact(ctx context.Context, siblingID string) (*models.ResultArtifact, error) {
	key := fmt.Sprintf("results/%s/analysis.json", siblingID)
	for attempt := 1; ; attempt++ {
		data, err := f.store.Get(ctx, f.resultBucket, key)
		if err == nil {
			var artifact models.ResultArtifact
			if err := json.Unmarshal(data, &artifact); err != nil {
				return nil, fmt.Errorf("failed to decode artifact: %w", err)
			}
			if artifact.AnalysisResults == nil {
				return nil, fmt.Errorf("artifact has no analysis results")
			}
			return &artifact, nil
		}
		if !errors.Is(err, gcp.ErrNotFound) || attempt >= siblingPollAttempts {
			return nil, err
		}
		slog.Debug("Sibling artifact not ready, waiting.", "sibling", siblingID, "attempt", attempt)
		if err := f.sleep(ctx, siblingPollInterval); err != nil {
			return nil, err
		}
	}
}

// compare derives the cross-document summary from the collected analyses.
func compare(ids []string, analyses []*models.AnalysisResult) *models.ComparisonResult {
	result := &models.ComparisonResult{DocumentIDs: ids}

	vendorCounts := make(map[string]int)
	var allPrices []float64
	for _, a := range analyses {
		result.DocumentTypes = append(result.DocumentTypes, a.DocumentType)
		seen := make(map[string]bool)
		for _, v := range a.Entities.Vendors {
			if !seen[v] {
				seen[v] = true
				vendorCounts[v]++
			}
		}
		for _, p := range a.Entities.Prices {
			if value, ok := parsePrice(p); ok {
				allPrices = append(allPrices, value)
			}
		}
	}

	for vendor, count := range vendorCounts {
		if count == len(analyses) {
			result.CommonVendors = append(result.CommonVendors, vendor)
		}
	}
	sort.Strings(result.CommonVendors)

	if len(allPrices) > 0 {
		sort.Float64s(allPrices)
		result.PriceRange = fmt.Sprintf("%.2f - %.2f", allPrices[0], allPrices[len(allPrices)-1])
	}

	switch {
	case len(result.CommonVendors) > 0:
		result.Recommendation = fmt.Sprintf("Documents share %d vendor(s); compare their terms directly before selecting.", len(result.CommonVendors))
	case len(allPrices) > 1:
		result.Recommendation = "No overlapping vendors were found; evaluate each offer on price and terms independently."
	default:
		result.Recommendation = "Insufficient overlapping data for an automated recommendation."
	}
	return result
}

var priceCleaner = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "", "USD", "", "EUR", "", "GBP", "")

func parsePrice(raw string) (float64, bool) {
	cleaned := priceCleaner.Replace(strings.ToUpper(raw))
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
