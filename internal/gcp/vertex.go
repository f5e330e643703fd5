package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"

	"github.com/aseekbot/pipeline/internal/models"
)

// --- Insights Model Prompts ---
const InsightsSystemPrompt = "You are a procurement analyst. Given the structured analysis of a supplier document, produce 3 to 5 short, actionable recommendations for the procurement team. Be specific about vendors, prices and risks you can see in the data. Return plain text bullet points only."
const InsightsUserPrompt = `Review the following document analysis JSON and summarize what the procurement team should know or do next. Mention concrete vendors and price points when they are present. Do not invent data that is not in the input.`

// FallbackInsights is returned when the model is unavailable. Insights are a
// nice-to-have; their absence must never fail the pipeline.
const FallbackInsights = "Automated insights are unavailable for this document. Review the extracted analysis results directly."

// InsightsAgent produces a short recommendation summary from an analysis
// result. Implementations must be safe to call from concurrent jobs.
type InsightsAgent interface {
	GenerateInsights(ctx context.Context, analysis *models.AnalysisResult, comparison *models.ComparisonResult) (string, error)
}

// VertexClient holds the pre-configured generative model for insights.
type VertexClient struct {
	InsightsModel *genai.GenerativeModel
	baseClient    *genai.Client
}

// NewVertexClient creates a new client holding all necessary models.
func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	insightsModel := baseClient.GenerativeModel("gemini-1.5-pro")
	insightsModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(InsightsSystemPrompt)},
	}
	insightsModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.2),
	}

	return &VertexClient{
		InsightsModel: insightsModel,
		baseClient:    baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

// GenerateInsights calls the model with bounded retry and exponential
// backoff. The retry ceiling guarantees termination; callers degrade to
// FallbackInsights when every attempt fails.
func (c *VertexClient) GenerateInsights(ctx context.Context, analysis *models.AnalysisResult, comparison *models.ComparisonResult) (string, error) {
	input := map[string]interface{}{"analysisResults": analysis}
	if comparison != nil {
		input["comparisonResults"] = comparison
	}
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to marshal analysis for insights prompt: %w", err)
	}

	const maxRetries = 3
	backoff := 1 * time.Second
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := c.InsightsModel.GenerateContent(ctx,
			genai.Text(InsightsUserPrompt),
			genai.Text(string(inputJSON)),
		)
		if err == nil {
			if text := extractResponseText(resp); text != "" {
				return text, nil
			}
			err = fmt.Errorf("model returned an empty insights response")
		}

		lastErr = err
		slog.Warn("Insights generation failed, will retry.", "attempt", attempt+1, "maxRetries", maxRetries, "backoff", backoff.String(), "error", err)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("insights generation failed after all retries: %w", lastErr)
}

// extractResponseText robustly gets the raw text content from the model response.
func extractResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(sb.String())
}
