package gcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	documentai "google.golang.org/api/documentai/v1"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/aseekbot/pipeline/internal/models"
)

// OCRJobState is the lifecycle of an asynchronous OCR job.
type OCRJobState string

const (
	OCRJobInProgress OCRJobState = "IN_PROGRESS"
	OCRJobSucceeded  OCRJobState = "SUCCEEDED"
	OCRJobFailed     OCRJobState = "FAILED"
)

// OCRBlock is one detected text element, kept in block order.
type OCRBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Page int    `json:"page"`
}

// OCRResultsPage is one page of an async job's output. NextToken is empty on
// the last page.
type OCRResultsPage struct {
	Text      string
	Blocks    []OCRBlock
	NextToken string
}

// OCRBackend wraps the external text-detection/analysis service. Sync calls
// suit small files; large files go through the submit-then-poll job path.
// The extraction layer owns the polling discipline, the backend only exposes
// job submission, status and paginated results.
type OCRBackend interface {
	// DetectTextSync runs plain line detection on an inline document.
	DetectTextSync(ctx context.Context, data []byte, mimeType string) (string, []OCRBlock, error)
	// AnalyzeDocumentSync runs forms/tables-aware analysis on an inline document.
	AnalyzeDocumentSync(ctx context.Context, data []byte, mimeType string) (string, []OCRBlock, error)
	StartAnalysisJob(ctx context.Context, src models.ObjectRef, mimeType string) (string, error)
	StartDetectionJob(ctx context.Context, src models.ObjectRef, mimeType string) (string, error)
	JobStatus(ctx context.Context, jobID string) (OCRJobState, error)
	JobResults(ctx context.Context, jobID, pageToken string) (*OCRResultsPage, error)
}

// DocAIConfig identifies the two processors the pipeline uses: a plain OCR
// processor for text detection and a form parser for forms/tables analysis.
type DocAIConfig struct {
	ProjectID       string
	Location        string
	OCRProcessorID  string
	FormProcessorID string
	// OutputBucket receives the sharded JSON output of batch jobs.
	OutputBucket string
}

// DocAIClient implements OCRBackend over the Document AI v1 API.
type DocAIClient struct {
	svc           *documentai.Service
	storageClient *storage.Client
	config        DocAIConfig
}

func NewDocAIClient(ctx context.Context, storageClient *storage.Client, config DocAIConfig) (*DocAIClient, error) {
	if config.ProjectID == "" || config.Location == "" {
		return nil, fmt.Errorf("NewDocAIClient: ProjectID and Location cannot be empty")
	}
	endpoint := fmt.Sprintf("https://%s-documentai.googleapis.com/", config.Location)
	svc, err := documentai.NewService(ctx, option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("documentai.NewService: %w", err)
	}
	return &DocAIClient{svc: svc, storageClient: storageClient, config: config}, nil
}

func (c *DocAIClient) processorName(processorID string) string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", c.config.ProjectID, c.config.Location, processorID)
}

func (c *DocAIClient) DetectTextSync(ctx context.Context, data []byte, mimeType string) (string, []OCRBlock, error) {
	return c.processSync(ctx, c.config.OCRProcessorID, data, mimeType)
}

func (c *DocAIClient) AnalyzeDocumentSync(ctx context.Context, data []byte, mimeType string) (string, []OCRBlock, error) {
	return c.processSync(ctx, c.config.FormProcessorID, data, mimeType)
}

func (c *DocAIClient) processSync(ctx context.Context, processorID string, data []byte, mimeType string) (string, []OCRBlock, error) {
	req := &documentai.GoogleCloudDocumentaiV1ProcessRequest{
		RawDocument: &documentai.GoogleCloudDocumentaiV1RawDocument{
			Content:  base64.StdEncoding.EncodeToString(data),
			MimeType: mimeType,
		},
		SkipHumanReview: true,
	}
	resp, err := c.svc.Projects.Locations.Processors.Process(c.processorName(processorID), req).Context(ctx).Do()
	if err != nil {
		return "", nil, fmt.Errorf("documentai process: %w", err)
	}
	if resp.Document == nil {
		return "", nil, nil
	}
	return resp.Document.Text, documentBlocks(resp.Document), nil
}

func (c *DocAIClient) StartAnalysisJob(ctx context.Context, src models.ObjectRef, mimeType string) (string, error) {
	return c.startBatch(ctx, c.config.FormProcessorID, src, mimeType)
}

func (c *DocAIClient) StartDetectionJob(ctx context.Context, src models.ObjectRef, mimeType string) (string, error) {
	return c.startBatch(ctx, c.config.OCRProcessorID, src, mimeType)
}

func (c *DocAIClient) startBatch(ctx context.Context, processorID string, src models.ObjectRef, mimeType string) (string, error) {
	outputPrefix := fmt.Sprintf("docai-output/%s/", uuid.NewString())
	req := &documentai.GoogleCloudDocumentaiV1BatchProcessRequest{
		InputDocuments: &documentai.GoogleCloudDocumentaiV1BatchDocumentsInputConfig{
			GcsDocuments: &documentai.GoogleCloudDocumentaiV1GcsDocuments{
				Documents: []*documentai.GoogleCloudDocumentaiV1GcsDocument{
					{GcsUri: fmt.Sprintf("gs://%s/%s", src.Bucket, src.Key), MimeType: mimeType},
				},
			},
		},
		DocumentOutputConfig: &documentai.GoogleCloudDocumentaiV1DocumentOutputConfig{
			GcsOutputConfig: &documentai.GoogleCloudDocumentaiV1DocumentOutputConfigGcsOutputConfig{
				GcsUri: fmt.Sprintf("gs://%s/%s", c.config.OutputBucket, outputPrefix),
			},
		},
	}
	op, err := c.svc.Projects.Locations.Processors.BatchProcess(c.processorName(processorID), req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("documentai batch process: %w", err)
	}
	// The job id carries both the operation name and the output prefix, so
	// status and result lookups stay stateless across invocations.
	return op.Name + "|" + outputPrefix, nil
}

func splitJobID(jobID string) (opName, outputPrefix string, err error) {
	parts := strings.SplitN(jobID, "|", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed OCR job id %q", jobID)
	}
	return parts[0], parts[1], nil
}

func (c *DocAIClient) JobStatus(ctx context.Context, jobID string) (OCRJobState, error) {
	opName, _, err := splitJobID(jobID)
	if err != nil {
		return OCRJobFailed, err
	}
	op, err := c.svc.Projects.Locations.Operations.Get(opName).Context(ctx).Do()
	if err != nil {
		return OCRJobInProgress, fmt.Errorf("failed to poll operation %s: %w", opName, err)
	}
	if !op.Done {
		return OCRJobInProgress, nil
	}
	if op.Error != nil {
		return OCRJobFailed, fmt.Errorf("OCR job failed: %s (code %d)", op.Error.Message, op.Error.Code)
	}
	return OCRJobSucceeded, nil
}

// JobResults pages through the sharded JSON output of a finished batch job.
// Shards are read in object-name order, which preserves page order.
func (c *DocAIClient) JobResults(ctx context.Context, jobID, pageToken string) (*OCRResultsPage, error) {
	_, outputPrefix, err := splitJobID(jobID)
	if err != nil {
		return nil, err
	}

	const shardsPerPage = 10
	it := c.storageClient.Bucket(c.config.OutputBucket).Objects(ctx, &storage.Query{Prefix: outputPrefix})
	var attrs []*storage.ObjectAttrs
	pager := iterator.NewPager(it, shardsPerPage, pageToken)
	nextToken, err := pager.NextPage(&attrs)
	if err != nil {
		return nil, fmt.Errorf("failed to list OCR output shards: %w", err)
	}

	page := &OCRResultsPage{NextToken: nextToken}
	var sb strings.Builder
	for _, a := range attrs {
		if !strings.HasSuffix(a.Name, ".json") {
			continue
		}
		data, err := c.readObject(ctx, a.Name)
		if err != nil {
			return nil, err
		}
		var doc documentai.GoogleCloudDocumentaiV1Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode OCR shard %s: %w", a.Name, err)
		}
		if sb.Len() > 0 && doc.Text != "" {
			sb.WriteByte('\n')
		}
		sb.WriteString(doc.Text)
		page.Blocks = append(page.Blocks, documentBlocks(&doc)...)
	}
	page.Text = sb.String()
	return page, nil
}

func (c *DocAIClient) readObject(ctx context.Context, name string) ([]byte, error) {
	r, err := c.storageClient.Bucket(c.config.OutputBucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open OCR shard %s: %w", name, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OCR shard %s: %w", name, err)
	}
	return data, nil
}

// documentBlocks flattens a Document AI document into line-level blocks in
// reading order.
func documentBlocks(doc *documentai.GoogleCloudDocumentaiV1Document) []OCRBlock {
	var blocks []OCRBlock
	for pageIdx, page := range doc.Pages {
		for _, line := range page.Lines {
			text := anchorText(doc.Text, line.Layout)
			if text == "" {
				continue
			}
			blocks = append(blocks, OCRBlock{Type: "LINE", Text: text, Page: pageIdx + 1})
		}
	}
	return blocks
}

func anchorText(fullText string, layout *documentai.GoogleCloudDocumentaiV1DocumentPageLayout) string {
	if layout == nil || layout.TextAnchor == nil {
		return ""
	}
	var sb strings.Builder
	for _, seg := range layout.TextAnchor.TextSegments {
		start, end := seg.StartIndex, seg.EndIndex
		if start < 0 || end > int64(len(fullText)) || start >= end {
			continue
		}
		sb.WriteString(fullText[start:end])
	}
	return strings.TrimSpace(sb.String())
}
