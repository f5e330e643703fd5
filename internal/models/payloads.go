package models

// These structs define the JSON payloads threaded between the workflow and
// the worker functions. Every stage receives the accumulated JobPayload,
// fills in the fields it owns, and returns the extended payload. Merging is
// strictly additive: a stage never clears a field another stage wrote, so
// the final status record keeps full provenance (validation metadata,
// extraction method, analysis output).

// ObjectRef points at a blob in the content store.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// JobPayload is the single growing payload of one document's trip through
// the pipeline.
type JobPayload struct {
	DocumentID          string    `json:"documentId"`
	RequestID           string    `json:"requestId,omitempty"`
	UserID              string    `json:"userId,omitempty"`
	SessionID           string    `json:"sessionId,omitempty"`
	Source              ObjectRef `json:"sourceRef"`
	FileType            string    `json:"fileType,omitempty"`
	UseCase             string    `json:"useCase,omitempty"`
	IsMultipleDocuments bool      `json:"isMultipleDocuments,omitempty"`
	SiblingDocumentIDs  []string  `json:"siblingDocumentIds,omitempty"`
	ExecutionName       string    `json:"executionName,omitempty"`

	// Written by the validation stage.
	FileSizeBytes int64  `json:"fileSizeBytes,omitempty"`
	ContentType   string `json:"contentType,omitempty"`
	PageCount     int    `json:"pageCount,omitempty"`
	OCRSupported  bool   `json:"isTextractSupported,omitempty"`

	// Written by the extraction stage.
	ExtractedText        string              `json:"extractedText,omitempty"`
	TextExtractionMethod string              `json:"textExtractionMethod,omitempty"`
	TextTruncated        bool                `json:"textTruncated,omitempty"`
	TextRef              *ObjectRef          `json:"textRef,omitempty"`
	RawBlocksRef         *ObjectRef          `json:"rawBlocksRef,omitempty"`
	SheetDataRef         *ObjectRef          `json:"sheetDataRef,omitempty"`
	ProcurementRef       *ObjectRef          `json:"procurementFieldsRef,omitempty"`
	StructuredData       *SpreadsheetSummary `json:"structuredData,omitempty"`
	ExtractionWarnings   []string            `json:"extractionWarnings,omitempty"`
	EmbeddedImageCount   int                 `json:"embeddedImageCount,omitempty"`

	// Written by the analysis and comparison stages.
	AnalysisResults   *AnalysisResult   `json:"analysisResults,omitempty"`
	ComparisonResults *ComparisonResult `json:"comparisonResults,omitempty"`

	// Written by the store stage.
	Insights       string `json:"insights,omitempty"`
	ResultLocation string `json:"resultLocation,omitempty"`

	// Written by the error branch.
	Error *ErrorDetail `json:"error,omitempty"`
}

// ResultArtifact is the full analysis JSON persisted to the content store.
type ResultArtifact struct {
	DocumentID         string            `json:"documentId"`
	UserID             string            `json:"userId,omitempty"`
	Timestamp          string            `json:"timestamp"`
	Insights           string            `json:"insights,omitempty"`
	AnalysisResults    *AnalysisResult   `json:"analysisResults,omitempty"`
	ComparisonResults  *ComparisonResult `json:"comparisonResults,omitempty"`
	ProcessingComplete bool              `json:"processingComplete"`
}

// --- HTTP API payloads ---

// IngestionFile describes one uploaded file attached to a chat request.
type IngestionFile struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	MimeType string `json:"mimeType,omitempty"`
	UseCase  string `json:"useCase,omitempty"`
}

// IngestionRequest is the body of POST /requests.
type IngestionRequest struct {
	Message   string          `json:"message"`
	SessionID string          `json:"sessionId,omitempty"`
	Files     []IngestionFile `json:"files,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	ChatID    string          `json:"chatId,omitempty"`
}

// IngestionResponse acknowledges a queued request.
type IngestionResponse struct {
	RequestID    string `json:"requestId"`
	Status       Status `json:"status"`
	Message      string `json:"message"`
	ChatID       string `json:"chatId,omitempty"`
	MessageOrder int    `json:"messageOrder"`
}

// StartAnalysisRequest is the body of the direct document-analysis start.
type StartAnalysisRequest struct {
	Bucket   string `json:"bucket"`
	Key      string `json:"key"`
	FileType string `json:"fileType"`
	UserID   string `json:"userId"`
}

// StartAnalysisResponse returns the launched execution.
type StartAnalysisResponse struct {
	Success       bool   `json:"success"`
	ExecutionName string `json:"executionArn"`
	DocumentID    string `json:"documentId"`
}

// StatusResponse is returned by GET /status/{id}.
type StatusResponse struct {
	RequestID  string       `json:"requestId,omitempty"`
	DocumentID string       `json:"documentId,omitempty"`
	Status     Status       `json:"status"`
	Progress   int          `json:"progress"`
	Completion *JobPayload  `json:"completion,omitempty"`
	Error      *ErrorDetail `json:"error,omitempty"`
	UpdatedAt  string       `json:"updatedAt,omitempty"`
}

// DownloadResponse carries a time-limited direct-access URL.
type DownloadResponse struct {
	URL string `json:"url"`
}

// UploadResponse acknowledges a stored upload.
type UploadResponse struct {
	Success  bool   `json:"success"`
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
}

// QueueMessage is the CloudEvent payload published by the ingestion API and
// consumed by the queue processor.
type QueueMessage struct {
	RequestID string     `json:"requestId"`
	Job       JobPayload `json:"job"`
}
