package models

// Entities groups the named values pulled out of a document's text.
type Entities struct {
	Vendors  []string `json:"vendors"`
	Products []string `json:"products"`
	Prices   []string `json:"prices"`
}

// AnalysisResult is the content analyzer's output for one document.
type AnalysisResult struct {
	DocumentType    string            `json:"documentType"`
	KeyFindings     []string          `json:"keyFindings"`
	Entities        Entities          `json:"entities"`
	Sentiment       string            `json:"sentiment"`
	ConfidenceScore float64           `json:"confidenceScore"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// SpreadsheetSummary is the structured data derived from a spreadsheet by
// column-name heuristics. When present it takes precedence over regex-based
// entity extraction for vendors, prices and dates.
type SpreadsheetSummary struct {
	Vendors     []string `json:"vendors,omitempty"`
	Prices      []string `json:"prices,omitempty"`
	Quantities  []string `json:"quantities,omitempty"`
	PartNumbers []string `json:"partNumbers,omitempty"`
	Dates       []string `json:"dates,omitempty"`
}

// ComparisonResult summarizes a multi-document comparison.
type ComparisonResult struct {
	DocumentIDs    []string `json:"documentIds"`
	DocumentTypes  []string `json:"documentTypes"`
	CommonVendors  []string `json:"commonVendors"`
	PriceRange     string   `json:"priceRange,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
}
