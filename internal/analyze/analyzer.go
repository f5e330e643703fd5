// Package analyze derives document type, entities and sentiment from
// extracted text. Analysis is deterministic and side-effect free: the same
// input always yields the same result, and no failure escapes as an error.
package analyze

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/aseekbot/pipeline/internal/models"
)

// Input is everything the analyzer may look at.
type Input struct {
	Text       string
	FileType   string
	Structured *models.SpreadsheetSummary
}

// documentTypeRule is one entry of the ordered classification list. First
// match wins.
type documentTypeRule struct {
	keywords []string
	docType  string
}

var documentTypeRules = []documentTypeRule{
	{[]string{"proposal", "quote", "quotation"}, "Vendor Proposal"},
	{[]string{"contract", "agreement"}, "Contract Document"},
	{[]string{"invoice", "payment"}, "Invoice"},
	{[]string{"specification", "technical requirements"}, "Technical Specification"},
	{[]string{"rfp", "request for proposal"}, "RFP Document"},
}

var (
	vendorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:vendor|supplier|manufacturer|from)\s*[:\-]\s*([A-Z][A-Za-z0-9&.,\- ]{2,40})`),
		regexp.MustCompile(`([A-Z][A-Za-z]+(?: [A-Z][A-Za-z]+)*,? (?:Inc|LLC|Ltd|Corp|GmbH|Co)\b\.?)`),
	}
	pricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`[$€£]\s?\d{1,3}(?:,\d{3})*(?:\.\d{1,2})?`),
		regexp.MustCompile(`(?i)\b\d{1,3}(?:,\d{3})*(?:\.\d{1,2})?\s?(?:USD|EUR|GBP)\b`),
	}
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
		regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`),
		regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]* \d{1,2},? \d{4}\b`),
	}
	productPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:item|product|part|model)\s*(?:no\.?|number|#)?\s*[:\-]\s*([A-Za-z0-9\-]{3,30})`),
		regexp.MustCompile(`\b[A-Z]{2,5}-\d{3,8}\b`),
	}
)

var positiveTerms = []string{
	"approved", "excellent", "good", "competitive", "discount", "savings",
	"reliable", "preferred", "guarantee", "quality", "recommended", "benefit",
}

var negativeTerms = []string{
	"rejected", "delay", "delayed", "penalty", "dispute", "overdue",
	"defect", "failure", "risk", "cancel", "cancelled", "breach",
}

// Run produces an AnalysisResult for the given input. It never panics out:
// any internal failure is converted to a structured error result so the
// pipeline can still reach the store stage.
func Run(input Input) (result *models.AnalysisResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Content analysis panicked, returning error result.", "panic", r)
			result = errorResult(fmt.Sprintf("internal analyzer failure: %v", r))
		}
	}()

	text := input.Text
	lower := strings.ToLower(text)

	result = &models.AnalysisResult{
		DocumentType: classify(lower, input.FileType),
		Entities: models.Entities{
			Vendors:  matchAll(vendorPatterns, text),
			Products: matchAll(productPatterns, text),
			Prices:   matchAll(pricePatterns, text),
		},
		Sentiment: sentiment(lower),
		Metadata:  map[string]string{"fileType": input.FileType},
	}

	dates := matchAll(datePatterns, text)

	// Structured spreadsheet data takes precedence over regex-derived values.
	if s := input.Structured; s != nil {
		if len(s.Vendors) > 0 {
			result.Entities.Vendors = s.Vendors
		}
		if len(s.Prices) > 0 {
			result.Entities.Prices = s.Prices
		}
		if len(s.Dates) > 0 {
			dates = s.Dates
		}
	}

	result.KeyFindings = keyFindings(result, dates, len(text))
	result.ConfidenceScore = confidence(result)
	return result
}

func errorResult(message string) *models.AnalysisResult {
	return &models.AnalysisResult{
		DocumentType: "Unknown (Error)",
		KeyFindings:  []string{message},
		Entities:     models.Entities{Vendors: []string{}, Products: []string{}, Prices: []string{}},
		Sentiment:    "neutral",
		Metadata:     map[string]string{},
	}
}

// classify walks the ordered keyword list; the spreadsheet fallback applies
// before the generic one.
func classify(lower, fileType string) string {
	for _, rule := range documentTypeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.docType
			}
		}
	}
	switch strings.ToLower(fileType) {
	case "xlsx", "csv":
		return "Spreadsheet Data"
	}
	return "Procurement Document"
}

// matchAll applies a pattern family and deduplicates hits, preserving first
// appearance order.
func matchAll(patterns []*regexp.Regexp, text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range patterns {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			value := m[0]
			if len(m) > 1 && m[1] != "" {
				value = m[1]
			}
			value = strings.TrimSpace(value)
			if value == "" || seen[value] {
				continue
			}
			seen[value] = true
			out = append(out, value)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// sentiment counts positive and negative terms; the 1.5x ratio keeps weakly
// mixed documents neutral.
func sentiment(lower string) string {
	pos, neg := 0, 0
	for _, term := range positiveTerms {
		pos += strings.Count(lower, term)
	}
	for _, term := range negativeTerms {
		neg += strings.Count(lower, term)
	}
	switch {
	case float64(pos) > 1.5*float64(neg) && pos > 0:
		return "positive"
	case float64(neg) > 1.5*float64(pos) && neg > 0:
		return "negative"
	default:
		return "neutral"
	}
}

func keyFindings(result *models.AnalysisResult, dates []string, textLen int) []string {
	findings := []string{fmt.Sprintf("Document classified as %q", result.DocumentType)}
	if n := len(result.Entities.Vendors); n > 0 {
		findings = append(findings, fmt.Sprintf("%d vendor reference(s): %s", n, strings.Join(head(result.Entities.Vendors, 3), ", ")))
	}
	if n := len(result.Entities.Prices); n > 0 {
		findings = append(findings, fmt.Sprintf("%d price value(s) found, e.g. %s", n, strings.Join(head(result.Entities.Prices, 3), ", ")))
	}
	if len(dates) > 0 {
		sorted := append([]string(nil), dates...)
		sort.Strings(sorted)
		findings = append(findings, fmt.Sprintf("Date references from %s to %s", sorted[0], sorted[len(sorted)-1]))
	}
	findings = append(findings, fmt.Sprintf("Overall sentiment: %s", result.Sentiment))
	if textLen == 0 {
		findings = append(findings, "No text content was available for analysis")
	}
	return findings
}

func head(list []string, n int) []string {
	if len(list) < n {
		return list
	}
	return list[:n]
}

// confidence is a coarse heuristic: more recognized structure means a more
// trustworthy classification.
func confidence(result *models.AnalysisResult) float64 {
	score := 0.5
	if result.DocumentType != "Procurement Document" && result.DocumentType != "Unknown (Error)" {
		score += 0.2
	}
	if len(result.Entities.Vendors) > 0 {
		score += 0.1
	}
	if len(result.Entities.Prices) > 0 {
		score += 0.1
	}
	if score > 0.9 {
		score = 0.9
	}
	return score
}
