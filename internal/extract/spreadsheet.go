package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/aseekbot/pipeline/internal/models"
)

const (
	// previewByteLimit bounds the in-payload spreadsheet preview.
	previewByteLimit = 20000
	previewDataRows  = 5
	// maxFieldEntries caps each derived procurement field list.
	maxFieldEntries = 20
)

var dateValuePattern = regexp.MustCompile(`\d{1,4}[-/.]\d{1,2}[-/.]\d{1,4}`)

// sheetData is the full per-sheet row dump externalized to the content store.
type sheetData struct {
	Name string     `json:"name"`
	Rows [][]string `json:"rows"`
}

// extractSpreadsheet reads every sheet of a workbook. The payload carries
// only a size-bounded text preview; full sheet data and the derived
// procurement fields are stored out of band and referenced.
func (e *Extractor) extractSpreadsheet(ctx context.Context, job *models.JobPayload) {
	data, err := e.store.Get(ctx, job.Source.Bucket, job.Source.Key)
	if err != nil {
		degrade(job, "xlsx-parser", "spreadsheet", err)
		return
	}

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		degrade(job, "xlsx-parser", "spreadsheet", err)
		return
	}
	defer wb.Close()

	var preview strings.Builder
	var sheets []sheetData
	summary := &models.SpreadsheetSummary{}

	for _, name := range wb.GetSheetList() {
		rows, err := wb.GetRows(name)
		if err != nil {
			slog.Warn("Failed to read sheet, skipping.", "documentId", job.DocumentID, "sheet", name, "error", err)
			continue
		}
		sheets = append(sheets, sheetData{Name: name, Rows: rows})
		collectProcurementFields(summary, rows)

		if preview.Len() >= previewByteLimit {
			continue
		}
		preview.WriteString(fmt.Sprintf("Sheet: %s\n", name))
		if len(rows) > 0 {
			preview.WriteString("Headers: " + strings.Join(rows[0], " | ") + "\n")
		}
		dataRows := rows
		if len(dataRows) > 0 {
			dataRows = dataRows[1:]
		}
		shown := len(dataRows)
		if shown > previewDataRows {
			shown = previewDataRows
		}
		for _, row := range dataRows[:shown] {
			preview.WriteString(strings.Join(row, " | ") + "\n")
		}
		if len(dataRows) > shown {
			preview.WriteString(fmt.Sprintf("... %d more rows (full sheet data stored separately)\n", len(dataRows)-shown))
		}
		preview.WriteString("\n")
	}

	if ref, err := e.putJSON(ctx, job, "sheet-data", sheets); err != nil {
		slog.Warn("Failed to externalize sheet data.", "documentId", job.DocumentID, "error", err)
	} else {
		job.SheetDataRef = ref
	}
	if ref, err := e.putJSON(ctx, job, "procurement-fields", summary); err != nil {
		slog.Warn("Failed to externalize procurement fields.", "documentId", job.DocumentID, "error", err)
	} else {
		job.ProcurementRef = ref
	}
	job.StructuredData = summary

	text := preview.String()
	if len(text) > previewByteLimit {
		text = text[:previewByteLimit] + "\n... (preview truncated)"
	}
	if strings.TrimSpace(text) == "" {
		text = "The spreadsheet contains no readable sheets."
	}
	job.ExtractedText = text
	job.TextExtractionMethod = "xlsx-parser"
}

// collectProcurementFields derives vendors, prices, quantities, part numbers
// and dates from column-name heuristics, each list capped at maxFieldEntries.
func collectProcurementFields(summary *models.SpreadsheetSummary, rows [][]string) {
	if len(rows) < 2 {
		return
	}
	header := rows[0]

	target := func(col string) *[]string {
		c := strings.ToLower(col)
		switch {
		case strings.Contains(c, "vendor"), strings.Contains(c, "supplier"), strings.Contains(c, "manufacturer"):
			return &summary.Vendors
		case strings.Contains(c, "price"), strings.Contains(c, "cost"), strings.Contains(c, "amount"), strings.Contains(c, "total"):
			return &summary.Prices
		case strings.Contains(c, "qty"), strings.Contains(c, "quantity"), strings.Contains(c, "units"):
			return &summary.Quantities
		case strings.Contains(c, "part"), strings.Contains(c, "sku"), strings.Contains(c, "model"), strings.Contains(c, "item number"):
			return &summary.PartNumbers
		case strings.Contains(c, "date"), strings.Contains(c, "delivery"), strings.Contains(c, "due"):
			return &summary.Dates
		}
		return nil
	}

	for colIdx, col := range header {
		list := target(col)
		if list == nil {
			continue
		}
		for _, row := range rows[1:] {
			if len(*list) >= maxFieldEntries {
				break
			}
			if colIdx >= len(row) {
				continue
			}
			value := strings.TrimSpace(row[colIdx])
			if value == "" {
				continue
			}
			if list == &summary.Dates && !dateValuePattern.MatchString(value) {
				continue
			}
			if !contains(*list, value) {
				*list = append(*list, value)
			}
		}
	}
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
