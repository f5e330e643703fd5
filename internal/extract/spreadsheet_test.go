package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/aseekbot/pipeline/internal/gcp"
)

// buildWorkbook writes the given rows into the first sheet of a fresh
// workbook and returns the serialized file.
func buildWorkbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	wb := excelize.NewFile()
	defer wb.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, wb.SetSheetRow("Sheet1", cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, wb.Write(&buf))
	return buf.Bytes()
}

func TestExtractSpreadsheetPreview(t *testing.T) {
	rows := [][]interface{}{
		{"Vendor", "Unit Price", "Qty", "Part Number", "Delivery Date"},
		{"Acme Corp", "12.50", "100", "AX-100", "2025-03-01"},
		{"Globex", "8.75", "40", "GX-220", "2025-04-15"},
	}
	store := gcp.NewMemStore()
	putObject(t, store, "quote.xlsx", "", buildWorkbook(t, rows))

	job := newJob("quote.xlsx", "xlsx")
	newTestExtractor(store, nil).Run(context.Background(), job)

	assert.Equal(t, "xlsx-parser", job.TextExtractionMethod)
	assert.Contains(t, job.ExtractedText, "Sheet: Sheet1")
	assert.Contains(t, job.ExtractedText, "Headers: Vendor | Unit Price | Qty | Part Number | Delivery Date")
	assert.Contains(t, job.ExtractedText, "Acme Corp | 12.50 | 100 | AX-100 | 2025-03-01")
}

func TestExtractSpreadsheetProcurementFields(t *testing.T) {
	rows := [][]interface{}{
		{"Vendor", "Total Cost", "Quantity", "SKU", "Due Date"},
		{"Acme Corp", "1250.00", "100", "AX-100", "2025-03-01"},
		{"Globex", "350.00", "40", "GX-220", "not a date"},
		{"Acme Corp", "99.00", "7", "AX-101", "2025-05-20"},
	}
	store := gcp.NewMemStore()
	putObject(t, store, "quote.xlsx", "", buildWorkbook(t, rows))

	job := newJob("quote.xlsx", "xlsx")
	newTestExtractor(store, nil).Run(context.Background(), job)

	require.NotNil(t, job.StructuredData)
	assert.Equal(t, []string{"Acme Corp", "Globex"}, job.StructuredData.Vendors)
	assert.Equal(t, []string{"1250.00", "350.00", "99.00"}, job.StructuredData.Prices)
	assert.Equal(t, []string{"100", "40", "7"}, job.StructuredData.Quantities)
	assert.Equal(t, []string{"AX-100", "GX-220", "AX-101"}, job.StructuredData.PartNumbers)
	// Non-date values in a date column are dropped.
	assert.Equal(t, []string{"2025-03-01", "2025-05-20"}, job.StructuredData.Dates)
}

func TestExtractSpreadsheetFieldCap(t *testing.T) {
	rows := [][]interface{}{{"Vendor"}}
	for i := 0; i < maxFieldEntries+10; i++ {
		rows = append(rows, []interface{}{fmt.Sprintf("Vendor %02d", i)})
	}
	store := gcp.NewMemStore()
	putObject(t, store, "many.xlsx", "", buildWorkbook(t, rows))

	job := newJob("many.xlsx", "xlsx")
	newTestExtractor(store, nil).Run(context.Background(), job)

	require.NotNil(t, job.StructuredData)
	assert.Len(t, job.StructuredData.Vendors, maxFieldEntries)
}

func TestExtractSpreadsheetExternalizesArtifacts(t *testing.T) {
	rows := [][]interface{}{
		{"Vendor", "Price"},
		{"Acme", "1.00"},
	}
	store := gcp.NewMemStore()
	putObject(t, store, "quote.xlsx", "", buildWorkbook(t, rows))

	job := newJob("quote.xlsx", "xlsx")
	newTestExtractor(store, nil).Run(context.Background(), job)

	require.NotNil(t, job.SheetDataRef)
	raw, err := store.Get(context.Background(), job.SheetDataRef.Bucket, job.SheetDataRef.Key)
	require.NoError(t, err)
	var sheets []sheetData
	require.NoError(t, json.Unmarshal(raw, &sheets))
	require.Len(t, sheets, 1)
	assert.Equal(t, [][]string{{"Vendor", "Price"}, {"Acme", "1.00"}}, sheets[0].Rows)

	require.NotNil(t, job.ProcurementRef)
	_, err = store.Get(context.Background(), job.ProcurementRef.Bucket, job.ProcurementRef.Key)
	assert.NoError(t, err)
}

func TestExtractSpreadsheetRowLimitNote(t *testing.T) {
	rows := [][]interface{}{{"Col"}}
	for i := 0; i < previewDataRows+3; i++ {
		rows = append(rows, []interface{}{fmt.Sprintf("row %d", i)})
	}
	store := gcp.NewMemStore()
	putObject(t, store, "long.xlsx", "", buildWorkbook(t, rows))

	job := newJob("long.xlsx", "xlsx")
	newTestExtractor(store, nil).Run(context.Background(), job)

	assert.Contains(t, job.ExtractedText, "... 3 more rows")
}

func TestExtractSpreadsheetCorruptFile(t *testing.T) {
	store := gcp.NewMemStore()
	putObject(t, store, "bad.xlsx", "", []byte("not a workbook"))

	job := newJob("bad.xlsx", "xlsx")
	newTestExtractor(store, nil).Run(context.Background(), job)

	assert.Equal(t, "xlsx-parser-error", job.TextExtractionMethod)
	assert.Contains(t, job.ExtractedText, "Text extraction failed")
}
