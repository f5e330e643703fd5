package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aseekbot/pipeline/internal/models"
)

// extractCSV streams the blob through a row parser and serializes the parsed
// rows as JSON text, keyed by the header row when one is present.
func (e *Extractor) extractCSV(ctx context.Context, job *models.JobPayload) {
	data, err := e.store.Get(ctx, job.Source.Bucket, job.Source.Key)
	if err != nil {
		degrade(job, "csv-parser", "CSV", err)
		return
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1 // ragged rows are common in exported sheets
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		job.ExtractedText = "The CSV file is empty."
		job.TextExtractionMethod = "csv-parser"
		return
	}
	if err != nil {
		degrade(job, "csv-parser", "CSV", err)
		return
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			degrade(job, "csv-parser", "CSV", err)
			return
		}
		row := make(map[string]string, len(header))
		for i, value := range record {
			if i < len(header) {
				row[header[i]] = value
			} else {
				row[fmt.Sprintf("column_%d", i+1)] = value
			}
		}
		rows = append(rows, row)
	}

	serialized, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		degrade(job, "csv-parser", "CSV", err)
		return
	}
	job.ExtractedText = string(serialized)
	job.TextExtractionMethod = "csv-parser"
}
