package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/aseekbot/pipeline/internal/models"
)

// extractDocx parses a .docx file by reading word/document.xml from the ZIP
// archive. For the document-analysis use case it also walks the archive for
// embedded images and records the count.
func (e *Extractor) extractDocx(ctx context.Context, job *models.JobPayload) {
	data, err := e.store.Get(ctx, job.Source.Bucket, job.Source.Key)
	if err != nil {
		degrade(job, "docx-parser", "DOCX", err)
		return
	}

	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		degrade(job, "docx-parser", "DOCX", err)
		return
	}

	var docFile *zip.File
	imageCount := 0
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
		}
		if strings.HasPrefix(f.Name, "word/media/") {
			imageCount++
		}
	}
	if docFile == nil {
		degrade(job, "docx-parser", "DOCX", fmt.Errorf("word/document.xml not found in archive"))
		return
	}

	rc, err := docFile.Open()
	if err != nil {
		degrade(job, "docx-parser", "DOCX", err)
		return
	}
	defer rc.Close()

	text, warnings, err := readDocxBody(rc)
	if err != nil {
		degrade(job, "docx-parser", "DOCX", err)
		return
	}

	if job.UseCase == "document-analysis" && imageCount > 0 {
		job.EmbeddedImageCount = imageCount
		warnings = append(warnings, fmt.Sprintf("%d embedded image(s) were not converted to text", imageCount))
	}

	job.ExtractedText = text
	job.TextExtractionMethod = "docx-parser"
	job.ExtractionWarnings = append(job.ExtractionWarnings, warnings...)
}

const maxXMLDepth = 256

// readDocxBody walks the WordprocessingML token stream, emitting one line
// per paragraph and a warning per construct it skips.
func readDocxBody(r io.Reader) (string, []string, error) {
	decoder := xml.NewDecoder(r)
	var sb strings.Builder
	var warnings []string
	var currentText strings.Builder
	var inParagraph bool
	depth := 0
	drawings := 0

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("malformed document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth > maxXMLDepth {
				return "", nil, fmt.Errorf("xml nesting depth exceeds %d", maxXMLDepth)
			}
			switch t.Name.Local {
			case "p":
				inParagraph = true
				currentText.Reset()
			case "tab":
				if inParagraph {
					currentText.WriteByte('\t')
				}
			case "br":
				if inParagraph {
					currentText.WriteByte('\n')
				}
			case "drawing", "pict":
				drawings++
			}

		case xml.CharData:
			if inParagraph {
				currentText.Write(t)
			}

		case xml.EndElement:
			depth--
			if t.Name.Local == "p" && inParagraph {
				inParagraph = false
				if text := strings.TrimSpace(currentText.String()); text != "" {
					sb.WriteString(text)
					sb.WriteByte('\n')
				}
			}
		}
	}

	if drawings > 0 {
		warnings = append(warnings, fmt.Sprintf("%d drawing element(s) skipped during conversion", drawings))
	}
	return strings.TrimSpace(sb.String()), warnings, nil
}
