package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aseekbot/pipeline/internal/gcp"
)

// buildDocx assembles a minimal .docx archive around the given document.xml
// body, optionally with embedded media entries.
func buildDocx(t *testing.T, documentXML string, mediaFiles int) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	f, err := w.Create("word/document.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte(documentXML))
	require.NoError(t, err)

	for i := 0; i < mediaFiles; i++ {
		img, err := w.Create("word/media/image" + string(rune('1'+i)) + ".png")
		require.NoError(t, err)
		_, err = img.Write([]byte{0x89, 'P', 'N', 'G'})
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

const simpleDocXML = `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second</w:t></w:r><w:r><w:tab/><w:t>tabbed.</w:t></w:r></w:p>
    <w:p></w:p>
  </w:body>
</w:document>`

func TestExtractDocx(t *testing.T) {
	store := gcp.NewMemStore()
	putObject(t, store, "report.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", buildDocx(t, simpleDocXML, 0))

	job := newJob("report.docx", "docx")
	newTestExtractor(store, nil).Run(context.Background(), job)

	assert.Equal(t, "docx-parser", job.TextExtractionMethod)
	assert.Equal(t, "First paragraph.\nSecond\ttabbed.", job.ExtractedText)
	assert.Zero(t, job.EmbeddedImageCount)
}

func TestExtractDocxCountsImagesForAnalysisUseCase(t *testing.T) {
	store := gcp.NewMemStore()
	putObject(t, store, "report.docx", "", buildDocx(t, simpleDocXML, 2))

	job := newJob("report.docx", "docx")
	job.UseCase = "document-analysis"
	newTestExtractor(store, nil).Run(context.Background(), job)

	assert.Equal(t, 2, job.EmbeddedImageCount)
	require.NotEmpty(t, job.ExtractionWarnings)
	assert.Contains(t, job.ExtractionWarnings[0], "2 embedded image(s)")
}

func TestExtractDocxIgnoresImagesForOtherUseCases(t *testing.T) {
	store := gcp.NewMemStore()
	putObject(t, store, "report.docx", "", buildDocx(t, simpleDocXML, 2))

	job := newJob("report.docx", "docx")
	newTestExtractor(store, nil).Run(context.Background(), job)

	assert.Zero(t, job.EmbeddedImageCount)
	assert.Empty(t, job.ExtractionWarnings)
}

func TestExtractDocxWarnsOnDrawings(t *testing.T) {
	xmlWithDrawing := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Text before figure.</w:t></w:r><w:drawing></w:drawing></w:p>
  </w:body>
</w:document>`
	store := gcp.NewMemStore()
	putObject(t, store, "fig.docx", "", buildDocx(t, xmlWithDrawing, 0))

	job := newJob("fig.docx", "docx")
	newTestExtractor(store, nil).Run(context.Background(), job)

	assert.Equal(t, "Text before figure.", job.ExtractedText)
	require.NotEmpty(t, job.ExtractionWarnings)
	assert.Contains(t, job.ExtractionWarnings[0], "drawing element(s) skipped")
}

func TestExtractDocxNotAZip(t *testing.T) {
	store := gcp.NewMemStore()
	putObject(t, store, "broken.docx", "", []byte("this is not a zip archive"))

	job := newJob("broken.docx", "docx")
	newTestExtractor(store, nil).Run(context.Background(), job)

	assert.Equal(t, "docx-parser-error", job.TextExtractionMethod)
	assert.Contains(t, job.ExtractedText, "Text extraction failed")
}

func TestExtractDocxMissingDocumentXML(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("word/other.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte("<x/>"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	store := gcp.NewMemStore()
	putObject(t, store, "odd.docx", "", buf.Bytes())

	job := newJob("odd.docx", "docx")
	newTestExtractor(store, nil).Run(context.Background(), job)

	assert.Equal(t, "docx-parser-error", job.TextExtractionMethod)
	assert.Contains(t, job.ExtractedText, "could not be read")
}
