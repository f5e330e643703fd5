package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aseekbot/pipeline/internal/gcp"
	"github.com/aseekbot/pipeline/internal/models"
)

func TestStartAnalysis(t *testing.T) {
	status := gcp.NewMemStatusStore()
	wf := &fakeWorkflow{}
	f := NewStartAnalysis(status, NewWorkflowDispatcher(wf, status))

	body := `{"bucket":"documents","key":"u1/quote.pdf","fileType":"PDF","userId":"u1"}`
	rr := httptest.NewRecorder()
	f.Handle(rr, httptest.NewRequest(http.MethodPost, "/start-analysis", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp models.StartAnalysisResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.DocumentID)
	assert.Equal(t, "executions/test-1", resp.ExecutionName)

	require.Len(t, wf.launched, 1)
	var job models.JobPayload
	require.NoError(t, json.Unmarshal([]byte(wf.launched[0]), &job))
	assert.Equal(t, "pdf", job.FileType)
	assert.Equal(t, models.ObjectRef{Bucket: "documents", Key: "u1/quote.pdf"}, job.Source)
}

func TestStartAnalysisValidation(t *testing.T) {
	f := NewStartAnalysis(gcp.NewMemStatusStore(), &captureDispatcher{})

	cases := []struct {
		name string
		body string
		want string
	}{
		{"missing bucket", `{"key":"k","fileType":"pdf","userId":"u"}`, "bucket is required"},
		{"missing key", `{"bucket":"b","fileType":"pdf","userId":"u"}`, "key is required"},
		{"missing fileType", `{"bucket":"b","key":"k","userId":"u"}`, "fileType is required"},
		{"missing userId", `{"bucket":"b","key":"k","fileType":"pdf"}`, "userId is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			f.Handle(rr, httptest.NewRequest(http.MethodPost, "/start-analysis", strings.NewReader(tc.body)))
			require.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, rr.Body.String(), tc.want)
		})
	}
}
