package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edufleet/central-api/internal/service"
	"github.com/edufleet/central-api/pkg/jobs"
)

type stubRunner struct {
	report *service.IngestReport
	err    error
	runs   int
}

func (s *stubRunner) Run(ctx context.Context) (*service.IngestReport, error) {
	s.runs++
	return s.report, s.err
}

type stubQueue struct {
	enqueued []jobs.Job
	err      error
}

func (s *stubQueue) Enqueue(job jobs.Job) error {
	if s.err != nil {
		return s.err
	}
	s.enqueued = append(s.enqueued, job)
	return nil
}

func performIngest(t *testing.T, h *IngestHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/ingest/runs", h.Trigger)

	req := httptest.NewRequest(http.MethodPost, "/ingest/runs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestIngestTriggerSyncReturnsReport(t *testing.T) {
	runner := &stubRunner{report: &service.IngestReport{RunID: "run-1", Processed: 3, Skipped: 1}}
	h := NewIngestHandler(runner, &stubQueue{})

	rec := performIngest(t, h, `{}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, runner.runs)

	var envelope struct {
		Data service.IngestReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "run-1", envelope.Data.RunID)
	assert.Equal(t, 3, envelope.Data.Processed)
}

func TestIngestTriggerEmptyBodyRunsSync(t *testing.T) {
	runner := &stubRunner{report: &service.IngestReport{RunID: "run-3"}}
	h := NewIngestHandler(runner, &stubQueue{})

	rec := performIngest(t, h, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, runner.runs)
}

func TestIngestTriggerAsyncQueues(t *testing.T) {
	runner := &stubRunner{}
	queue := &stubQueue{}
	h := NewIngestHandler(runner, queue)

	rec := performIngest(t, h, `{"async":true}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 0, runner.runs)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, "ingest.run", queue.enqueued[0].Type)
}

func TestIngestTriggerSurfacesPartialReportOnStoreFailure(t *testing.T) {
	runner := &stubRunner{
		report: &service.IngestReport{RunID: "run-2", Processed: 2},
		err:    errors.New("catalog store down"),
	}
	h := NewIngestHandler(runner, &stubQueue{})

	rec := performIngest(t, h, `{}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var envelope struct {
		Data service.IngestReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, 2, envelope.Data.Processed)
}
