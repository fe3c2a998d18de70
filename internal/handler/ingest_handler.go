package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edufleet/central-api/internal/dto"
	"github.com/edufleet/central-api/internal/service"
	appErrors "github.com/edufleet/central-api/pkg/errors"
	"github.com/edufleet/central-api/pkg/jobs"
	"github.com/edufleet/central-api/pkg/response"
)

type ingestRunner interface {
	Run(ctx context.Context) (*service.IngestReport, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// IngestHandler triggers ingest runs, inline or queued.
type IngestHandler struct {
	ingest ingestRunner
	queue  jobEnqueuer
}

// NewIngestHandler constructs the handler.
func NewIngestHandler(ingest ingestRunner, queue jobEnqueuer) *IngestHandler {
	return &IngestHandler{ingest: ingest, queue: queue}
}

// Trigger runs the pull-reconcile-snapshot pipeline once. With async set the
// run is queued and the caller gets a job id back immediately; otherwise the
// handler blocks and returns the full run report.
func (h *IngestHandler) Trigger(c *gin.Context) {
	var req dto.TriggerIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid payload"))
		return
	}

	if req.Async {
		if h.queue == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrInternal, "ingest queue not configured"))
			return
		}
		job := jobs.Job{ID: uuid.NewString(), Type: "ingest.run"}
		if err := h.queue.Enqueue(job); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "enqueue ingest run"))
			return
		}
		response.Accepted(c, dto.IngestQueuedResponse{JobID: job.ID, Status: "queued"})
		return
	}

	report, err := h.ingest.Run(c.Request.Context())
	if err != nil {
		// The report still covers everything that committed before the
		// failure; surface both.
		appErr := appErrors.FromError(err)
		response.JSON(c, appErr.Status, report, nil, map[string]interface{}{"error": appErr.Message})
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
