package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edufleet/central-api/internal/middleware"
	"github.com/edufleet/central-api/internal/service"
	appErrors "github.com/edufleet/central-api/pkg/errors"
	"github.com/edufleet/central-api/pkg/response"
)

// RollupHandler exposes the aggregation endpoints.
type RollupHandler struct {
	rollups *service.RollupService
	reports *service.ReportService
}

// NewRollupHandler constructs the handler.
func NewRollupHandler(rollups *service.RollupService, reports *service.ReportService) *RollupHandler {
	return &RollupHandler{rollups: rollups, reports: reports}
}

// Fleet returns the rollup over every school regardless of district.
func (h *RollupHandler) Fleet(c *gin.Context) {
	asOf, err := parseAsOf(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	rollup, cached, err := h.rollups.District(c.Request.Context(), nil, asOf)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, rollup, nil, middleware.ExtractMeta(c))
}

// District returns one district's rollup with per-school breakdown.
func (h *RollupHandler) District(c *gin.Context) {
	districtID, err := parseIDParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	asOf, err := parseAsOf(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	rollup, cached, err := h.rollups.District(c.Request.Context(), &districtID, asOf)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, rollup, nil, middleware.ExtractMeta(c))
}

// School returns one school's rollup with its active and inactive site
// listings.
func (h *RollupHandler) School(c *gin.Context) {
	schoolID, err := parseIDParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	asOf, err := parseAsOf(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	rollup, err := h.rollups.School(c.Request.Context(), schoolID, asOf)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rollup, nil)
}

// Status returns headline fleet counts.
func (h *RollupHandler) Status(c *gin.Context) {
	status, err := h.rollups.FleetStatus(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Export streams the usage rollup as a CSV or PDF download.
func (h *RollupHandler) Export(c *gin.Context) {
	var districtID *int64
	if raw := c.Query("district_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "district_id must be numeric"))
			return
		}
		districtID = &id
	}
	asOf, err := parseAsOf(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := service.ReportFormat(c.DefaultQuery("format", "csv"))

	export, err := h.reports.DistrictUsage(c.Request.Context(), districtID, asOf, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+export.Filename+`"`)
	c.Data(http.StatusOK, export.MimeType, export.Content)
}

func parseIDParam(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, name+" must be a non-negative integer")
	}
	return id, nil
}

func parseAsOf(c *gin.Context) (*time.Time, error) {
	raw := c.Query("as_of")
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "as_of must be RFC3339")
	}
	return &ts, nil
}
