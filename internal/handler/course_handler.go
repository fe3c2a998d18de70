package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edufleet/central-api/internal/dto"
	"github.com/edufleet/central-api/internal/service"
	appErrors "github.com/edufleet/central-api/pkg/errors"
	"github.com/edufleet/central-api/pkg/response"
)

// CourseHandler exposes the course package catalog and install dispatch.
type CourseHandler struct {
	courses *service.CourseService
}

// NewCourseHandler constructs the handler.
func NewCourseHandler(courses *service.CourseService) *CourseHandler {
	return &CourseHandler{courses: courses}
}

// Scan walks the package directory and registers new archives.
func (h *CourseHandler) Scan(c *gin.Context) {
	report, err := h.courses.ScanPackages(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Packages lists registered course packages, optionally filtered by source
// collection.
func (h *CourseHandler) Packages(c *gin.Context) {
	details, err := h.courses.ListDetails(c.Request.Context(), c.Query("source"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, nil)
}

// Targets lists sites eligible for remote installs.
func (h *CourseHandler) Targets(c *gin.Context) {
	targets, err := h.courses.ListTargets(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, targets, nil)
}

// Install queues install jobs for the requested site/course combinations.
func (h *CourseHandler) Install(c *gin.Context) {
	var req dto.InstallCoursesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	jobIDs, err := h.courses.InstallCourses(c.Request.Context(), req.SiteIDs, req.CourseIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, dto.InstallQueuedResponse{JobIDs: jobIDs})
}
