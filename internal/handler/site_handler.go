package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edufleet/central-api/internal/service"
	appErrors "github.com/edufleet/central-api/pkg/errors"
	"github.com/edufleet/central-api/pkg/response"
)

// SiteHandler exposes point queries about individual sites.
type SiteHandler struct {
	sites *service.SiteService
}

// NewSiteHandler constructs the handler.
func NewSiteHandler(sites *service.SiteService) *SiteHandler {
	return &SiteHandler{sites: sites}
}

// Lookup finds a site by its bare hostname and attaches its current
// snapshot.
func (h *SiteHandler) Lookup(c *gin.Context) {
	baseURL := c.Query("baseurl")
	if baseURL == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "baseurl required"))
		return
	}
	site, err := h.sites.ByBaseURL(c.Request.Context(), baseURL)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, site, nil)
}

// Courses returns the raw course payload from a site's current snapshot.
func (h *SiteHandler) Courses(c *gin.Context) {
	siteID, err := parseIDParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	courses, err := h.sites.Courses(c.Request.Context(), siteID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if courses == nil {
		response.JSON(c, http.StatusOK, nil, nil)
		return
	}
	// Payload is stored verbatim as reported; hand it through untouched.
	c.Data(http.StatusOK, "application/json", []byte(*courses))
}

// Siblings lists the other sites of the same school.
func (h *SiteHandler) Siblings(c *gin.Context) {
	siteID, err := parseIDParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	siblings, err := h.sites.Siblings(c.Request.Context(), siteID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, siblings, nil)
}
