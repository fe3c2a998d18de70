package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edufleet/central-api/internal/dto"
	"github.com/edufleet/central-api/internal/service"
	appErrors "github.com/edufleet/central-api/pkg/errors"
	"github.com/edufleet/central-api/pkg/response"
)

// CatalogHandler exposes the district/school/site hierarchy.
type CatalogHandler struct {
	catalog *service.CatalogService
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(catalog *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// Districts lists every district.
func (h *CatalogHandler) Districts(c *gin.Context) {
	districts, err := h.catalog.Districts(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, districts, nil)
}

// Schools lists the schools of one district.
func (h *CatalogHandler) Schools(c *gin.Context) {
	districtID, err := parseIDParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	schools, err := h.catalog.Schools(c.Request.Context(), &districtID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schools, nil)
}

// Sites lists the sites of one school.
func (h *CatalogHandler) Sites(c *gin.Context) {
	schoolID, err := parseIDParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	sites, err := h.catalog.Sites(c.Request.Context(), schoolID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sites, nil)
}

// ReassignSchool moves a school to another district.
func (h *CatalogHandler) ReassignSchool(c *gin.Context) {
	schoolID, err := parseIDParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ReassignSchoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	school, err := h.catalog.ReassignSchool(c.Request.Context(), schoolID, *req.DistrictID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, school, nil)
}
