package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/edufleet/central-api/internal/models"
	appErrors "github.com/edufleet/central-api/pkg/errors"
)

type districtCatalog interface {
	List(ctx context.Context) ([]models.District, error)
	FindByID(ctx context.Context, id int64) (*models.District, error)
	Create(ctx context.Context, district *models.District) error
}

type schoolCatalog interface {
	List(ctx context.Context, districtID *int64) ([]models.School, error)
	FindByID(ctx context.Context, id int64) (*models.School, error)
	UpdateDistrict(ctx context.Context, schoolID, districtID int64) error
}

type siteCatalog interface {
	ListBySchool(ctx context.Context, schoolID int64) ([]models.Site, error)
}

// CatalogService serves the typed read endpoints over the district, school
// and site hierarchy, plus the one administrative mutation: moving a school
// out of the sentinel district once an operator knows where it belongs.
type CatalogService struct {
	districts districtCatalog
	schools   schoolCatalog
	sites     siteCatalog
	logger    *zap.Logger
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(districts districtCatalog, schools schoolCatalog, sites siteCatalog, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{districts: districts, schools: schools, sites: sites, logger: logger}
}

// Districts lists all districts, sentinel included.
func (s *CatalogService) Districts(ctx context.Context) ([]models.District, error) {
	return s.districts.List(ctx)
}

// Schools lists schools, optionally scoped to one district. Passing the
// sentinel id lists the unresolved backlog.
func (s *CatalogService) Schools(ctx context.Context, districtID *int64) ([]models.School, error) {
	if districtID != nil && *districtID != models.SentinelDistrictID {
		district, err := s.districts.FindByID(ctx, *districtID)
		if err != nil {
			return nil, err
		}
		if district == nil {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "district not found")
		}
	}
	return s.schools.List(ctx, districtID)
}

// Sites lists a school's sites.
func (s *CatalogService) Sites(ctx context.Context, schoolID int64) ([]models.Site, error) {
	school, err := s.schools.FindByID(ctx, schoolID)
	if err != nil {
		return nil, err
	}
	if school == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
	}
	return s.sites.ListBySchool(ctx, schoolID)
}

// ReassignSchool moves a school to another district. District inference is
// only a heuristic, so this is how operators clear the sentinel backlog.
func (s *CatalogService) ReassignSchool(ctx context.Context, schoolID, districtID int64) (*models.School, error) {
	school, err := s.schools.FindByID(ctx, schoolID)
	if err != nil {
		return nil, err
	}
	if school == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
	}
	if districtID != models.SentinelDistrictID {
		district, err := s.districts.FindByID(ctx, districtID)
		if err != nil {
			return nil, err
		}
		if district == nil {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "district not found")
		}
	}
	if err := s.schools.UpdateDistrict(ctx, schoolID, districtID); err != nil {
		return nil, err
	}
	school.DistrictID = districtID
	s.logger.Info("school reassigned",
		zap.Int64("school_id", schoolID),
		zap.Int64("district_id", districtID))
	return school, nil
}
