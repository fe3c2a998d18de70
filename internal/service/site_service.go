package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/edufleet/central-api/internal/models"
	appErrors "github.com/edufleet/central-api/pkg/errors"
)

type siteLookup interface {
	FindByBaseURL(ctx context.Context, baseURL string) (*models.Site, error)
	FindByID(ctx context.Context, id int64) (*models.Site, error)
	ListBySchool(ctx context.Context, schoolID int64) ([]models.Site, error)
}

type detailLookup interface {
	LatestBySite(ctx context.Context, siteID int64, asOf *time.Time) (*models.SiteDetail, error)
}

// SiteService answers point queries about individual sites.
type SiteService struct {
	sites   siteLookup
	details detailLookup
	logger  *zap.Logger
}

// NewSiteService constructs a SiteService.
func NewSiteService(sites siteLookup, details detailLookup, logger *zap.Logger) *SiteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SiteService{sites: sites, details: details, logger: logger}
}

// ByBaseURL returns the site registered under the given bare hostname with
// its current snapshot attached. Detail is nil when the site has never
// reported.
func (s *SiteService) ByBaseURL(ctx context.Context, baseURL string) (*models.SiteWithDetail, error) {
	site, err := s.sites.FindByBaseURL(ctx, baseURL)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "site not found")
	}
	detail, err := s.details.LatestBySite(ctx, site.ID, nil)
	if err != nil {
		return nil, err
	}
	return &models.SiteWithDetail{Site: *site, Detail: detail}, nil
}

// Courses returns the raw course payload the site reported in its current
// snapshot. The payload is stored verbatim, so it is handed back as an
// opaque string; nil means the site never reported a usable payload.
func (s *SiteService) Courses(ctx context.Context, siteID int64) (*string, error) {
	site, err := s.sites.FindByID(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "site not found")
	}
	detail, err := s.details.LatestBySite(ctx, site.ID, nil)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, nil
	}
	return detail.Courses, nil
}

// Siblings lists the other sites belonging to the same school.
func (s *SiteService) Siblings(ctx context.Context, siteID int64) ([]models.Site, error) {
	site, err := s.sites.FindByID(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "site not found")
	}
	all, err := s.sites.ListBySchool(ctx, site.SchoolID)
	if err != nil {
		return nil, err
	}
	siblings := make([]models.Site, 0, len(all))
	for _, candidate := range all {
		if candidate.ID == site.ID {
			continue
		}
		siblings = append(siblings, candidate)
	}
	return siblings, nil
}
