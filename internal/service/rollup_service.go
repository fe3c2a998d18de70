package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edufleet/central-api/internal/models"
	appErrors "github.com/edufleet/central-api/pkg/errors"
)

type districtLister interface {
	List(ctx context.Context) ([]models.District, error)
	FindByID(ctx context.Context, id int64) (*models.District, error)
	Count(ctx context.Context) (int, error)
}

type schoolLister interface {
	List(ctx context.Context, districtID *int64) ([]models.School, error)
	FindByID(ctx context.Context, id int64) (*models.School, error)
	Count(ctx context.Context) (total int, unresolved int, err error)
}

type siteLister interface {
	ListBySchool(ctx context.Context, schoolID int64) ([]models.Site, error)
	Count(ctx context.Context) (int, error)
}

type snapshotReader interface {
	CurrentSnapshots(ctx context.Context, siteIDs []int64, asOf *time.Time) (map[int64]models.SiteDetail, error)
	MaxTimeModified(ctx context.Context) (*time.Time, error)
	Counts(ctx context.Context) (snapshots int, activeSites int, err error)
}

// RollupService computes usage rollups over current snapshots. Every call
// recomputes from the catalog; snapshots are append-only, so there are no
// incremental counters to keep consistent. A feature-flagged response cache
// can sit in front of the district rollup, invalidated after each ingest
// run.
type RollupService struct {
	districts districtLister
	schools   schoolLister
	sites     siteLister
	snapshots snapshotReader
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
}

// RollupServiceParams groups constructor dependencies.
type RollupServiceParams struct {
	Districts districtLister
	Schools   schoolLister
	Sites     siteLister
	Snapshots snapshotReader
	Cache     *CacheService
	Metrics   *MetricsService
	Logger    *zap.Logger
}

// NewRollupService constructs a RollupService.
func NewRollupService(params RollupServiceParams) *RollupService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RollupService{
		districts: params.Districts,
		schools:   params.Schools,
		sites:     params.Sites,
		snapshots: params.Snapshots,
		cache:     params.Cache,
		metrics:   params.Metrics,
		logger:    logger,
	}
}

// School computes the rollup for one school: counter sums over its sites'
// current snapshots plus the two parallel site listings. Sites with at least
// one snapshot are active and carry their current detail; sites that never
// reported are inactive and carry no usage data. The lists are never merged
// because inactive sites structurally lack the fields active ones expose.
func (s *RollupService) School(ctx context.Context, schoolID int64, asOf *time.Time) (*models.SchoolRollup, error) {
	school, err := s.schools.FindByID(ctx, schoolID)
	if err != nil {
		return nil, err
	}
	if school == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
	}
	return s.rollupSchool(ctx, *school, asOf)
}

func (s *RollupService) rollupSchool(ctx context.Context, school models.School, asOf *time.Time) (*models.SchoolRollup, error) {
	sites, err := s.sites.ListBySchool(ctx, school.ID)
	if err != nil {
		return nil, err
	}

	siteIDs := make([]int64, len(sites))
	for i, site := range sites {
		siteIDs[i] = site.ID
	}

	start := time.Now()
	current, err := s.snapshots.CurrentSnapshots(ctx, siteIDs, asOf)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveDBQuery("current_snapshots", time.Since(start))

	rollup := &models.SchoolRollup{
		SchoolID:      school.ID,
		SchoolName:    school.Name,
		Shortname:     school.Shortname,
		ActiveSites:   []models.SiteWithDetail{},
		InactiveSites: []models.Site{},
	}

	for _, site := range sites {
		detail, ok := current[site.ID]
		if !ok {
			rollup.InactiveSites = append(rollup.InactiveSites, site)
			continue
		}
		rollup.ActiveSites = append(rollup.ActiveSites, models.SiteWithDetail{Site: site, Detail: &detail})
		rollup.AdminUsers += detail.AdminUsers
		rollup.Teachers += detail.Teachers
		rollup.TotalUsers += detail.TotalUsers
	}

	// Reported totals include admins and teachers; the plain user count is
	// derived and deliberately not clamped at zero.
	rollup.PlainUsers = rollup.TotalUsers - rollup.AdminUsers - rollup.Teachers
	return rollup, nil
}

// District computes the rollup over one district's schools, or over every
// school when districtID is nil. The boolean reports cache utilisation.
func (s *RollupService) District(ctx context.Context, districtID *int64, asOf *time.Time) (*models.DistrictRollup, bool, error) {
	cacheKey := districtCacheKey(districtID, asOf)
	var cached models.DistrictRollup
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return &cached, true, nil
	}

	if districtID != nil && *districtID != models.SentinelDistrictID {
		district, err := s.districts.FindByID(ctx, *districtID)
		if err != nil {
			return nil, false, err
		}
		if district == nil {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "district not found")
		}
	}

	schools, err := s.schools.List(ctx, districtID)
	if err != nil {
		return nil, false, err
	}

	rollup := &models.DistrictRollup{DistrictID: districtID, Schools: []models.SchoolRollup{}}
	for _, school := range schools {
		schoolRollup, err := s.rollupSchool(ctx, school, asOf)
		if err != nil {
			return nil, false, err
		}
		rollup.Schools = append(rollup.Schools, *schoolRollup)
		rollup.AdminUsers += schoolRollup.AdminUsers
		rollup.Teachers += schoolRollup.Teachers
		rollup.TotalUsers += schoolRollup.TotalUsers
		rollup.PlainUsers += schoolRollup.PlainUsers
	}

	if err := s.cache.Set(ctx, cacheKey, rollup, 0); err != nil {
		s.logger.Warn("cache district rollup", zap.Error(err))
	}
	return rollup, false, nil
}

// Districts lists the catalog districts for rollup navigation.
func (s *RollupService) Districts(ctx context.Context) ([]models.District, error) {
	return s.districts.List(ctx)
}

// FleetStatus returns headline counts for the report landing page.
func (s *RollupService) FleetStatus(ctx context.Context) (*models.FleetStatus, error) {
	status := &models.FleetStatus{}

	activeSince, err := s.snapshots.MaxTimeModified(ctx)
	if err != nil {
		return nil, err
	}
	status.ActiveSince = activeSince

	if status.DistrictCount, err = s.districts.Count(ctx); err != nil {
		return nil, err
	}
	if status.SchoolCount, status.UnresolvedOrgs, err = s.schools.Count(ctx); err != nil {
		return nil, err
	}
	if status.SiteCount, err = s.sites.Count(ctx); err != nil {
		return nil, err
	}
	if status.SnapshotCount, status.ActiveSites, err = s.snapshots.Counts(ctx); err != nil {
		return nil, err
	}
	return status, nil
}

func districtCacheKey(districtID *int64, asOf *time.Time) string {
	id := "all"
	if districtID != nil {
		id = fmt.Sprintf("%d", *districtID)
	}
	ts := "current"
	if asOf != nil {
		ts = asOf.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("rollup:district:%s:%s", id, ts)
}
