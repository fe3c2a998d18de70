package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/edufleet/central-api/internal/models"
	"github.com/edufleet/central-api/internal/telemetry"
)

// schoolStore is the slice of SchoolRepository reconciliation needs.
type schoolStore interface {
	FindByDomain(ctx context.Context, domain string) (*models.School, error)
	FindSimilarByDomain(ctx context.Context, fragment string) ([]models.School, error)
	Create(ctx context.Context, school *models.School) error
}

// siteStore is the slice of SiteRepository reconciliation needs.
type siteStore interface {
	FindByBaseURL(ctx context.Context, baseURL string) (*models.Site, error)
	Create(ctx context.Context, site *models.Site) error
	UpdatePlacement(ctx context.Context, id, schoolID int64, baseURL, basePath string, location models.SiteLocation) error
}

// ReconcileService matches telemetry records to catalog schools and sites,
// creating rows lazily on first sighting. Resolution for one baseurl is
// serialized through singleflight so concurrent source workers observing the
// same unknown host cannot create duplicate School or Site rows.
type ReconcileService struct {
	schools schoolStore
	sites   siteStore
	group   singleflight.Group
	logger  *zap.Logger
}

// NewReconcileService constructs a ReconcileService.
func NewReconcileService(schools schoolStore, sites siteStore, logger *zap.Logger) *ReconcileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileService{schools: schools, sites: sites, logger: logger}
}

// Resolve returns the catalog site a telemetry record belongs to, creating
// the school and site on first sighting. The returned site already carries
// the record's placement fields.
//
// Callers that join an in-flight resolution for the same baseurl share the
// winner's result: the loser's placement fields are not written in that
// round and catch up on the next ingest run. Two sources reporting the same
// baseurl in one run carry the same placement in practice, so the last
// writer would be arbitrary either way.
func (s *ReconcileService) Resolve(ctx context.Context, rec telemetry.Record) (*models.Site, error) {
	v, err, _ := s.group.Do(rec.BaseURL, func() (interface{}, error) {
		return s.resolve(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Site), nil
}

func (s *ReconcileService) resolve(ctx context.Context, rec telemetry.Record) (*models.Site, error) {
	school, err := s.schools.FindByDomain(ctx, rec.BaseURL)
	if err != nil {
		return nil, err
	}
	if school == nil {
		school, err = s.createSchool(ctx, rec)
		if err != nil {
			return nil, err
		}
	}

	site, err := s.sites.FindByBaseURL(ctx, rec.BaseURL)
	if err != nil {
		return nil, err
	}
	if site == nil {
		site = &models.Site{
			SchoolID: school.ID,
			Name:     rec.SiteName,
			SiteType: rec.SiteType,
			BaseURL:  rec.BaseURL,
			BasePath: rec.BasePath,
			Location: rec.Location,
		}
		if err := s.sites.Create(ctx, site); err != nil {
			return nil, err
		}
		s.logger.Info("created site",
			zap.Int64("site_id", site.ID),
			zap.String("baseurl", site.BaseURL),
			zap.String("sitetype", string(site.SiteType)))
		return site, nil
	}

	// Existing sites only ever have their placement rewritten; everything
	// else on the row is administrative state reconciliation must not touch.
	if err := s.sites.UpdatePlacement(ctx, site.ID, school.ID, rec.BaseURL, rec.BasePath, rec.Location); err != nil {
		return nil, err
	}
	site.SchoolID = school.ID
	site.BaseURL = rec.BaseURL
	site.BasePath = rec.BasePath
	site.Location = rec.Location
	return site, nil
}

func (s *ReconcileService) createSchool(ctx context.Context, rec telemetry.Record) (*models.School, error) {
	districtID, err := s.inferDistrict(ctx, rec.BaseURL)
	if err != nil {
		return nil, err
	}

	license := ""
	school := &models.School{
		DistrictID: districtID,
		Name:       rec.SiteName,
		Shortname:  rec.SiteName,
		Domain:     rec.BaseURL,
		License:    &license,
	}
	if err := s.schools.Create(ctx, school); err != nil {
		return nil, err
	}
	s.logger.Info("created school",
		zap.Int64("school_id", school.ID),
		zap.String("domain", school.Domain),
		zap.Int64("district_id", school.DistrictID))
	return school, nil
}

// inferDistrict guesses a new school's district from schools with similar
// domains. The full baseurl is tried first, then the baseurl with its
// leftmost label dropped. Candidates that disagree about the district are
// not accurate enough, so the school falls back to the sentinel district for
// manual reassignment. Best effort only, by documented behaviour the first
// candidate wins when all agree.
func (s *ReconcileService) inferDistrict(ctx context.Context, baseURL string) (int64, error) {
	if baseURL == "" {
		return models.SentinelDistrictID, nil
	}

	similar, err := s.schools.FindSimilarByDomain(ctx, baseURL)
	if err != nil {
		return 0, err
	}
	if len(similar) == 0 {
		if dot := strings.Index(baseURL, "."); dot >= 0 {
			similar, err = s.schools.FindSimilarByDomain(ctx, baseURL[dot:])
			if err != nil {
				return 0, err
			}
		}
	}
	if len(similar) == 0 {
		return models.SentinelDistrictID, nil
	}

	districtID := similar[0].DistrictID
	for _, candidate := range similar {
		if candidate.DistrictID != districtID {
			return models.SentinelDistrictID, nil
		}
	}
	return districtID, nil
}

// SnapshotWriter appends one immutable usage snapshot per resolved record.
type SnapshotWriter struct {
	details snapshotAppender
}

type snapshotAppender interface {
	Create(ctx context.Context, detail *models.SiteDetail) error
}

// NewSnapshotWriter constructs a SnapshotWriter.
func NewSnapshotWriter(details snapshotAppender) *SnapshotWriter {
	return &SnapshotWriter{details: details}
}

// Write persists a snapshot for the site. The caller supplies the run
// timestamp so every snapshot of one ingest run carries the same
// timemodified and per-run rollups stay comparable.
func (w *SnapshotWriter) Write(ctx context.Context, site *models.Site, rec telemetry.Record, runTS time.Time) (*models.SiteDetail, error) {
	detail := &models.SiteDetail{
		SiteID:       site.ID,
		Courses:      rec.CoursesRaw,
		SiteVersion:  rec.SiteVersion,
		SiteRelease:  rec.SiteRelease,
		AdminEmail:   rec.AdminEmail,
		TotalUsers:   rec.TotalUsers,
		AdminUsers:   rec.AdminUsers,
		Teachers:     rec.Teachers,
		ActiveUsers:  rec.ActiveUsers,
		TotalCourses: rec.TotalCourses,
		TimeModified: runTS,
	}
	if err := w.details.Create(ctx, detail); err != nil {
		return nil, fmt.Errorf("write snapshot for site %d: %w", site.ID, err)
	}
	return detail, nil
}
