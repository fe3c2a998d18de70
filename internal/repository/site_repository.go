package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edufleet/central-api/internal/models"
)

const siteColumns = `id, school_id, name, sitetype, baseurl, basepath, location, created_at`

// SiteRepository manages persistence for site records.
type SiteRepository struct {
	db *sqlx.DB
}

// NewSiteRepository constructs a SiteRepository.
func NewSiteRepository(db *sqlx.DB) *SiteRepository {
	return &SiteRepository{db: db}
}

// FindByBaseURL looks up a site by exact baseurl match. Returns nil when no
// site reports from that host.
func (r *SiteRepository) FindByBaseURL(ctx context.Context, baseURL string) (*models.Site, error) {
	query := fmt.Sprintf(`SELECT %s FROM sites WHERE baseurl = $1`, siteColumns)
	var site models.Site
	if err := r.db.GetContext(ctx, &site, query, baseURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find site by baseurl %q: %w", baseURL, err)
	}
	return &site, nil
}

// FindByID fetches one site.
func (r *SiteRepository) FindByID(ctx context.Context, id int64) (*models.Site, error) {
	query := fmt.Sprintf(`SELECT %s FROM sites WHERE id = $1`, siteColumns)
	var site models.Site
	if err := r.db.GetContext(ctx, &site, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find site %d: %w", id, err)
	}
	return &site, nil
}

// ListBySchool returns all sites owned by one school ordered by name.
func (r *SiteRepository) ListBySchool(ctx context.Context, schoolID int64) ([]models.Site, error) {
	query := fmt.Sprintf(`SELECT %s FROM sites WHERE school_id = $1 ORDER BY name`, siteColumns)
	var sites []models.Site
	if err := r.db.SelectContext(ctx, &sites, query, schoolID); err != nil {
		return nil, fmt.Errorf("list sites for school %d: %w", schoolID, err)
	}
	return sites, nil
}

// Create inserts a new site and populates its generated id. A unique
// constraint on baseurl backs up the per-key serialization in the
// reconciliation engine.
func (r *SiteRepository) Create(ctx context.Context, site *models.Site) error {
	if site.CreatedAt.IsZero() {
		site.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO sites (school_id, name, sitetype, baseurl, basepath, location, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		site.SchoolID, site.Name, site.SiteType, site.BaseURL,
		site.BasePath, site.Location, site.CreatedAt,
	).Scan(&site.ID); err != nil {
		return fmt.Errorf("create site: %w", err)
	}
	return nil
}

// UpdatePlacement rewrites the only four site fields reconciliation is
// allowed to touch on an existing row.
func (r *SiteRepository) UpdatePlacement(ctx context.Context, id, schoolID int64, baseURL, basePath string, location models.SiteLocation) error {
	const query = `UPDATE sites SET school_id = $2, baseurl = $3, basepath = $4, location = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, schoolID, baseURL, basePath, location); err != nil {
		return fmt.Errorf("update site %d placement: %w", id, err)
	}
	return nil
}

// ListInstallTargets returns sites whose current snapshot reports a 2.x
// release, the only targets the course installer supports.
func (r *SiteRepository) ListInstallTargets(ctx context.Context) ([]models.InstallTarget, error) {
	const query = `SELECT s.id AS site_id, s.name, s.baseurl, d.siterelease
        FROM sites s
        JOIN LATERAL (
            SELECT siterelease FROM site_details sd
            WHERE sd.site_id = s.id
            ORDER BY timemodified DESC LIMIT 1
        ) d ON true
        WHERE d.siterelease LIKE '2%'
        ORDER BY s.name`
	var targets []models.InstallTarget
	if err := r.db.SelectContext(ctx, &targets, query); err != nil {
		return nil, fmt.Errorf("list install targets: %w", err)
	}
	return targets, nil
}

// Count returns the total number of sites.
func (r *SiteRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM sites`); err != nil {
		return 0, fmt.Errorf("count sites: %w", err)
	}
	return count, nil
}
