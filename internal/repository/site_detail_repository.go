package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/edufleet/central-api/internal/models"
)

const siteDetailColumns = `id, site_id, courses, siteversion, siterelease, adminemail,
        totalusers, adminusers, teachers, activeusers, totalcourses, timemodified`

// SiteDetailRepository persists immutable usage snapshots. It deliberately
// exposes no update or delete; history is append-only.
type SiteDetailRepository struct {
	db *sqlx.DB
}

// NewSiteDetailRepository constructs a SiteDetailRepository.
func NewSiteDetailRepository(db *sqlx.DB) *SiteDetailRepository {
	return &SiteDetailRepository{db: db}
}

// Create appends one snapshot and populates its generated id.
func (r *SiteDetailRepository) Create(ctx context.Context, detail *models.SiteDetail) error {
	const query = `INSERT INTO site_details (site_id, courses, siteversion, siterelease, adminemail,
        totalusers, adminusers, teachers, activeusers, totalcourses, timemodified)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		detail.SiteID, detail.Courses, detail.SiteVersion, detail.SiteRelease, detail.AdminEmail,
		detail.TotalUsers, detail.AdminUsers, detail.Teachers, detail.ActiveUsers,
		detail.TotalCourses, detail.TimeModified,
	).Scan(&detail.ID); err != nil {
		return fmt.Errorf("create site detail: %w", err)
	}
	return nil
}

// LatestBySite returns the current snapshot for one site, or the snapshot
// current as of the supplied timestamp. Nil when the site never reported.
func (r *SiteDetailRepository) LatestBySite(ctx context.Context, siteID int64, asOf *time.Time) (*models.SiteDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM site_details WHERE site_id = $1`, siteDetailColumns)
	args := []interface{}{siteID}
	if asOf != nil {
		query += ` AND timemodified <= $2`
		args = append(args, *asOf)
	}
	query += ` ORDER BY timemodified DESC LIMIT 1`

	var detail models.SiteDetail
	if err := r.db.GetContext(ctx, &detail, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest detail for site %d: %w", siteID, err)
	}
	return &detail, nil
}

// CurrentSnapshots returns the newest snapshot per site for the given site
// ids, keyed by site id. Sites with no snapshot are simply absent from the
// map, which is how callers tell active sites from inactive ones.
func (r *SiteDetailRepository) CurrentSnapshots(ctx context.Context, siteIDs []int64, asOf *time.Time) (map[int64]models.SiteDetail, error) {
	if len(siteIDs) == 0 {
		return map[int64]models.SiteDetail{}, nil
	}

	query := fmt.Sprintf(`SELECT DISTINCT ON (site_id) %s FROM site_details WHERE site_id = ANY($1)`, siteDetailColumns)
	args := []interface{}{pq.Array(siteIDs)}
	if asOf != nil {
		query += ` AND timemodified <= $2`
		args = append(args, *asOf)
	}
	query += ` ORDER BY site_id, timemodified DESC`

	var details []models.SiteDetail
	if err := r.db.SelectContext(ctx, &details, query, args...); err != nil {
		return nil, fmt.Errorf("current snapshots: %w", err)
	}

	current := make(map[int64]models.SiteDetail, len(details))
	for _, detail := range details {
		current[detail.SiteID] = detail
	}
	return current, nil
}

// MaxTimeModified returns the timestamp of the newest snapshot in the store,
// nil when no site has ever reported.
func (r *SiteDetailRepository) MaxTimeModified(ctx context.Context) (*time.Time, error) {
	var ts sql.NullTime
	if err := r.db.GetContext(ctx, &ts, `SELECT MAX(timemodified) FROM site_details`); err != nil {
		return nil, fmt.Errorf("max timemodified: %w", err)
	}
	if !ts.Valid {
		return nil, nil
	}
	return &ts.Time, nil
}

// Counts returns the total number of snapshots and the number of distinct
// sites that have reported at least once.
func (r *SiteDetailRepository) Counts(ctx context.Context) (snapshots int, activeSites int, err error) {
	row := r.db.QueryRowxContext(ctx, `SELECT COUNT(*), COUNT(DISTINCT site_id) FROM site_details`)
	if err := row.Scan(&snapshots, &activeSites); err != nil {
		return 0, 0, fmt.Errorf("count site details: %w", err)
	}
	return snapshots, activeSites, nil
}
