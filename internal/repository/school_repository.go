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

const schoolColumns = `id, district_id, state_id, name, shortname, domain, license, county, created_at`

// SchoolRepository manages persistence for school records.
type SchoolRepository struct {
	db *sqlx.DB
}

// NewSchoolRepository constructs a SchoolRepository.
func NewSchoolRepository(db *sqlx.DB) *SchoolRepository {
	return &SchoolRepository{db: db}
}

// FindByDomain looks up a school by exact domain match. Returns nil when no
// school owns the domain.
func (r *SchoolRepository) FindByDomain(ctx context.Context, domain string) (*models.School, error) {
	query := fmt.Sprintf(`SELECT %s FROM schools WHERE domain = $1`, schoolColumns)
	var school models.School
	if err := r.db.GetContext(ctx, &school, query, domain); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find school by domain %q: %w", domain, err)
	}
	return &school, nil
}

// FindSimilarByDomain returns schools whose domain contains the fragment,
// in insertion order. Used by district inference; ordering matters because
// the first match wins when candidates agree.
func (r *SchoolRepository) FindSimilarByDomain(ctx context.Context, fragment string) ([]models.School, error) {
	query := fmt.Sprintf(`SELECT %s FROM schools WHERE domain LIKE '%%' || $1 || '%%' ORDER BY id`, schoolColumns)
	var schools []models.School
	if err := r.db.SelectContext(ctx, &schools, query, fragment); err != nil {
		return nil, fmt.Errorf("find schools similar to %q: %w", fragment, err)
	}
	return schools, nil
}

// FindByID fetches one school.
func (r *SchoolRepository) FindByID(ctx context.Context, id int64) (*models.School, error) {
	query := fmt.Sprintf(`SELECT %s FROM schools WHERE id = $1`, schoolColumns)
	var school models.School
	if err := r.db.GetContext(ctx, &school, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find school %d: %w", id, err)
	}
	return &school, nil
}

// List returns schools for one district, or all schools when districtID is
// nil, ordered by name.
func (r *SchoolRepository) List(ctx context.Context, districtID *int64) ([]models.School, error) {
	var schools []models.School
	if districtID != nil {
		query := fmt.Sprintf(`SELECT %s FROM schools WHERE district_id = $1 ORDER BY name`, schoolColumns)
		if err := r.db.SelectContext(ctx, &schools, query, *districtID); err != nil {
			return nil, fmt.Errorf("list schools for district %d: %w", *districtID, err)
		}
		return schools, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM schools ORDER BY name`, schoolColumns)
	if err := r.db.SelectContext(ctx, &schools, query); err != nil {
		return nil, fmt.Errorf("list schools: %w", err)
	}
	return schools, nil
}

// Create inserts a new school and populates its generated id. The unique
// constraint on domain is the structural guard against two concurrent ingest
// workers creating the same school.
func (r *SchoolRepository) Create(ctx context.Context, school *models.School) error {
	if school.CreatedAt.IsZero() {
		school.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO schools (district_id, state_id, name, shortname, domain, license, county, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		school.DistrictID, school.StateID, school.Name, school.Shortname,
		school.Domain, school.License, school.County, school.CreatedAt,
	).Scan(&school.ID); err != nil {
		return fmt.Errorf("create school: %w", err)
	}
	return nil
}

// UpdateDistrict reassigns a school to a district. This is the manual path
// operators use to move schools out of the sentinel district.
func (r *SchoolRepository) UpdateDistrict(ctx context.Context, schoolID, districtID int64) error {
	const query = `UPDATE schools SET district_id = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, schoolID, districtID); err != nil {
		return fmt.Errorf("update school %d district: %w", schoolID, err)
	}
	return nil
}

// Count returns the total number of schools and how many are still parked
// under the sentinel district.
func (r *SchoolRepository) Count(ctx context.Context) (total int, unresolved int, err error) {
	row := r.db.QueryRowxContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE district_id = $1) FROM schools`,
		models.SentinelDistrictID)
	if err := row.Scan(&total, &unresolved); err != nil {
		return 0, 0, fmt.Errorf("count schools: %w", err)
	}
	return total, unresolved, nil
}
