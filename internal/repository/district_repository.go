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

// DistrictRepository manages persistence for district records.
type DistrictRepository struct {
	db *sqlx.DB
}

// NewDistrictRepository constructs a DistrictRepository.
func NewDistrictRepository(db *sqlx.DB) *DistrictRepository {
	return &DistrictRepository{db: db}
}

// List returns all districts ordered by name. The sentinel district sorts
// with the rest; callers that want to hide it filter on the id.
func (r *DistrictRepository) List(ctx context.Context) ([]models.District, error) {
	const query = `SELECT id, state_id, name, shortname, base_path, created_at FROM districts ORDER BY name`
	var districts []models.District
	if err := r.db.SelectContext(ctx, &districts, query); err != nil {
		return nil, fmt.Errorf("list districts: %w", err)
	}
	return districts, nil
}

// FindByID fetches one district.
func (r *DistrictRepository) FindByID(ctx context.Context, id int64) (*models.District, error) {
	const query = `SELECT id, state_id, name, shortname, base_path, created_at FROM districts WHERE id = $1`
	var district models.District
	if err := r.db.GetContext(ctx, &district, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find district %d: %w", id, err)
	}
	return &district, nil
}

// Create inserts a new district and populates its generated id.
func (r *DistrictRepository) Create(ctx context.Context, district *models.District) error {
	if district.CreatedAt.IsZero() {
		district.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO districts (state_id, name, shortname, base_path, created_at)
        VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		district.StateID, district.Name, district.Shortname, district.BasePath, district.CreatedAt,
	).Scan(&district.ID); err != nil {
		return fmt.Errorf("create district: %w", err)
	}
	return nil
}

// Count returns the number of districts excluding the sentinel.
func (r *DistrictRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM districts WHERE id <> $1`, models.SentinelDistrictID); err != nil {
		return 0, fmt.Errorf("count districts: %w", err)
	}
	return count, nil
}
