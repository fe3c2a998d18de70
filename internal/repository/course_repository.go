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

// CourseRepository manages the canonical course catalog and its packaged
// file descriptors.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByName matches a course by fullname or shortname, the identifiers the
// package manifests carry. Nil when the catalog has no such course.
func (r *CourseRepository) FindByName(ctx context.Context, name, shortname string) (*models.Course, error) {
	const query = `SELECT id, serial, name, shortname, license, category, source, created_at
        FROM courses WHERE name = $1 OR shortname = $2 LIMIT 1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, name, shortname); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find course %q: %w", name, err)
	}
	return &course, nil
}

// FindDetailByID fetches one packaged file descriptor.
func (r *CourseRepository) FindDetailByID(ctx context.Context, id int64) (*models.CourseDetail, error) {
	const query = `SELECT id, course_id, filename, version, updated, active, moodle_version, moodle_course_id
        FROM course_details WHERE id = $1`
	var detail models.CourseDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find course detail %d: %w", id, err)
	}
	return &detail, nil
}

// FindByID fetches one course.
func (r *CourseRepository) FindByID(ctx context.Context, id int64) (*models.Course, error) {
	const query = `SELECT id, serial, name, shortname, license, category, source, created_at
        FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find course %d: %w", id, err)
	}
	return &course, nil
}

// Count returns the number of catalog courses; serial allocation for newly
// discovered packages builds on it.
func (r *CourseRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM courses`); err != nil {
		return 0, fmt.Errorf("count courses: %w", err)
	}
	return count, nil
}

// Create inserts a new course and populates its generated id.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.CreatedAt.IsZero() {
		course.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO courses (serial, name, shortname, license, category, source, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		course.Serial, course.Name, course.Shortname, course.License,
		course.Category, course.Source, course.CreatedAt,
	).Scan(&course.ID); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// CreateDetail inserts a packaged file descriptor for a course.
func (r *CourseRepository) CreateDetail(ctx context.Context, detail *models.CourseDetail) error {
	if detail.Updated.IsZero() {
		detail.Updated = time.Now().UTC()
	}
	const query = `INSERT INTO course_details (course_id, filename, version, updated, active, moodle_version, moodle_course_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		detail.CourseID, detail.Filename, detail.Version, detail.Updated,
		detail.Active, detail.MoodleVersion, detail.MoodleCourseID,
	).Scan(&detail.ID); err != nil {
		return fmt.Errorf("create course detail: %w", err)
	}
	return nil
}

// DetailExists reports whether a packaged file has already been cataloged,
// so repeated package scans stay idempotent.
func (r *CourseRepository) DetailExists(ctx context.Context, filename string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM course_details WHERE filename = $1 LIMIT 1`, filename)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check course detail %q: %w", filename, err)
	}
	return true, nil
}

// ListDetails returns packaged files filtered by course source. An empty
// source lists everything. When the source matches nothing the filter falls
// back to a filename substring match, which is how operators search by
// folder name.
func (r *CourseRepository) ListDetails(ctx context.Context, source string) ([]models.CourseDetail, error) {
	var details []models.CourseDetail
	if source == "" {
		const query = `SELECT cd.id, cd.course_id, cd.filename, cd.version, cd.updated, cd.active, cd.moodle_version, cd.moodle_course_id
            FROM course_details cd JOIN courses c ON c.id = cd.course_id ORDER BY c.name`
		if err := r.db.SelectContext(ctx, &details, query); err != nil {
			return nil, fmt.Errorf("list course details: %w", err)
		}
		return details, nil
	}

	const bySource = `SELECT cd.id, cd.course_id, cd.filename, cd.version, cd.updated, cd.active, cd.moodle_version, cd.moodle_course_id
        FROM course_details cd JOIN courses c ON c.id = cd.course_id WHERE c.source = $1 ORDER BY c.name`
	if err := r.db.SelectContext(ctx, &details, bySource, source); err != nil {
		return nil, fmt.Errorf("list course details by source %q: %w", source, err)
	}
	if len(details) > 0 {
		return details, nil
	}

	const byFilename = `SELECT cd.id, cd.course_id, cd.filename, cd.version, cd.updated, cd.active, cd.moodle_version, cd.moodle_course_id
        FROM course_details cd JOIN courses c ON c.id = cd.course_id
        WHERE cd.filename LIKE '%' || $1 || '%' ORDER BY c.name`
	if err := r.db.SelectContext(ctx, &details, byFilename, source); err != nil {
		return nil, fmt.Errorf("list course details by filename %q: %w", source, err)
	}
	return details, nil
}
