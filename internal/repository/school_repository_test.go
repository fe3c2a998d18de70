package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edufleet/central-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

func schoolRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "district_id", "state_id", "name", "shortname", "domain", "license", "county", "created_at"})
}

func TestSchoolRepositoryFindByDomain(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSchoolRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, district_id, state_id, name, shortname, domain, license, county, created_at FROM schools WHERE domain = $1`)).
		WithArgs("ms.district5.org").
		WillReturnRows(schoolRows().AddRow(7, 5, nil, "Middle School", "ms", "ms.district5.org", nil, nil, time.Now()))

	school, err := repo.FindByDomain(context.Background(), "ms.district5.org")
	require.NoError(t, err)
	require.NotNil(t, school)
	assert.Equal(t, int64(7), school.ID)
	assert.Equal(t, int64(5), school.DistrictID)
}

func TestSchoolRepositoryFindByDomainMissingIsNil(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSchoolRepository(db)

	mock.ExpectQuery("SELECT").
		WithArgs("nobody.example.org").
		WillReturnRows(schoolRows())

	school, err := repo.FindByDomain(context.Background(), "nobody.example.org")
	require.NoError(t, err)
	assert.Nil(t, school)
}

func TestSchoolRepositoryFindSimilarOrdersById(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSchoolRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM schools WHERE domain LIKE '%' || $1 || '%' ORDER BY id`)).
		WithArgs(".district5.org").
		WillReturnRows(schoolRows().
			AddRow(1, 5, nil, "A", "a", "a.district5.org", nil, nil, time.Now()).
			AddRow(2, 7, nil, "B", "b", "b.district5.org", nil, nil, time.Now()))

	schools, err := repo.FindSimilarByDomain(context.Background(), ".district5.org")
	require.NoError(t, err)
	require.Len(t, schools, 2)
	assert.Equal(t, int64(1), schools[0].ID)
}

func TestSchoolRepositoryCreateReturnsID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSchoolRepository(db)

	license := ""
	school := &models.School{
		DistrictID: models.SentinelDistrictID,
		Name:       "Example",
		Shortname:  "Example",
		Domain:     "ex.district5.org",
		License:    &license,
	}

	mock.ExpectQuery("INSERT INTO schools").
		WithArgs(school.DistrictID, nil, school.Name, school.Shortname, school.Domain, school.License, nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	require.NoError(t, repo.Create(context.Background(), school))
	assert.Equal(t, int64(42), school.ID)
	assert.False(t, school.CreatedAt.IsZero())
}

func TestSchoolRepositoryCount(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSchoolRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*), COUNT(*) FILTER (WHERE district_id = $1) FROM schools`)).
		WithArgs(models.SentinelDistrictID).
		WillReturnRows(sqlmock.NewRows([]string{"count", "count"}).AddRow(12, 3))

	total, unresolved, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	assert.Equal(t, 3, unresolved)
}
