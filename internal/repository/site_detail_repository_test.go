package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edufleet/central-api/internal/models"
)

func detailRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "site_id", "courses", "siteversion", "siterelease", "adminemail",
		"totalusers", "adminusers", "teachers", "activeusers", "totalcourses", "timemodified"})
}

func TestSiteDetailRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSiteDetailRepository(db)

	runTS := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)
	detail := &models.SiteDetail{
		SiteID:       10,
		SiteRelease:  "2.7.1+",
		TotalUsers:   100,
		AdminUsers:   5,
		Teachers:     10,
		TimeModified: runTS,
	}

	mock.ExpectQuery("INSERT INTO site_details").
		WithArgs(detail.SiteID, nil, detail.SiteVersion, detail.SiteRelease, detail.AdminEmail,
			detail.TotalUsers, detail.AdminUsers, detail.Teachers, detail.ActiveUsers,
			detail.TotalCourses, runTS).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(77))

	require.NoError(t, repo.Create(context.Background(), detail))
	assert.Equal(t, int64(77), detail.ID)
}

func TestSiteDetailRepositoryLatestBySite(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSiteDetailRepository(db)

	newest := time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE site_id = $1 ORDER BY timemodified DESC LIMIT 1`)).
		WithArgs(int64(10)).
		WillReturnRows(detailRows().AddRow(2, 10, nil, "", "2.7.1+", "", 120, 5, 10, 80, 14, newest))

	detail, err := repo.LatestBySite(context.Background(), 10, nil)
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, 120, detail.TotalUsers)
	assert.True(t, detail.TimeModified.Equal(newest))
}

func TestSiteDetailRepositoryLatestBySiteAsOf(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSiteDetailRepository(db)

	asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE site_id = $1 AND timemodified <= $2 ORDER BY timemodified DESC LIMIT 1`)).
		WithArgs(int64(10), asOf).
		WillReturnRows(detailRows())

	detail, err := repo.LatestBySite(context.Background(), 10, &asOf)
	require.NoError(t, err)
	assert.Nil(t, detail)
}

func TestSiteDetailRepositoryCurrentSnapshots(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSiteDetailRepository(db)

	ts := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT DISTINCT ON (site_id)`)).
		WithArgs(pq.Array([]int64{10, 11, 12})).
		WillReturnRows(detailRows().
			AddRow(1, 10, nil, "", "2.7", "", 100, 5, 10, 60, 12, ts).
			AddRow(3, 12, nil, "", "2.6", "", 20, 15, 10, 5, 2, ts))

	current, err := repo.CurrentSnapshots(context.Background(), []int64{10, 11, 12}, nil)
	require.NoError(t, err)
	require.Len(t, current, 2)
	assert.Equal(t, 100, current[10].TotalUsers)
	_, hasInactive := current[11]
	assert.False(t, hasInactive)
}

func TestSiteDetailRepositoryCurrentSnapshotsEmptyInput(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSiteDetailRepository(db)

	current, err := repo.CurrentSnapshots(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, current)
}

func TestSiteDetailRepositoryMaxTimeModified(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSiteDetailRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT MAX(timemodified) FROM site_details`)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	ts, err := repo.MaxTimeModified(context.Background())
	require.NoError(t, err)
	assert.Nil(t, ts)
}
