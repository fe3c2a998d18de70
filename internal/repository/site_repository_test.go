package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edufleet/central-api/internal/models"
)

func siteRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "school_id", "name", "sitetype", "baseurl", "basepath", "location", "created_at"})
}

func TestSiteRepositoryFindByBaseURL(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSiteRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM sites WHERE baseurl = $1`)).
		WithArgs("ms.district5.org").
		WillReturnRows(siteRows().AddRow(10, 7, "Middle School", "moodle", "ms.district5.org", "/", "platform", time.Now()))

	site, err := repo.FindByBaseURL(context.Background(), "ms.district5.org")
	require.NoError(t, err)
	require.NotNil(t, site)
	assert.Equal(t, models.SiteTypeMoodle, site.SiteType)
	assert.Equal(t, models.SiteLocationPlatform, site.Location)
}

func TestSiteRepositoryFindByBaseURLMissingIsNil(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSiteRepository(db)

	mock.ExpectQuery("SELECT").WithArgs("nobody.example.org").WillReturnRows(siteRows())

	site, err := repo.FindByBaseURL(context.Background(), "nobody.example.org")
	require.NoError(t, err)
	assert.Nil(t, site)
}

func TestSiteRepositoryUpdatePlacement(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSiteRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sites SET school_id = $2, baseurl = $3, basepath = $4, location = $5 WHERE id = $1`)).
		WithArgs(int64(10), int64(7), "ms.district5.org", "/", models.SiteLocationPlatform).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdatePlacement(context.Background(), 10, 7, "ms.district5.org", "/", models.SiteLocationPlatform)
	require.NoError(t, err)
}

func TestSiteRepositoryListInstallTargets(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSiteRepository(db)

	rows := sqlmock.NewRows([]string{"site_id", "name", "baseurl", "siterelease"}).
		AddRow(10, "Middle School", "ms.district5.org", "2.7.1+")

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE d.siterelease LIKE '2%'`)).WillReturnRows(rows)

	targets, err := repo.ListInstallTargets(context.Background())
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "2.7.1+", targets[0].SiteRelease)
}

func TestSiteRepositoryCreateReturnsID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSiteRepository(db)

	site := &models.Site{
		SchoolID: 7,
		Name:     "Example",
		SiteType: models.SiteTypeMoodle,
		BaseURL:  "ex.district5.org",
		BasePath: "/",
		Location: models.SiteLocationUnknown,
	}

	mock.ExpectQuery("INSERT INTO sites").
		WithArgs(site.SchoolID, site.Name, site.SiteType, site.BaseURL, site.BasePath, site.Location, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(99))

	require.NoError(t, repo.Create(context.Background(), site))
	assert.Equal(t, int64(99), site.ID)
}
