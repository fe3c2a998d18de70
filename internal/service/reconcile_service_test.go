package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edufleet/central-api/internal/models"
	"github.com/edufleet/central-api/internal/telemetry"
)

type mockSchoolStore struct {
	byDomain   map[string]models.School
	nextID     int64
	created    []models.School
	similarErr error
	findCalls  []string
}

func (m *mockSchoolStore) FindByDomain(ctx context.Context, domain string) (*models.School, error) {
	if s, ok := m.byDomain[domain]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *mockSchoolStore) FindSimilarByDomain(ctx context.Context, fragment string) ([]models.School, error) {
	m.findCalls = append(m.findCalls, fragment)
	if m.similarErr != nil {
		return nil, m.similarErr
	}
	var out []models.School
	for _, s := range m.byDomain {
		if strings.Contains(s.Domain, fragment) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSchoolStore) Create(ctx context.Context, school *models.School) error {
	if m.byDomain == nil {
		m.byDomain = make(map[string]models.School)
	}
	m.nextID++
	school.ID = m.nextID + 100
	m.byDomain[school.Domain] = *school
	m.created = append(m.created, *school)
	return nil
}

type mockSiteStore struct {
	byBaseURL  map[string]models.Site
	nextID     int64
	created    []models.Site
	placements []models.Site
}

func (m *mockSiteStore) FindByBaseURL(ctx context.Context, baseURL string) (*models.Site, error) {
	if s, ok := m.byBaseURL[baseURL]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *mockSiteStore) Create(ctx context.Context, site *models.Site) error {
	if m.byBaseURL == nil {
		m.byBaseURL = make(map[string]models.Site)
	}
	m.nextID++
	site.ID = m.nextID + 500
	m.byBaseURL[site.BaseURL] = *site
	m.created = append(m.created, *site)
	return nil
}

func (m *mockSiteStore) UpdatePlacement(ctx context.Context, id, schoolID int64, baseURL, basePath string, location models.SiteLocation) error {
	site := m.byBaseURL[baseURL]
	site.SchoolID = schoolID
	site.BaseURL = baseURL
	site.BasePath = basePath
	site.Location = location
	m.byBaseURL[baseURL] = site
	m.placements = append(m.placements, site)
	return nil
}

func testRecord(baseURL string) telemetry.Record {
	return telemetry.Record{
		SiteName: "Example",
		SiteType: models.SiteTypeMoodle,
		BaseURL:  baseURL,
		BasePath: "/",
		Location: models.SiteLocationPlatform,
	}
}

func TestResolveExistingSchoolCreatesNoSchool(t *testing.T) {
	schools := &mockSchoolStore{byDomain: map[string]models.School{
		"ms.district5.org": {ID: 7, DistrictID: 5, Domain: "ms.district5.org"},
	}}
	sites := &mockSiteStore{}
	svc := NewReconcileService(schools, sites, nil)

	site, err := svc.Resolve(context.Background(), testRecord("ms.district5.org"))
	require.NoError(t, err)

	assert.Empty(t, schools.created)
	assert.Len(t, sites.created, 1)
	assert.Equal(t, int64(7), site.SchoolID)
	assert.Equal(t, "ms.district5.org", site.BaseURL)
}

func TestResolveCreatesSchoolAndSiteAgainstEmptyCatalog(t *testing.T) {
	schools := &mockSchoolStore{}
	sites := &mockSiteStore{}
	svc := NewReconcileService(schools, sites, nil)

	site, err := svc.Resolve(context.Background(), testRecord("ex.district5.org"))
	require.NoError(t, err)

	require.Len(t, schools.created, 1)
	assert.Equal(t, models.SentinelDistrictID, schools.created[0].DistrictID)
	assert.Equal(t, "ex.district5.org", schools.created[0].Domain)
	assert.Equal(t, "Example", schools.created[0].Name)
	require.NotNil(t, schools.created[0].License)
	assert.Equal(t, "", *schools.created[0].License)

	require.Len(t, sites.created, 1)
	assert.Equal(t, schools.created[0].ID, site.SchoolID)
	assert.Equal(t, models.SiteTypeMoodle, site.SiteType)
}

func TestResolveIdempotentOnSecondRun(t *testing.T) {
	schools := &mockSchoolStore{}
	sites := &mockSiteStore{}
	svc := NewReconcileService(schools, sites, nil)

	_, err := svc.Resolve(context.Background(), testRecord("ex.district5.org"))
	require.NoError(t, err)
	_, err = svc.Resolve(context.Background(), testRecord("ex.district5.org"))
	require.NoError(t, err)

	assert.Len(t, schools.created, 1)
	assert.Len(t, sites.created, 1)
	assert.Len(t, sites.placements, 1)
}

func TestResolveUpdatesOnlyPlacementFields(t *testing.T) {
	schools := &mockSchoolStore{byDomain: map[string]models.School{
		"ms.district5.org": {ID: 7, DistrictID: 5, Domain: "ms.district5.org"},
	}}
	sites := &mockSiteStore{byBaseURL: map[string]models.Site{
		"ms.district5.org": {
			ID:       40,
			SchoolID: 99,
			Name:     "Original Name",
			SiteType: models.SiteTypeDrupal,
			BaseURL:  "ms.district5.org",
			Location: models.SiteLocationUnknown,
		},
	}}
	svc := NewReconcileService(schools, sites, nil)

	rec := testRecord("ms.district5.org")
	rec.SiteName = "Renamed Upstream"
	site, err := svc.Resolve(context.Background(), rec)
	require.NoError(t, err)

	require.Len(t, sites.placements, 1)
	assert.Equal(t, int64(7), site.SchoolID)
	assert.Equal(t, models.SiteLocationPlatform, site.Location)
	// Name and sitetype stay as administered.
	assert.Equal(t, "Original Name", site.Name)
	assert.Equal(t, models.SiteTypeDrupal, site.SiteType)
}

func TestInferDistrictAgreement(t *testing.T) {
	schools := &mockSchoolStore{byDomain: map[string]models.School{
		"a.district5.org": {ID: 1, DistrictID: 5, Domain: "a.district5.org"},
		"b.district5.org": {ID: 2, DistrictID: 5, Domain: "b.district5.org"},
	}}
	svc := NewReconcileService(schools, &mockSiteStore{}, nil)

	id, err := svc.inferDistrict(context.Background(), "new.district5.org")
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
}

func TestInferDistrictDisagreementFallsBackToSentinel(t *testing.T) {
	schools := &mockSchoolStore{byDomain: map[string]models.School{
		"a.district5.org": {ID: 1, DistrictID: 5, Domain: "a.district5.org"},
		"b.district5.org": {ID: 2, DistrictID: 7, Domain: "b.district5.org"},
	}}
	svc := NewReconcileService(schools, &mockSiteStore{}, nil)

	id, err := svc.inferDistrict(context.Background(), "new.district5.org")
	require.NoError(t, err)
	assert.Equal(t, models.SentinelDistrictID, id)
}

func TestInferDistrictBroadensKeyAfterEmptyFirstPass(t *testing.T) {
	schools := &mockSchoolStore{byDomain: map[string]models.School{
		"hs.district5.org": {ID: 1, DistrictID: 5, Domain: "hs.district5.org"},
	}}
	svc := NewReconcileService(schools, &mockSiteStore{}, nil)

	// "other.district5.org" is not contained in any domain, but the
	// broadened key ".district5.org" is.
	id, err := svc.inferDistrict(context.Background(), "other.district5.org")
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
	require.Len(t, schools.findCalls, 2)
	assert.Equal(t, ".district5.org", schools.findCalls[1])
}

func TestInferDistrictNoCandidatesIsSentinel(t *testing.T) {
	svc := NewReconcileService(&mockSchoolStore{}, &mockSiteStore{}, nil)

	id, err := svc.inferDistrict(context.Background(), "lonely.example.net")
	require.NoError(t, err)
	assert.Equal(t, models.SentinelDistrictID, id)
}

// gatedSiteStore holds the first FindByBaseURL call open so a second
// resolution for the same baseurl can join the in-flight one.
type gatedSiteStore struct {
	*mockSiteStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSiteStore) FindByBaseURL(ctx context.Context, baseURL string) (*models.Site, error) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.mockSiteStore.FindByBaseURL(ctx, baseURL)
}

func TestResolveConcurrentSameBaseurlSharesWinner(t *testing.T) {
	inner := &mockSiteStore{}
	sites := &gatedSiteStore{
		mockSiteStore: inner,
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	svc := NewReconcileService(&mockSchoolStore{}, sites, nil)

	winner := testRecord("shared.district5.org")
	winner.BasePath = "/moodle19"
	loser := testRecord("shared.district5.org")
	loser.BasePath = "/moodle25"

	type outcome struct {
		site *models.Site
		err  error
	}
	results := make(chan outcome, 2)
	go func() {
		site, err := svc.Resolve(context.Background(), winner)
		results <- outcome{site, err}
	}()
	<-sites.entered
	go func() {
		site, err := svc.Resolve(context.Background(), loser)
		results <- outcome{site, err}
	}()
	time.Sleep(20 * time.Millisecond)
	close(sites.release)

	for i := 0; i < 2; i++ {
		res := <-results
		require.NoError(t, res.err)
		assert.Equal(t, "/moodle19", res.site.BasePath)
	}
	assert.Len(t, inner.created, 1)
	assert.Empty(t, inner.placements)
}

type recordingAppender struct {
	details []models.SiteDetail
	nextID  int64
}

func (m *recordingAppender) Create(ctx context.Context, detail *models.SiteDetail) error {
	m.nextID++
	detail.ID = m.nextID
	m.details = append(m.details, *detail)
	return nil
}

func TestSnapshotWriterSharesRunTimestamp(t *testing.T) {
	appender := &recordingAppender{}
	writer := NewSnapshotWriter(appender)
	runTS := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)

	rec := testRecord("ex.district5.org")
	rec.TotalUsers = 100
	rec.AdminUsers = 5
	rec.Teachers = 10

	first, err := writer.Write(context.Background(), &models.Site{ID: 1}, rec, runTS)
	require.NoError(t, err)
	second, err := writer.Write(context.Background(), &models.Site{ID: 2}, rec, runTS)
	require.NoError(t, err)

	assert.Equal(t, runTS, first.TimeModified)
	assert.Equal(t, runTS, second.TimeModified)
	assert.Equal(t, 85, first.PlainUsers())
	assert.Len(t, appender.details, 2)
}
