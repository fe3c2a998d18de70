package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edufleet/central-api/internal/models"
)

type stubRollupProvider struct {
	rollup *models.DistrictRollup
	err    error
}

func (s *stubRollupProvider) District(ctx context.Context, districtID *int64, asOf *time.Time) (*models.DistrictRollup, bool, error) {
	return s.rollup, false, s.err
}

func usageRollup() *models.DistrictRollup {
	districtID := int64(5)
	return &models.DistrictRollup{
		DistrictID: &districtID,
		AdminUsers: 5,
		Teachers:   10,
		TotalUsers: 100,
		PlainUsers: 85,
		Schools: []models.SchoolRollup{{
			SchoolID:   7,
			SchoolName: "North High",
			Shortname:  "nh",
			AdminUsers: 5,
			Teachers:   10,
			TotalUsers: 100,
			PlainUsers: 85,
			ActiveSites: []models.SiteWithDetail{
				{Site: models.Site{ID: 1}},
				{Site: models.Site{ID: 2}},
			},
			InactiveSites: []models.Site{{ID: 3}},
		}},
	}
}

func TestDistrictUsageCSVRowsFollowHeaders(t *testing.T) {
	svc := NewReportService(&stubRollupProvider{rollup: usageRollup()})
	districtID := int64(5)

	export, err := svc.DistrictUsage(context.Background(), &districtID, nil, ReportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", export.MimeType)
	assert.Equal(t, "district-5-usage.csv", export.Filename)

	lines := strings.Split(strings.TrimSpace(string(export.Content)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "School,Shortname,Active Sites,Inactive Sites,Admins,Teachers,Users,Total Users", lines[0])
	assert.Equal(t, "North High,nh,2,1,5,10,85,100", lines[1])
	assert.Equal(t, "TOTAL,,,,5,10,85,100", lines[2])
}

func TestDistrictUsagePDFRenders(t *testing.T) {
	svc := NewReportService(&stubRollupProvider{rollup: usageRollup()})

	export, err := svc.DistrictUsage(context.Background(), nil, nil, ReportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", export.MimeType)
	assert.Equal(t, "fleet-usage.pdf", export.Filename)
	assert.NotEmpty(t, export.Content)
}

func TestDistrictUsageRejectsUnknownFormat(t *testing.T) {
	svc := NewReportService(&stubRollupProvider{rollup: usageRollup()})

	_, err := svc.DistrictUsage(context.Background(), nil, nil, ReportFormat("xlsx"))
	assert.Error(t, err)
}
