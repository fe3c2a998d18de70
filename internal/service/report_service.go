package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/edufleet/central-api/internal/models"
	appErrors "github.com/edufleet/central-api/pkg/errors"
	"github.com/edufleet/central-api/pkg/export"
)

// ReportFormat selects the export encoding.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// Export is a rendered report ready to be written to the response.
type Export struct {
	Content  []byte
	MimeType string
	Filename string
}

type rollupProvider interface {
	District(ctx context.Context, districtID *int64, asOf *time.Time) (*models.DistrictRollup, bool, error)
}

// ReportService renders fleet usage reports for download. Rows are one per
// school with the district total appended last, mirroring the on-screen
// rollup.
type ReportService struct {
	rollups rollupProvider
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
}

// NewReportService constructs a ReportService.
func NewReportService(rollups rollupProvider) *ReportService {
	return &ReportService{
		rollups: rollups,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
	}
}

// DistrictUsage renders the usage rollup for one district, or the whole
// fleet when districtID is nil.
func (s *ReportService) DistrictUsage(ctx context.Context, districtID *int64, asOf *time.Time, format ReportFormat) (*Export, error) {
	rollup, _, err := s.rollups.District(ctx, districtID, asOf)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"School", "Shortname", "Active Sites", "Inactive Sites", "Admins", "Teachers", "Users", "Total Users"},
	}
	for _, school := range rollup.Schools {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"School":         school.SchoolName,
			"Shortname":      school.Shortname,
			"Active Sites":   strconv.Itoa(len(school.ActiveSites)),
			"Inactive Sites": strconv.Itoa(len(school.InactiveSites)),
			"Admins":         strconv.Itoa(school.AdminUsers),
			"Teachers":       strconv.Itoa(school.Teachers),
			"Users":          strconv.Itoa(school.PlainUsers),
			"Total Users":    strconv.Itoa(school.TotalUsers),
		})
	}
	dataset.Rows = append(dataset.Rows, map[string]string{
		"School":      "TOTAL",
		"Admins":      strconv.Itoa(rollup.AdminUsers),
		"Teachers":    strconv.Itoa(rollup.Teachers),
		"Users":       strconv.Itoa(rollup.PlainUsers),
		"Total Users": strconv.Itoa(rollup.TotalUsers),
	})

	scope := "fleet"
	if districtID != nil {
		scope = fmt.Sprintf("district-%d", *districtID)
	}

	switch format {
	case ReportFormatCSV:
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, err
		}
		return &Export{Content: content, MimeType: "text/csv", Filename: scope + "-usage.csv"}, nil
	case ReportFormatPDF:
		content, err := s.pdf.Render(dataset, "Usage Report: "+scope)
		if err != nil {
			return nil, err
		}
		return &Export{Content: content, MimeType: "application/pdf", Filename: scope + "-usage.pdf"}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}
}
