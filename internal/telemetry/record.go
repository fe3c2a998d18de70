package telemetry

import (
	"github.com/edufleet/central-api/internal/models"
)

// Record is one normalized telemetry report from a hosted site. BaseURL has
// its protocol scheme already stripped and is the key reconciliation matches
// on.
type Record struct {
	SiteName     string
	SiteType     models.SiteType
	BaseURL      string
	BasePath     string
	SiteVersion  string
	SiteRelease  string
	AdminEmail   string
	TotalUsers   int
	AdminUsers   int
	Teachers     int
	ActiveUsers  int
	TotalCourses int
	// CoursesRaw is the opaque course-usage JSON reported by the site, nil
	// when absent or when the payload failed the array-of-objects sniff.
	CoursesRaw *string
	Location   models.SiteLocation
}

// SourceFailure records one telemetry source that could not be reached or
// queried during an ingest run.
type SourceFailure struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// Batch is the outcome of pulling one source: the normalized records plus a
// count of rows dropped during normalization.
type Batch struct {
	Records []Record
	Skipped int
}
