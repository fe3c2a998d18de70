package models

import "time"

// SiteDetail is one immutable usage snapshot for a site. Rows are only ever
// appended by the snapshot writer; the current state of a site is the row
// with the greatest TimeModified. All snapshots of one ingest run share the
// same TimeModified so per-run rollups are comparable.
type SiteDetail struct {
	ID           int64     `db:"id" json:"id"`
	SiteID       int64     `db:"site_id" json:"site_id"`
	Courses      *string   `db:"courses" json:"courses,omitempty"`
	SiteVersion  string    `db:"siteversion" json:"siteversion"`
	SiteRelease  string    `db:"siterelease" json:"siterelease"`
	AdminEmail   string    `db:"adminemail" json:"adminemail"`
	TotalUsers   int       `db:"totalusers" json:"totalusers"`
	AdminUsers   int       `db:"adminusers" json:"adminusers"`
	Teachers     int       `db:"teachers" json:"teachers"`
	ActiveUsers  int       `db:"activeusers" json:"activeusers"`
	TotalCourses int       `db:"totalcourses" json:"totalcourses"`
	TimeModified time.Time `db:"timemodified" json:"timemodified"`
}

// MajorRelease buckets the reported release string into its coarse major
// version, e.g. "2.7.1+" -> "2.7".
func (d *SiteDetail) MajorRelease() string {
	if len(d.SiteRelease) < 3 {
		return d.SiteRelease
	}
	return d.SiteRelease[:3]
}

// PlainUsers derives the non-admin, non-teacher user count. Reported
// totalusers includes admins and teachers. The result may be negative when
// upstream data is inconsistent; it is surfaced as-is because a negative
// count is a data-quality signal worth showing.
func (d *SiteDetail) PlainUsers() int {
	return d.TotalUsers - d.AdminUsers - d.Teachers
}
