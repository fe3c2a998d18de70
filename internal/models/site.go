package models

import "time"

// SiteType distinguishes the two hosted deployment flavours.
type SiteType string

const (
	SiteTypeMoodle SiteType = "moodle"
	SiteTypeDrupal SiteType = "drupal"
)

// SiteLocation classifies the machine a site runs on, derived from the
// telemetry location hint.
type SiteLocation string

const (
	SiteLocationPlatform SiteLocation = "platform"
	SiteLocationUnknown  SiteLocation = "unknown"
)

// Site is one hosted deployment owned by a school. BaseURL is the bare
// hostname used as the reconciliation key; SchoolID, BaseURL, BasePath and
// Location are the only fields reconciliation may update in place.
type Site struct {
	ID        int64        `db:"id" json:"id"`
	SchoolID  int64        `db:"school_id" json:"school_id"`
	Name      string       `db:"name" json:"name"`
	SiteType  SiteType     `db:"sitetype" json:"sitetype"`
	BaseURL   string       `db:"baseurl" json:"baseurl"`
	BasePath  string       `db:"basepath" json:"basepath"`
	Location  SiteLocation `db:"location" json:"location"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}

// SiteWithDetail pairs a site with its most recent snapshot for the active
// site listing. Detail is nil for sites that never reported.
type SiteWithDetail struct {
	Site   Site        `json:"site"`
	Detail *SiteDetail `json:"detail,omitempty"`
}

// InstallTarget is a site eligible for course installs, with the release its
// current snapshot reports.
type InstallTarget struct {
	SiteID      int64  `db:"site_id" json:"site_id"`
	Name        string `db:"name" json:"name"`
	BaseURL     string `db:"baseurl" json:"baseurl"`
	SiteRelease string `db:"siterelease" json:"siterelease"`
}
