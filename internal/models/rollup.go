package models

import "time"

// SchoolRollup sums the current snapshots of one school's sites. PlainUsers
// is TotalUsers minus AdminUsers minus Teachers and may legitimately be
// negative when upstream counters disagree.
type SchoolRollup struct {
	SchoolID   int64  `json:"school_id"`
	SchoolName string `json:"school_name"`
	Shortname  string `json:"shortname"`
	AdminUsers int    `json:"adminusers"`
	Teachers   int    `json:"teachers"`
	TotalUsers int    `json:"totalusers"`
	PlainUsers int    `json:"plainusers"`

	ActiveSites   []SiteWithDetail `json:"active_sites"`
	InactiveSites []Site           `json:"inactive_sites"`
}

// DistrictRollup sums school rollups over one district, or over the whole
// fleet when DistrictID is nil.
type DistrictRollup struct {
	DistrictID *int64         `json:"district_id,omitempty"`
	AdminUsers int            `json:"adminusers"`
	Teachers   int            `json:"teachers"`
	TotalUsers int            `json:"totalusers"`
	PlainUsers int            `json:"plainusers"`
	Schools    []SchoolRollup `json:"schools"`
}

// FleetStatus carries headline numbers for the report landing page.
type FleetStatus struct {
	ActiveSince    *time.Time `json:"active_since,omitempty"`
	DistrictCount  int        `json:"district_count"`
	SchoolCount    int        `json:"school_count"`
	SiteCount      int        `json:"site_count"`
	ActiveSites    int        `json:"active_sites"`
	SnapshotCount  int        `json:"snapshot_count"`
	UnresolvedOrgs int        `json:"unresolved_schools"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
