package models

import "time"

// School belongs to one district and owns zero or more hosted sites. Domain
// is the bare hostname reported by telemetry and is the key reconciliation
// matches on, so it carries a unique constraint.
type School struct {
	ID         int64     `db:"id" json:"id"`
	DistrictID int64     `db:"district_id" json:"district_id"`
	StateID    *int64    `db:"state_id" json:"state_id,omitempty"`
	Name       string    `db:"name" json:"name"`
	Shortname  string    `db:"shortname" json:"shortname"`
	Domain     string    `db:"domain" json:"domain"`
	License    *string   `db:"license" json:"license,omitempty"`
	County     *string   `db:"county" json:"county,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Unresolved reports whether the school is still parked under the sentinel
// district awaiting manual reassignment.
func (s *School) Unresolved() bool {
	return s.DistrictID == SentinelDistrictID
}
