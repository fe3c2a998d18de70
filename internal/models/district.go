package models

import "time"

// SentinelDistrictID is the placeholder district that owns schools whose real
// district could not be inferred from telemetry. It is seeded by migration and
// must never be deleted; operators reassign its schools by hand.
const SentinelDistrictID int64 = 0

// District groups the schools of one administrative region.
type District struct {
	ID        int64     `db:"id" json:"id"`
	StateID   *int64    `db:"state_id" json:"state_id,omitempty"`
	Name      string    `db:"name" json:"name"`
	Shortname string    `db:"shortname" json:"shortname"`
	BasePath  *string   `db:"base_path" json:"base_path,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
