package dto

// ReassignSchoolRequest captures PUT /schools/:id/district payload. A
// pointer so that moving a school back to the sentinel district (id 0) is
// distinguishable from an absent field.
type ReassignSchoolRequest struct {
	DistrictID *int64 `json:"district_id" binding:"required,gte=0"`
}
