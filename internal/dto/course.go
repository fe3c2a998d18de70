package dto

// InstallCoursesRequest captures POST /courses/install payload. Every listed
// course package is dispatched to every listed site.
type InstallCoursesRequest struct {
	SiteIDs   []int64 `json:"site_ids" binding:"required,min=1,dive,gt=0"`
	CourseIDs []int64 `json:"course_ids" binding:"required,min=1,dive,gt=0"`
}

// InstallQueuedResponse reports the queued install jobs, one per site.
type InstallQueuedResponse struct {
	JobIDs []string `json:"job_ids"`
}
