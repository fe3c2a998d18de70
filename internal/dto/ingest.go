package dto

// TriggerIngestRequest captures POST /ingest/runs payload.
type TriggerIngestRequest struct {
	Async bool `json:"async"`
}

// IngestQueuedResponse is returned when a run is queued instead of executed
// inline.
type IngestQueuedResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}
