package domain

import "time"

// Status is a job lifecycle state broadcast on the status channel
type Status string

// Job status constants
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsValid reports whether s is one of the lifecycle states
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions follow this status
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Result keys set by the conversion collaborator on success
const (
	ResultDownloadURL = "download_url"
	ResultObjectKey   = "object_key"
)

// StatusRecord is one lifecycle transition of a job
type StatusRecord struct {
	JobID     string            `json:"job_id"`
	Status    Status            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Attempts  int               `json:"attempts"`
	Detail    string            `json:"detail,omitempty"`
	Result    map[string]string `json:"result,omitempty"`
}
