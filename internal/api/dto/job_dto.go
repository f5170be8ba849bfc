package dto

type CreateJobRequest struct {
	OutputFormat string `form:"output_format" binding:"required"`
	Email        string `form:"email" binding:"omitempty,email"`
}

type CreateJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type JobStatusResponse struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	Detail      string `json:"detail,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	UpdatedAt   string `json:"updated_at"`
}
