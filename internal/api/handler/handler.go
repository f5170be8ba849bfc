package handler

import (
	"context"
	"io"
	"log/slog"

	"github.com/cuongbtq/media-conversor/internal/domain"
)

// Enqueuer places conversion jobs on the work queue
type Enqueuer interface {
	Enqueue(ctx context.Context, req domain.ConversionRequest) (string, error)
}

// StatusQuerier answers job status queries
type StatusQuerier interface {
	QueryStatus(ctx context.Context, jobID string) (domain.StatusRecord, error)
}

// UploadStore keeps uploaded source files until a worker claims them
type UploadStore interface {
	PutInput(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	RemoveInput(ctx context.Context, key string) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Enqueuer    Enqueuer
	Statuses    StatusQuerier
	Uploads     UploadStore
	MaxFileSize int64
	// BrokerConnected reports broker health for /health
	BrokerConnected func() bool
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger      *slog.Logger
	enqueuer    Enqueuer
	statuses    StatusQuerier
	uploads     UploadStore
	maxFileSize int64
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:      deps.Logger,
		enqueuer:    deps.Enqueuer,
		statuses:    deps.Statuses,
		uploads:     deps.Uploads,
		maxFileSize: deps.MaxFileSize,
	}
}
