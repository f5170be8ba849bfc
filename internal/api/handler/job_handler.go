package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuongbtq/media-conversor/internal/api/dto"
	"github.com/cuongbtq/media-conversor/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// multipartOverhead leaves room for form fields and part headers around the file
const multipartOverhead = 1 << 20

// CreateJob handles POST /api/v1/jobs
// Stores the uploaded file and enqueues a conversion job
func (h *JobHandler) CreateJob(c *gin.Context) {
	h.logger.Info("CreateJob called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
	)

	if h.maxFileSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileSize+multipartOverhead)
	}

	// 1. Validate form fields
	var req dto.CreateJobRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.Error("Invalid request form", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "output_format is required and email must be valid",
		})
		return
	}

	format, err := domain.ParseFormat(req.OutputFormat)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             err.Error(),
			"supported_formats": domain.SupportedFormats,
		})
		return
	}

	// 2. Validate file
	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.logger.Error("Missing upload file", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "file is required",
		})
		return
	}

	if h.maxFileSize > 0 && fileHeader.Size > h.maxFileSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":          "file is too large",
			"max_file_bytes": h.maxFileSize,
		})
		return
	}

	// 3. Store the upload
	inputRef := "inputs/" + uuid.NewString() + strings.ToLower(filepath.Ext(fileHeader.Filename))

	file, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("Failed to open upload", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "failed to read file",
		})
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ctx := c.Request.Context()
	if err := h.uploads.PutInput(ctx, inputRef, file, fileHeader.Size, contentType); err != nil {
		h.logger.Error("Failed to store upload", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to store file",
		})
		return
	}

	// 4. Enqueue
	metadata := map[string]string{
		domain.MetadataOriginalName: filepath.Base(fileHeader.Filename),
	}
	if req.Email != "" {
		metadata[domain.MetadataEmail] = req.Email
	}

	jobID, err := h.enqueuer.Enqueue(ctx, domain.ConversionRequest{
		InputRef:     inputRef,
		OutputFormat: format,
		Metadata:     metadata,
	})
	if err != nil {
		h.logger.Error("Failed to enqueue job", slog.String("error", err.Error()))
		if removeErr := h.uploads.RemoveInput(ctx, inputRef); removeErr != nil {
			h.logger.Warn("Failed to remove orphaned upload",
				slog.String("input_ref", inputRef),
				slog.String("error", removeErr.Error()),
			)
		}

		if errors.Is(err, domain.ErrQueueUnavailable) {
			c.Header("Retry-After", "5")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Conversion queue is unavailable, try again later",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	// 5. Return job reference
	c.JSON(http.StatusAccepted, dto.CreateJobResponse{
		JobID:  jobID,
		Status: string(domain.StatusQueued),
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
// Returns the latest status record of a job
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	h.logger.Info("GetJob called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("job_id", jobID),
	)

	// 1. Validate job_id format (UUID)
	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Error("Invalid job_id format", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	// 2. Query status
	rec, err := h.statuses.QueryStatus(c.Request.Context(), jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "job not found",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get job status", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	// 3. Return status
	c.JSON(http.StatusOK, dto.JobStatusResponse{
		JobID:       rec.JobID,
		Status:      string(rec.Status),
		Attempts:    rec.Attempts,
		Detail:      rec.Detail,
		DownloadURL: rec.Result[domain.ResultDownloadURL],
		UpdatedAt:   rec.Timestamp.Format(time.RFC3339),
	})
}
