package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cuongbtq/media-conversor/internal/domain"
	"github.com/cuongbtq/media-conversor/internal/notify"
)

// Storage is the object store used by the processor. shared/objectstore.Client implements it.
type Storage interface {
	FetchInput(ctx context.Context, key, localPath string) error
	RemoveInput(ctx context.Context, key string) error
	OutputExists(ctx context.Context, key string) (bool, error)
	UploadOutput(ctx context.Context, key, localPath, contentType string) (string, error)
	PresignOutput(ctx context.Context, key string) (string, error)
}

// Converter transcodes a local file
type Converter interface {
	Convert(ctx context.Context, inputPath, outputPath string) error
}

// ProcessorConfig holds processor dependencies
type ProcessorConfig struct {
	Logger    *slog.Logger
	Storage   Storage
	Converter Converter
	Notifier  notify.Notifier
	TempDir   string
}

// Processor handles one envelope: fetch, convert, upload, notify, clean up
type Processor struct {
	logger    *slog.Logger
	storage   Storage
	converter Converter
	notifier  notify.Notifier
	tempDir   string
}

// NewProcessor creates a new processor
func NewProcessor(cfg *ProcessorConfig) *Processor {
	return &Processor{
		logger:    cfg.Logger,
		storage:   cfg.Storage,
		converter: cfg.Converter,
		notifier:  cfg.Notifier,
		tempDir:   cfg.TempDir,
	}
}

// OutputKey is the deterministic object key of a job's result
func OutputKey(jobID string, format domain.Format) string {
	return fmt.Sprintf("converted/%s.%s", jobID, format)
}

// Handle converts env's input and returns the download locator.
// Output naming depends only on the job id, so a redelivered job overwrites or reuses its result.
func (p *Processor) Handle(ctx context.Context, env domain.Envelope) (map[string]string, error) {
	logger := p.logger.With(slog.String("job_id", env.JobID))
	key := OutputKey(env.JobID, env.OutputFormat)

	downloadURL, err := p.existingOutput(ctx, key)
	if err != nil {
		return nil, err
	}

	if downloadURL == "" {
		downloadURL, err = p.convert(ctx, env, key, logger)
		if err != nil {
			return nil, err
		}
	} else {
		logger.Info("Output already uploaded, reusing it", slog.String("object_key", key))
	}

	if email := env.Metadata[domain.MetadataEmail]; email != "" {
		if err := p.notifier.SendConversionLink(ctx, email, downloadURL); err != nil {
			logger.Error("Failed to send conversion email",
				slog.String("email", email),
				slog.Any("error", err),
			)
		} else {
			logger.Info("Conversion email sent", slog.String("email", email))
		}
	}

	if err := p.storage.RemoveInput(ctx, env.InputRef); err != nil {
		logger.Warn("Failed to remove input object",
			slog.String("input_ref", env.InputRef),
			slog.Any("error", err),
		)
	}

	return map[string]string{
		domain.ResultDownloadURL: downloadURL,
		domain.ResultObjectKey:   key,
	}, nil
}

func (p *Processor) existingOutput(ctx context.Context, key string) (string, error) {
	exists, err := p.storage.OutputExists(ctx, key)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", nil
	}
	return p.storage.PresignOutput(ctx, key)
}

func (p *Processor) convert(ctx context.Context, env domain.Envelope, key string, logger *slog.Logger) (string, error) {
	inputPath := filepath.Join(p.tempDir, env.JobID+"-input"+filepath.Ext(env.InputRef))
	outputPath := filepath.Join(p.tempDir, fmt.Sprintf("%s.%s", env.JobID, env.OutputFormat))
	defer p.cleanup(logger, inputPath, outputPath)

	if err := p.storage.FetchInput(ctx, env.InputRef, inputPath); err != nil {
		return "", err
	}

	if err := p.converter.Convert(ctx, inputPath, outputPath); err != nil {
		return "", err
	}

	downloadURL, err := p.storage.UploadOutput(ctx, key, outputPath, env.OutputFormat.ContentType())
	if err != nil {
		return "", err
	}

	logger.Info("Converted file uploaded", slog.String("object_key", key))
	return downloadURL, nil
}

// cleanup removes temp files; failures are logged, never returned
func (p *Processor) cleanup(logger *slog.Logger, paths ...string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Failed to remove temp file",
				slog.String("path", path),
				slog.Any("error", err),
			)
		}
	}
}
