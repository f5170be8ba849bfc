package objectstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds object store configuration
type Config struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	Region       string
	UploadBucket string
	OutputBucket string
	URLExpiry    time.Duration
}

// Client stores uploaded inputs and converted outputs in MinIO/S3
type Client struct {
	client       *minio.Client
	uploadBucket string
	outputBucket string
	region       string
	urlExpiry    time.Duration
	logger       *slog.Logger
}

// NewClient creates a MinIO client; no request is made until first use
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	logger.Info("Object store client created",
		slog.String("endpoint", config.Endpoint),
		slog.String("upload_bucket", config.UploadBucket),
		slog.String("output_bucket", config.OutputBucket),
	)

	return &Client{
		client:       client,
		uploadBucket: config.UploadBucket,
		outputBucket: config.OutputBucket,
		region:       config.Region,
		urlExpiry:    config.URLExpiry,
		logger:       logger,
	}, nil
}

// EnsureBuckets creates the upload and output buckets when missing
func (c *Client) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{c.uploadBucket, c.outputBucket} {
		exists, err := c.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
		}
		if exists {
			continue
		}
		if err := c.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.region}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
		c.logger.Info("Bucket created", slog.String("bucket", bucket))
	}
	return nil
}

// PutInput stores an uploaded source file under key in the upload bucket
func (c *Client) PutInput(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := c.client.PutObject(ctx, c.uploadBucket, key, reader, size, opts); err != nil {
		return fmt.Errorf("failed to upload input object: %w", err)
	}
	return nil
}

// FetchInput downloads an input object to localPath
func (c *Client) FetchInput(ctx context.Context, key, localPath string) error {
	if err := c.client.FGetObject(ctx, c.uploadBucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("failed to download input object %s: %w", key, err)
	}
	return nil
}

// RemoveInput deletes an input object
func (c *Client) RemoveInput(ctx context.Context, key string) error {
	if err := c.client.RemoveObject(ctx, c.uploadBucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove input object %s: %w", key, err)
	}
	return nil
}

// UploadOutput stores localPath under key in the output bucket and returns a
// presigned download URL. Uploading the same key again overwrites the object.
func (c *Client) UploadOutput(ctx context.Context, key, localPath, contentType string) (string, error) {
	info, err := c.client.FPutObject(ctx, c.outputBucket, key, localPath, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload output object: %w", err)
	}

	c.logger.Debug("Output object uploaded",
		slog.String("bucket", c.outputBucket),
		slog.String("key", key),
		slog.Int64("size", info.Size),
	)

	return c.PresignOutput(ctx, key)
}

// OutputExists reports whether an output object is already stored
func (c *Client) OutputExists(ctx context.Context, key string) (bool, error) {
	_, err := c.client.StatObject(ctx, c.outputBucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat output object %s: %w", key, err)
}

// PresignOutput returns a signed GET URL for an output object
func (c *Client) PresignOutput(ctx context.Context, key string) (string, error) {
	u, err := c.client.PresignedGetObject(ctx, c.outputBucket, key, c.urlExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign output object: %w", err)
	}
	return u.String(), nil
}
