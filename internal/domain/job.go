package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Format is a supported conversion output format
type Format string

// Supported output formats
const (
	FormatMP3 Format = "mp3"
	FormatMP4 Format = "mp4"
	FormatAVI Format = "avi"
	FormatWAV Format = "wav"
)

// SupportedFormats lists every format the converter accepts
var SupportedFormats = []Format{FormatMP3, FormatMP4, FormatAVI, FormatWAV}

// ParseFormat normalizes and validates an output format
func ParseFormat(value string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(value)))
	for _, supported := range SupportedFormats {
		if f == supported {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, value)
}

// ContentType returns the MIME type used when uploading a converted file
func (f Format) ContentType() string {
	switch f {
	case FormatMP3:
		return "audio/mpeg"
	case FormatWAV:
		return "audio/wav"
	case FormatMP4:
		return "video/mp4"
	case FormatAVI:
		return "video/x-msvideo"
	default:
		return "application/octet-stream"
	}
}

// Metadata keys understood by the conversion collaborator
const (
	MetadataEmail        = "email"
	MetadataOriginalName = "original_name"
)

// ConversionRequest is a validated request handed to the producer
type ConversionRequest struct {
	InputRef     string
	OutputFormat Format
	Metadata     map[string]string
}

// Envelope is the unit of work traveling through the pipeline
type Envelope struct {
	JobID        string            `json:"job_id"`
	InputRef     string            `json:"input_ref"`
	OutputFormat Format            `json:"output_format"`
	Attempts     int               `json:"attempts"`
	SubmittedAt  time.Time         `json:"submitted_at"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastError    string            `json:"last_error,omitempty"`
}

// WithFailure returns a copy with attempts incremented and the failure recorded.
// The receiver is left untouched.
func (e Envelope) WithFailure(cause error) Envelope {
	next := e
	next.Metadata = maps.Clone(e.Metadata)
	next.Attempts = e.Attempts + 1
	if cause != nil {
		next.LastError = cause.Error()
	}
	return next
}

// Validate checks the fields every envelope must carry
func (e Envelope) Validate() error {
	if _, err := uuid.Parse(e.JobID); err != nil {
		return fmt.Errorf("%w: job_id %q is not a UUID", ErrInvalidEnvelope, e.JobID)
	}
	if e.InputRef == "" {
		return fmt.Errorf("%w: input_ref is required", ErrInvalidEnvelope)
	}
	if _, err := ParseFormat(string(e.OutputFormat)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if e.Attempts < 0 {
		return fmt.Errorf("%w: negative attempts", ErrInvalidEnvelope)
	}
	return nil
}

// Marshal encodes the envelope as a message body
func (e Envelope) Marshal() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return body, nil
}

// DecodeEnvelope parses and validates a message body
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
