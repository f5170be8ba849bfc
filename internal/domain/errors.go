package domain

import "errors"

var (
	// ErrQueueUnavailable is returned when the broker cannot be reached at enqueue or init
	ErrQueueUnavailable = errors.New("queue unavailable")

	// ErrConversionFailed is returned by the conversion collaborator when a job could not be converted
	ErrConversionFailed = errors.New("conversion failed")

	// ErrRetryExhausted marks a job that failed on every attempt of the retry schedule
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrStatusPublishFailed is logged and swallowed, never returned to callers of the pipeline
	ErrStatusPublishFailed = errors.New("status publish failed")

	// ErrTopologyConflict is returned when a declaration conflicts with an existing broker object
	ErrTopologyConflict = errors.New("broker topology conflict")

	// ErrUnsupportedFormat is returned for output formats outside the supported set
	ErrUnsupportedFormat = errors.New("unsupported output format")

	// ErrInvalidEnvelope is returned when a delivery body is not a valid job envelope
	ErrInvalidEnvelope = errors.New("invalid job envelope")

	// ErrJobNotFound is returned when no status record exists for a job id
	ErrJobNotFound = errors.New("job not found")

	// ErrNoRetryTier is returned when an attempt index has no matching delay queue
	ErrNoRetryTier = errors.New("no retry tier for attempt")

	// ErrDeliveriesClosed is returned when the broker closes a delivery stream
	ErrDeliveriesClosed = errors.New("delivery stream closed")
)

// ConversionError carries the collaborator's diagnostic message
type ConversionError struct {
	Message string
	Err     error
}

func (e *ConversionError) Error() string {
	if e.Err != nil {
		return "conversion failed: " + e.Message + ": " + e.Err.Error()
	}
	return "conversion failed: " + e.Message
}

// Is lets errors.Is(err, ErrConversionFailed) match any ConversionError
func (e *ConversionError) Is(target error) bool {
	return target == ErrConversionFailed
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// NewConversionError creates a new conversion error
func NewConversionError(message string, err error) error {
	return &ConversionError{Message: message, Err: err}
}
