package errors

import (
	"errors"
	"fmt"
)

// Category classifies error types for targeted handling and monitoring.
type Category string

const (
	CategoryInvalidArgument Category = "invalid_argument"
	CategoryDecode          Category = "decode"
	CategoryEncode          Category = "encode"
	CategoryGeometry        Category = "unsupported_geometry"
	CategoryPipeline        Category = "pipeline"
	CategoryStorage         Category = "storage"
	CategoryConfig          Category = "config"
	CategoryTransient       Category = "transient"
	CategoryInput           Category = "input"
)

// ProcessingError is the structured error type used throughout the module.
type ProcessingError struct {
	Category  Category
	Op        string // stage or operation name
	Value     any    // offending value, when there is one
	Err       error
	Retryable bool
}

func (e *ProcessingError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("[%s] %s (%v): %v", e.Category, e.Op, e.Value, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// New creates a non-retryable ProcessingError.
func New(category Category, op string, err error) *ProcessingError {
	return &ProcessingError{Category: category, Op: op, Err: err}
}

// InvalidArgument reports a malformed request. Never retried.
func InvalidArgument(op string, value any, err error) *ProcessingError {
	return &ProcessingError{Category: CategoryInvalidArgument, Op: op, Value: value, Err: err}
}

// Geometry reports a transform that cannot be performed on the given source.
func Geometry(op string, value any, err error) *ProcessingError {
	return &ProcessingError{Category: CategoryGeometry, Op: op, Value: value, Err: err}
}

// Transient creates a retryable ProcessingError.
func Transient(op string, err error) *ProcessingError {
	return &ProcessingError{Category: CategoryTransient, Op: op, Err: err, Retryable: true}
}

// Wrap wraps an existing error with context. An error that already carries a
// category keeps it.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return err
	}
	return New(category, op, err)
}

// IsRetryable reports whether err represents a transient failure.
func IsRetryable(err error) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Category == cat
	}
	return false
}

// CategoryOf returns the category of err, or "" for foreign errors.
func CategoryOf(err error) Category {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// Sentinel errors for common failure modes.
var (
	ErrInvalidAngle       = errors.New("rotation angle must be one of 0, 90, 180, 270")
	ErrMissingDimensions  = errors.New("resize target needs a width or a height")
	ErrNegativeDimension  = errors.New("resize dimension must not be negative")
	ErrUnknownFit         = errors.New("unknown fit policy")
	ErrInvalidOrientation = errors.New("orientation must be between 1 and 8")
	ErrZeroSize           = errors.New("transform yields a zero-sized image")
	ErrBufferSize         = errors.New("pixel buffer length does not match geometry")
	ErrUnsupportedLayout  = errors.New("unsupported channel layout")
	ErrStateOrder         = errors.New("pipeline state transition out of order")
	ErrAlreadyTaken       = errors.New("pipeline result already taken")
	ErrUnsupportedFormat  = errors.New("unsupported image format")
	ErrInvalidDimensions  = errors.New("invalid dimensions")
	ErrEmptyInput         = errors.New("empty input")
	ErrWorkerPoolFull     = errors.New("worker pool queue full")
	ErrStorageUnavailable = errors.New("storage unavailable")
)
