package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Code is a stable error code surfaced in logs and by validate-config.
type Code string

const (
	// CodeConfigInvalid marks structural or semantic configuration errors.
	CodeConfigInvalid Code = "CONFIG_INVALID"
	// CodeDeviceUnavailable marks a device that disappeared or failed to open;
	// retried with backoff.
	CodeDeviceUnavailable Code = "DEVICE_UNAVAILABLE"
	// CodeDevicePermissionDenied marks missing permissions on a device node.
	CodeDevicePermissionDenied Code = "DEVICE_PERMISSION_DENIED"
	// CodeOutputConflict marks two mappings authoring the same output control
	// or the same force-feedback sink.
	CodeOutputConflict Code = "OUTPUT_CONFLICT"
	// CodeOverrun marks a missed tick budget; counted, never fatal.
	CodeOverrun Code = "OVERRUN"
	// CodeInternalInvariant marks a broken internal invariant; aborts.
	CodeInternalInvariant Code = "INTERNAL_INVARIANT_VIOLATED"
)

// Standard error variables for common conditions
var (
	// Component lifecycle errors
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrAlreadyStopped = errors.New("component already stopped")
	ErrShuttingDown   = errors.New("component is shutting down")

	// Device errors
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrDeviceGone        = errors.New("device disappeared")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrNoMatchingDevice  = errors.New("no device matches pattern")

	// Configuration errors
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrMissingConfig  = errors.New("missing required configuration")
	ErrConfigNotFound = errors.New("configuration file not found")
	ErrOutputConflict = errors.New("output control claimed by multiple mappings")

	// Engine errors
	ErrQueueFull         = errors.New("event queue full")
	ErrTickOverrun       = errors.New("tick budget exceeded")
	ErrInvariantViolated = errors.New("internal invariant violated")

	// Retry errors
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

// ClassifiedError wraps an error with its classification and stable code
type ClassifiedError struct {
	Class     ErrorClass
	Code      Code
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// CodeOf extracts the stable code from an error, or "" when unclassified.
func CodeOf(err error) Code {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	switch {
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrMissingConfig):
		return CodeConfigInvalid
	case errors.Is(err, ErrOutputConflict):
		return CodeOutputConflict
	case errors.Is(err, ErrPermissionDenied):
		return CodeDevicePermissionDenied
	case errors.Is(err, ErrDeviceUnavailable), errors.Is(err, ErrDeviceGone):
		return CodeDeviceUnavailable
	case errors.Is(err, ErrTickOverrun):
		return CodeOverrun
	case errors.Is(err, ErrInvariantViolated):
		return CodeInternalInvariant
	}
	return ""
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, ErrDeviceUnavailable) ||
		errors.Is(err, ErrDeviceGone) ||
		errors.Is(err, ErrQueueFull) ||
		errors.Is(err, ErrTickOverrun) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Check error message for common transient patterns
	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"temporarily",
		"unavailable",
		"busy",
		"no such device",
		"resource busy",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return errors.Is(err, ErrInvariantViolated) ||
		errors.Is(err, ErrPermissionDenied)
}

// IsInvalid checks if an error is due to invalid input or configuration
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, ErrOutputConflict)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}

	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}

	// Default to transient for unknown errors to allow retry
	return ErrorTransient
}

func newClassified(class ErrorClass, code Code, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Code:      code,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, CodeDeviceUnavailable, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, CodeInternalInvariant, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, CodeConfigInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// WrapCode wraps an error with an explicit class and code
func WrapCode(err error, class ErrorClass, code Code, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(class, code, wrappedErr, component, method, wrappedErr.Error())
}
