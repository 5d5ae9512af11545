// Package errors provides standardized error handling patterns for midimapd components.
//
// # Overview
//
// The errors package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input, non-retryable), and
// Fatal (unrecoverable, stop processing). On top of the class, errors carry a
// stable Code surfaced in logs and by validate-config, so operators and
// scripts never match on message text.
//
// This classification enables intelligent error handling strategies,
// allowing components to make informed decisions about retries, graceful
// degradation, and failure recovery without hardcoded error string matching.
//
// # Error Classification
//
// Errors are automatically classified based on their type or content:
//
//   - Transient: a device that disappeared, a full queue, a missed tick (retry recommended)
//   - Invalid: malformed configuration, conflicting mappings (do not retry)
//   - Fatal: missing uinput, denied permissions, broken invariants (stop processing)
//
// The classification system integrates with Go's standard error handling,
// supporting errors.Is(), errors.As(), and error wrapping chains.
//
// # Stable Codes
//
// Each wrapped error can carry a Code (CONFIG_INVALID, DEVICE_UNAVAILABLE,
// DEVICE_PERMISSION_DENIED, OUTPUT_CONFLICT, OVERRUN,
// INTERNAL_INVARIANT_VIOLATED). CodeOf extracts the code anywhere in the
// chain:
//
//	logger.Error("Configuration rejected", "error", err, "code", errors.CodeOf(err))
//
// # Quick Start
//
// Use standard error variables for common conditions:
//
//	if dev == nil {
//	    return errors.ErrDeviceUnavailable
//	}
//
// Wrap errors with context for debugging:
//
//	if err := dev.Open(path); err != nil {
//	    return errors.Wrap(err, "pointer-input", "Open", "open device")
//	}
//
// Check classification for retry logic:
//
//	if err := operation(); err != nil {
//	    if errors.IsTransient(err) {
//	        // retry via pkg/retry
//	    } else if errors.IsFatal(err) {
//	        log.Fatalf("Unrecoverable error: %v", err)
//	    }
//	}
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// This format enables consistent log parsing and debugging across the
// process. Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Component", "Method", "action")  // For retryable errors
//	errors.WrapInvalid(err, "Component", "Method", "action")    // For validation errors
//	errors.WrapFatal(err, "Component", "Method", "action")      // For unrecoverable errors
//
// The generic Wrap() preserves the original error's classification, and
// WrapCode() attaches an explicit class and stable code:
//
//	errors.Wrap(err, "Component", "Method", "action")
//	errors.WrapCode(err, errors.ErrorInvalid, errors.CodeOutputConflict,
//	    "config", "Resolve", "duplicate output control")
//
// # Standard Error Variables
//
// The package provides pre-defined error variables organized by category:
//
//   - Component lifecycle: ErrAlreadyStarted, ErrNotStarted, ErrAlreadyStopped, ErrShuttingDown
//   - Devices: ErrDeviceUnavailable, ErrDeviceGone, ErrPermissionDenied, ErrNoMatchingDevice
//   - Configuration: ErrInvalidConfig, ErrMissingConfig, ErrConfigNotFound, ErrOutputConflict
//   - Engine: ErrQueueFull, ErrTickOverrun, ErrInvariantViolated
//
// Use these variables instead of creating custom error messages so errors.Is
// checks work across package boundaries.
//
// # Retries
//
// Backoff scheduling lives in pkg/retry, not here. The device adapters drive
// their reopen loops with retry.Do and retry.Reopen; this package only
// answers whether an error is worth retrying:
//
//	err := retry.Do(ctx, retry.Reopen(), func() error {
//	    if err := openDevice(); err != nil {
//	        if !errors.IsTransient(err) {
//	            return retry.NonRetryable(err)
//	        }
//	        return err
//	    }
//	    return nil
//	})
//
// # Integration with errors.As/Is
//
// All error types support standard library error inspection:
//
//	var ce *errors.ClassifiedError
//	if errors.As(err, &ce) {
//	    log.Printf("Component: %s, Class: %s", ce.Component, ce.Class)
//	}
//
//	wrapped := errors.Wrap(errors.ErrDeviceGone, "midi-input", "listen", "read port")
//	if errors.IsTransient(wrapped) {  // true - classification preserved
//	    // Retry logic
//	}
//
// context.DeadlineExceeded is reported transient by IsTransient.
// context.Canceled matches no rule, so IsTransient returns false for it
// and Classify reports it only through its Transient default.
//
// # Thread Safety
//
// All classification and wrapping operations are thread-safe. Error
// variables are immutable and safe for concurrent access.
//
// # Design Philosophy
//
//   - Classification over string matching: errors are classified by type, not content
//   - Wrapping over replacement: preserve original errors, add context via wrapping
//   - Standards over invention: use Go's error handling idioms (Is/As/Unwrap)
//   - Simplicity over completeness: three classes cover the real failure modes
package errors
