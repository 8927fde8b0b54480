// Package errors provides standardized error handling for the score
// optimization layer.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrCodeMissingParticipants ErrorCode = "MISSING_PARTICIPANTS"

	ErrCodeCacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"
	ErrCodeCacheWriteFailed ErrorCode = "CACHE_WRITE_FAILED"

	ErrCodeAssetNotFound         ErrorCode = "ASSET_NOT_FOUND"
	ErrCodeAssetValidationFailed ErrorCode = "ASSET_VALIDATION_FAILED"
	ErrCodeCDNTimeout            ErrorCode = "CDN_TIMEOUT"

	ErrCodeCalculationFailed ErrorCode = "CALCULATION_FAILED"
	ErrCodeCalculationTimeout ErrorCode = "CALCULATION_TIMEOUT"
	ErrCodeProfileNotFound   ErrorCode = "PROFILE_NOT_FOUND"

	ErrCodeBatchTooLarge    ErrorCode = "BATCH_TOO_LARGE"
	ErrCodeJobEnqueueFailed ErrorCode = "JOB_ENQUEUE_FAILED"
	ErrCodeJobNotFound      ErrorCode = "JOB_NOT_FOUND"
	ErrCodeQueueFull        ErrorCode = "QUEUE_FULL"

	ErrCodeUnknownProfile ErrorCode = "UNKNOWN_STRATEGY_PROFILE"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewInvalidRequestError creates a non-retryable input validation error.
func NewInvalidRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidRequest,
		Message:   "Optimization request failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingParticipantsError creates a non-retryable error for requests
// lacking participant identifiers.
func NewMissingParticipantsError() *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingParticipants,
		Message:   "Request must carry a participant pair or a participant id list",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheUnavailableError creates a retryable distributed cache error.
func NewCacheUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheUnavailable,
		Message:   "Distributed score cache unreachable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAssetNotFoundError creates a non-retryable asset registry error.
func NewAssetNotFoundError(key string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAssetNotFound,
		Message:   "Static asset not found in registry",
		Details:   fmt.Sprintf("assetKey: %s", key),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAssetValidationFailedError creates a non-retryable asset payload error.
func NewAssetValidationFailedError(key, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAssetValidationFailed,
		Message:   "Static asset payload failed schema validation",
		Details:   fmt.Sprintf("assetKey: %s, %s", key, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCDNTimeoutError creates a non-retryable (falls back to local) CDN error.
func NewCDNTimeoutError(key string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCDNTimeout,
		Message:   "Edge cache fetch exceeded timeout",
		Details:   fmt.Sprintf("assetKey: %s", key),
		Retryable: false, // falls back to the embedded copy, no retry
		Timestamp: time.Now().UTC(),
	}
}

// NewCalculationFailedError creates a retryable calculator error.
func NewCalculationFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCalculationFailed,
		Message:   "Exact compatibility calculation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewProfileNotFoundError creates a non-retryable participant profile error.
func NewProfileNotFoundError(participantID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProfileNotFound,
		Message:   "Participant profile not found",
		Details:   fmt.Sprintf("participantId: %s", participantID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewJobEnqueueFailedError creates a retryable background queue error.
func NewJobEnqueueFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeJobEnqueueFailed,
		Message:   "Failed to enqueue background scoring job",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewJobNotFoundError creates a non-retryable job lookup error.
func NewJobNotFoundError(jobID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeJobNotFound,
		Message:   "Background job not found",
		Details:   fmt.Sprintf("jobId: %s", jobID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueueFullError creates a retryable queue saturation error.
func NewQueueFullError(capacity int) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueueFull,
		Message:   "Background job queue is at capacity",
		Details:   fmt.Sprintf("capacity: %d", capacity),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnknownProfileError creates a non-retryable strategy profile error.
func NewUnknownProfileError(name string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnknownProfile,
		Message:   "Unknown strategy profile",
		Details:   fmt.Sprintf("profile: %s", name),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// GetRetryCount returns the recommended retry count for a code. The
// coordinator itself never retries; callers that resubmit use this as a hint.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeCacheUnavailable,
		ErrCodeCacheWriteFailed,
		ErrCodeCalculationFailed,
		ErrCodeJobEnqueueFailed:
		return 3

	case ErrCodeCalculationTimeout,
		ErrCodeQueueFull:
		return 2

	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "CACHE"):
		return "CACHE"
	case strings.Contains(codeStr, "ASSET") || strings.Contains(codeStr, "CDN"):
		return "ASSETS"
	case strings.Contains(codeStr, "CALCULATION") || strings.Contains(codeStr, "PROFILE"):
		return "CALCULATION"
	case strings.Contains(codeStr, "JOB") || strings.Contains(codeStr, "QUEUE") || strings.Contains(codeStr, "BATCH"):
		return "QUEUE"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "MISSING"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
