// internal/common/errors/errors.go

// Package errors provides the structured error type shared by triggers, sweeps and the API,
// and its mapping onto Zeebe job failures.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode is a stable, machine readable failure code.
type ErrorCode string

const (
	ErrCodeInputParsingFailed     ErrorCode = "INPUT_PARSING_FAILED"
	ErrCodeValidationFailed       ErrorCode = "VALIDATION_FAILED"
	ErrCodeDocumentNotFound       ErrorCode = "DOCUMENT_NOT_FOUND"
	ErrCodeDatastoreQueryFailed   ErrorCode = "DATASTORE_QUERY_FAILED"
	ErrCodeDatastoreUpdateFailed  ErrorCode = "DATASTORE_UPDATE_FAILED"
	ErrCodeIdempotencyStoreFailed ErrorCode = "IDEMPOTENCY_STORE_FAILED"

	ErrCodePushSendFailed        ErrorCode = "PUSH_SEND_FAILED"
	ErrCodeEmailSendFailed       ErrorCode = "EMAIL_SEND_FAILED"
	ErrCodeDeliveryEnqueueFailed ErrorCode = "DELIVERY_ENQUEUE_FAILED"
	ErrCodeDefinitionMissing     ErrorCode = "NOTIFICATION_DEFINITION_MISSING"

	ErrCodeAuthentication   ErrorCode = "AUTHENTICATION_ERROR"
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrCodeExternalService  ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout          ErrorCode = "TIMEOUT_ERROR"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
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
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata attaches a key to the error and returns it.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError is what gets reported back to the workflow engine for a failed job.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns the job variables set alongside a failure.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

func NewInputParsingError(err error) *StandardError {
	return newError(ErrCodeInputParsingFailed, "Failed to parse job variables", err.Error(), false)
}

func NewValidationError(details string) *StandardError {
	return newError(ErrCodeValidationFailed, "Input validation failed", details, false)
}

// NewDocumentNotFoundError is non-retryable: a missing document will not appear on retry.
func NewDocumentNotFoundError(collection, id string) *StandardError {
	return newError(ErrCodeDocumentNotFound, "Document not found",
		fmt.Sprintf("%s/%s", collection, id), false)
}

func NewDatastoreQueryError(operation string, err error) *StandardError {
	return newError(ErrCodeDatastoreQueryFailed, "Datastore query failed",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), true)
}

func NewDatastoreUpdateError(collection, id string, err error) *StandardError {
	return newError(ErrCodeDatastoreUpdateFailed, "Datastore update failed",
		fmt.Sprintf("%s/%s: %s", collection, id, err.Error()), true)
}

func NewIdempotencyStoreError(err error) *StandardError {
	return newError(ErrCodeIdempotencyStoreFailed, "Idempotency store unavailable", err.Error(), true)
}

func NewPushSendError(err error, retryable bool) *StandardError {
	return newError(ErrCodePushSendFailed, "Push delivery failed", err.Error(), retryable)
}

func NewEmailSendError(err error, retryable bool) *StandardError {
	return newError(ErrCodeEmailSendFailed, "Email delivery failed", err.Error(), retryable)
}

func NewEnqueueError(err error) *StandardError {
	return newError(ErrCodeDeliveryEnqueueFailed, "Failed to enqueue delivery", err.Error(), true)
}

func NewDefinitionMissingError(id string) *StandardError {
	return newError(ErrCodeDefinitionMissing, "Notification definition not found in registry",
		fmt.Sprintf("definition: %s", id), false)
}

func NewAuthenticationError(details string) *StandardError {
	return newError(ErrCodeAuthentication, "Authentication failed", details, false)
}

func NewPermissionDeniedError(details string) *StandardError {
	return newError(ErrCodePermissionDenied, "Permission denied", details, false)
}

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService, fmt.Sprintf("External service '%s' error", service), err.Error(), true)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("Service '%s' timeout", service), err.Error(), true)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// GetRetryCount returns how many Zeebe retries a failure with this code deserves.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatastoreQueryFailed,
		ErrCodeDatastoreUpdateFailed,
		ErrCodeIdempotencyStoreFailed,
		ErrCodeDeliveryEnqueueFailed,
		ErrCodeExternalService:
		return 3

	case ErrCodePushSendFailed,
		ErrCodeEmailSendFailed,
		ErrCodeTimeout:
		return 2

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError for reporting to Zeebe.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandardError unwraps err into a StandardError, wrapping unknown errors as internal.
func AsStandardError(err error) *StandardError {
	if err == nil {
		return nil
	}
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr
	}
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false)
}

// IsRetryable reports whether err is a StandardError marked retryable.
func IsRetryable(err error) bool {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr.Retryable
	}
	return false
}

// GetErrorCategory groups codes for logging and dashboards.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "DATASTORE") || strings.HasPrefix(codeStr, "DOCUMENT"):
		return "DATASTORE"
	case strings.HasPrefix(codeStr, "IDEMPOTENCY"):
		return "IDEMPOTENCY"
	case strings.HasPrefix(codeStr, "PUSH") || strings.HasPrefix(codeStr, "EMAIL") ||
		strings.HasPrefix(codeStr, "DELIVERY") || strings.HasPrefix(codeStr, "NOTIFICATION"):
		return "DELIVERY"
	case strings.Contains(codeStr, "AUTHENTICATION") || strings.Contains(codeStr, "PERMISSION"):
		return "AUTH"
	case strings.Contains(codeStr, "INPUT") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
