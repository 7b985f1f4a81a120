// Package errors provides a structured error system for observefs with error codes, categories, and context.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for observefs operations.
type ErrorCode string

// Error code constants organized by category.
const (
	// Configuration Errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigSave       ErrorCode = "CONFIG_SAVE"

	// Connection Errors
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	ErrCodeNetworkError     ErrorCode = "NETWORK_ERROR"

	// Storage Backend Errors
	ErrCodeObjectNotFound ErrorCode = "OBJECT_NOT_FOUND"
	ErrCodeBucketNotFound ErrorCode = "BUCKET_NOT_FOUND"
	ErrCodeStorageRead    ErrorCode = "STORAGE_READ"
	ErrCodeStorageList    ErrorCode = "STORAGE_LIST"
	ErrCodeAccessDenied   ErrorCode = "ACCESS_DENIED"

	// Filesystem Errors
	ErrCodePathInvalid       ErrorCode = "PATH_INVALID"
	ErrCodeFileNotFound      ErrorCode = "FILE_NOT_FOUND"
	ErrCodeUnsupportedScheme ErrorCode = "PATH_UNSUPPORTED_SCHEME"
	ErrCodeFilesystemExists  ErrorCode = "FILESYSTEM_EXISTS"
	ErrCodeFilesystemUnknown ErrorCode = "FILESYSTEM_UNKNOWN"

	// Operation Errors
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"
	ErrCodeOperationFailed   ErrorCode = "OPERATION_FAILED"

	// Internal System Errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryConnection    ErrorCategory = "connection"
	CategoryStorage       ErrorCategory = "storage"
	CategoryFilesystem    ErrorCategory = "filesystem"
	CategoryOperation     ErrorCategory = "operation"
	CategoryInternal      ErrorCategory = "internal"
)

// ObserveFSError represents a structured error with context and metadata.
type ObserveFSError struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"`
	Timestamp time.Time         `json:"timestamp"`

	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`

	HTTPStatus int `json:"http_status,omitempty"`
}

// Error implements the error interface.
func (e *ObserveFSError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Component != "" {
		if e.Operation != "" {
			msg = fmt.Sprintf("[%s:%s] %s", e.Component, e.Operation, msg)
		} else {
			msg = fmt.Sprintf("[%s] %s", e.Component, msg)
		}
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *ObserveFSError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *ObserveFSError) Is(target error) bool {
	if other, ok := target.(*ObserveFSError); ok {
		return e.Code == other.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *ObserveFSError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("ObserveFSError{%s}", strings.Join(parts, ", "))
}

// NewError creates a new error with default values.
func NewError(code ErrorCode, message string) *ObserveFSError {
	return &ObserveFSError{
		Code:       code,
		Category:   GetCategory(code),
		Message:    message,
		Timestamp:  time.Now(),
		Details:    make(map[string]interface{}),
		Context:    make(map[string]string),
		HTTPStatus: GetDefaultHTTPStatus(code),
	}
}

// Newf creates a new error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *ObserveFSError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID_CONFIG") || strings.HasPrefix(codeStr, "CONFIG_"):
		return CategoryConfiguration
	case strings.HasPrefix(codeStr, "CONNECTION_") || strings.HasPrefix(codeStr, "NETWORK_"):
		return CategoryConnection
	case strings.HasPrefix(codeStr, "OBJECT_") || strings.HasPrefix(codeStr, "BUCKET_") ||
		strings.HasPrefix(codeStr, "STORAGE_") || strings.HasPrefix(codeStr, "ACCESS_"):
		return CategoryStorage
	case strings.HasPrefix(codeStr, "PATH_") || strings.HasPrefix(codeStr, "FILE_") ||
		strings.HasPrefix(codeStr, "FILESYSTEM_"):
		return CategoryFilesystem
	case strings.HasPrefix(codeStr, "OPERATION_"):
		return CategoryOperation
	default:
		return CategoryInternal
	}
}

// GetDefaultHTTPStatus returns the default HTTP status for an error code.
func GetDefaultHTTPStatus(code ErrorCode) int {
	statusMap := map[ErrorCode]int{
		ErrCodeInvalidConfig:     http.StatusBadRequest,
		ErrCodeConfigValidation:  http.StatusBadRequest,
		ErrCodePathInvalid:       http.StatusBadRequest,
		ErrCodeUnsupportedScheme: http.StatusBadRequest,
		ErrCodeAccessDenied:      http.StatusForbidden,
		ErrCodeFileNotFound:      http.StatusNotFound,
		ErrCodeObjectNotFound:    http.StatusNotFound,
		ErrCodeBucketNotFound:    http.StatusNotFound,
		ErrCodeFilesystemUnknown: http.StatusNotFound,
		ErrCodeFilesystemExists:  http.StatusConflict,
		ErrCodeConnectionFailed:  http.StatusBadGateway,
		ErrCodeNetworkError:      http.StatusBadGateway,
		ErrCodeStorageRead:       http.StatusBadGateway,
		ErrCodeStorageList:       http.StatusBadGateway,
	}

	if status, ok := statusMap[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WithContext adds contextual information to an error
func (e *ObserveFSError) WithContext(key, value string) *ObserveFSError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithDetail adds detailed information to an error
func (e *ObserveFSError) WithDetail(key string, value interface{}) *ObserveFSError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *ObserveFSError) WithComponent(component string) *ObserveFSError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *ObserveFSError) WithOperation(operation string) *ObserveFSError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause
func (e *ObserveFSError) WithCause(cause error) *ObserveFSError {
	e.Cause = cause
	return e
}

// CodeOf returns the code of the first ObserveFSError in err's chain, or
// ErrCodeInternalError when there is none.
func CodeOf(err error) ErrorCode {
	var oe *ObserveFSError
	if stderrors.As(err, &oe) {
		return oe.Code
	}
	return ErrCodeInternalError
}

// HTTPStatusOf returns the HTTP status carried by err, or 500.
func HTTPStatusOf(err error) int {
	var oe *ObserveFSError
	if stderrors.As(err, &oe) && oe.HTTPStatus != 0 {
		return oe.HTTPStatus
	}
	return http.StatusInternalServerError
}
