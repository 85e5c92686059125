package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a chronicle error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrCancelled      ErrorCode = "CANCELLED"       // 499
	ErrConfig         ErrorCode = "CONFIG_ERROR"    // 500
	ErrFile           ErrorCode = "FILE_ERROR"      // 500
	ErrInternal       ErrorCode = "INTERNAL"        // 500
	ErrAPI            ErrorCode = "API_ERROR"       // 502
)

// ChronicleError represents a structured error with code, status, and details.
type ChronicleError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *ChronicleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *ChronicleError {
	return &ChronicleError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing note, folder, or run.
func NewNotFound(identifier string) *ChronicleError {
	return &ChronicleError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewCancelled creates a 499 error for a context-cancelled operation.
func NewCancelled(op string) *ChronicleError {
	return &ChronicleError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("operation cancelled: %s", op),
	}
}

// NewConfig creates a 500 error for configuration problems (missing API key).
func NewConfig(msg string) *ChronicleError {
	return &ChronicleError{
		Code:    ErrConfig,
		Status:  500,
		Message: msg,
	}
}

// NewFile creates a 500 error for file I/O failures under the vault.
func NewFile(path string, err error) *ChronicleError {
	msg := "file error"
	if err != nil {
		msg = err.Error()
	}
	return &ChronicleError{
		Code:    ErrFile,
		Status:  500,
		Message: msg,
		Details: map[string]any{"path": path},
	}
}

// NewAPI creates a 502 error for upstream generation-API failures.
// upstreamStatus is the HTTP status reported by the API, or 0 for
// transport-level failures (timeout, connection refused).
func NewAPI(upstreamStatus int, msg string) *ChronicleError {
	details := map[string]any{}
	if upstreamStatus > 0 {
		details["upstream_status"] = upstreamStatus
	}
	return &ChronicleError{
		Code:    ErrAPI,
		Status:  502,
		Message: msg,
		Details: details,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message is generic; the original error text is kept in Details for logging.
func NewInternal(err error) *ChronicleError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &ChronicleError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// Is checks if an error (possibly wrapped) is a ChronicleError with the given code.
func Is(err error, code ErrorCode) bool {
	var cErr *ChronicleError
	if stderrors.As(err, &cErr) {
		return cErr.Code == code
	}
	return false
}
