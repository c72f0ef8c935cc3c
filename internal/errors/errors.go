package errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	Is     = errors.Is
	As     = errors.As
	New    = errors.New
	Unwrap = errors.Unwrap
)

type ErrorCategory string

const (
	CategoryNetwork  ErrorCategory = "NETWORK"  // Connection issues
	CategoryProtocol ErrorCategory = "PROTOCOL" // Transport-level failures after connect
	CategoryIO       ErrorCategory = "IO"       // Sink open/write/close
	CategoryContext  ErrorCategory = "CONTEXT"  // Context cancellation
	CategoryParse    ErrorCategory = "PARSE"    // Container header could not be read
	CategoryUnknown  ErrorCategory = "UNKNOWN"  // Unclassified errors
)

// Protocol identifiers
type Protocol string

const (
	ProtocolMMS     Protocol = "MMS"
	ProtocolGeneric Protocol = "GENERIC"
)

// DownloadError represents an error that occurred during download operations
type DownloadError struct {
	Err       error         // Original error
	Category  ErrorCategory // General category
	Protocol  Protocol      // Which protocol generated this error
	Retryable bool          // Whether retry is recommended
	Timestamp time.Time     // When the error occurred
	Resource  string        // What resource was being accessed
	Details   map[string]interface{}
}

// Error implements the error interface
func (e *DownloadError) Error() string {
	if e.Protocol == ProtocolGeneric {
		return fmt.Sprintf("[%s] %s: %v", e.Category, e.Resource, e.Err)
	}

	return fmt.Sprintf("[%s:%s] %s: %v", e.Protocol, e.Category, e.Resource, e.Err)
}

// Unwrap provides the underlying cause for error unwrapping (compatible with errors.As)
func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Common sentinel errors
var (
	ErrUnsupportedProtocol = New("unsupported protocol")
	ErrInvalidURL          = New("invalid URL")
	ErrClosedByRemote      = New("client closed by server")
)

func newError(err error, category ErrorCategory, protocol Protocol, resource string, retryable bool) *DownloadError {
	return &DownloadError{
		Err:       err,
		Category:  category,
		Protocol:  protocol,
		Retryable: retryable,
		Timestamp: time.Now(),
		Resource:  resource,
	}
}

// NewIOError creates an I/O related error
func NewIOError(err error, resource string) *DownloadError {
	return newError(err, CategoryIO, ProtocolGeneric, resource, false)
}

// NewContextError creates a context cancellation error
func NewContextError(err error, resource string) *DownloadError {
	return newError(err, CategoryContext, ProtocolGeneric, resource, false)
}

// NewParseError wraps a container header parse failure. Parse errors are
// never fatal to a session.
func NewParseError(err error, resource string) *DownloadError {
	return newError(err, CategoryParse, ProtocolGeneric, resource, false)
}

// NewMMSError creates an error raised by the MMS transport. Connection
// establishment failures are network errors, everything else is a protocol
// error.
func NewMMSError(err error, resource string, connect bool) *DownloadError {
	if connect {
		return newError(err, CategoryNetwork, ProtocolMMS, resource, true)
	}

	return newError(err, CategoryProtocol, ProtocolMMS, resource, false)
}

// IsRetryable determines if an error should be retried
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var downloadErr *DownloadError
	if As(err, &downloadErr) {
		return downloadErr.Retryable
	}

	return false
}

// IsNetworkError determines if the error is network-related
func IsNetworkError(err error) bool {
	return hasCategory(err, CategoryNetwork)
}

// IsIOError determines if the error is I/O related
func IsIOError(err error) bool {
	return hasCategory(err, CategoryIO)
}

// IsParseError determines if the error came from container parsing
func IsParseError(err error) bool {
	return hasCategory(err, CategoryParse)
}

// IsProtocolError determines if the error is protocol-specific
func IsProtocolError(err error, protocol Protocol) bool {
	var downloadErr *DownloadError
	return As(err, &downloadErr) && downloadErr.Protocol == protocol
}

// CategoryOf returns the category of err, or CategoryUnknown.
func CategoryOf(err error) ErrorCategory {
	var downloadErr *DownloadError
	if As(err, &downloadErr) {
		return downloadErr.Category
	}

	return CategoryUnknown
}

func hasCategory(err error, c ErrorCategory) bool {
	var downloadErr *DownloadError
	return As(err, &downloadErr) && downloadErr.Category == c
}

// WithDetails adds additional context to a DownloadError
func WithDetails(err error, details map[string]interface{}) error {
	var downloadErr *DownloadError
	if !As(err, &downloadErr) {
		return err
	}

	if downloadErr.Details == nil {
		downloadErr.Details = make(map[string]interface{})
	}

	for k, v := range details {
		downloadErr.Details[k] = v
	}

	return downloadErr
}
