package engine

import (
	"context"
	"time"

	"github.com/NamanBalaji/mmsdl/internal/errors"
)

var (
	// ErrDownloadNotFound is returned when a download cannot be found
	ErrDownloadNotFound = errors.New("download not found")

	// ErrDownloadExists is returned when the same URL is already active
	ErrDownloadExists = errors.New("download already exists")

	// ErrEngineNotRunning is returned when an operation requires the engine to be running
	ErrEngineNotRunning = errors.New("engine is not running")

	// ErrNotResumable is returned when resuming a download that is not stopped
	ErrNotResumable = errors.New("download is not stopped")
)

// NewDownloadError creates a new download error with resource information
func NewDownloadError(err error, resource string) error {
	if err == nil {
		return nil
	}

	// If it's already a DownloadError, just return it
	var downloadErr *errors.DownloadError
	if errors.As(err, &downloadErr) {
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.NewContextError(err, resource)
	}

	return &errors.DownloadError{
		Err:       err,
		Category:  errors.CategoryUnknown,
		Protocol:  errors.ProtocolGeneric,
		Retryable: false,
		Timestamp: time.Now(),
		Resource:  resource,
	}
}
