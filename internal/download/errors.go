package download

import (
	"errors"
	"fmt"

	"voxkey/internal/registry"
)

// errTooSmall marks a response body at or below the size floor.
var errTooSmall = errors.New("file below minimum size")

// TransferError reports a failed or rejected transfer of one manifest entry.
type TransferError struct {
	Ref registry.FileRef
	URL string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s: %v", e.Ref, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// IsTransfer reports whether err is or wraps a TransferError.
func IsTransfer(err error) bool {
	var te *TransferError
	return errors.As(err, &te)
}

// IsTooSmall reports whether a transfer was rejected by the size floor.
func IsTooSmall(err error) bool { return errors.Is(err, errTooSmall) }

// BackendInitError carries an error raised by the package backend. Its
// message is the backend's own.
type BackendInitError struct {
	ModelID string
	Err     error
}

func (e *BackendInitError) Error() string { return e.Err.Error() }

func (e *BackendInitError) Unwrap() error { return e.Err }

// IsBackendInit reports whether err is or wraps a BackendInitError.
func IsBackendInit(err error) bool {
	var be *BackendInitError
	return errors.As(err, &be)
}

// StorageError reports that the storage root or a model directory could
// not be created or written.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorage reports whether err is or wraps a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
