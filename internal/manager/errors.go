package manager

import "errors"

// ErrClosed is returned by operations on a closed Manager.
var ErrClosed = errors.New("manager closed")

// ErrModelNotFound returns an error when a requested model id is not present in the catalog.
type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether the error indicates a missing model id.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}

// unsupportedError signals an operation on a model no backend can serve.
type unsupportedError struct{ id string }

func (e unsupportedError) Error() string { return "model not supported on this device: " + e.id }

// IsUnsupported reports whether err was caused by an unsupported model.
func IsUnsupported(err error) bool {
	var e unsupportedError
	return errors.As(err, &e)
}

// busyError signals an operation that conflicts with one in progress
// (e.g. download while the same model is being deleted).
type busyError struct {
	id string
	op string
}

func (e busyError) Error() string { return "model busy (" + e.op + "): " + e.id }

// IsBusy reports whether err indicates a conflicting operation (return 409).
func IsBusy(err error) bool {
	var e busyError
	return errors.As(err, &e)
}
