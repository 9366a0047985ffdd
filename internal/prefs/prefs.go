// Package prefs is a small durable key-value store for user preferences
// such as the selected local model.
package prefs

import (
	"fmt"

	"github.com/rs/zerolog"
)

// SelectedModelKey holds the id of the currently selected local model.
const SelectedModelKey = "selectedLocalModelId"

// Store is a durable string key-value store. Implementations are safe for
// concurrent use.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	// Delete removes key; deleting a missing key is not an error.
	Delete(key string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

// Open returns the store for the named backend rooted at path.
// For the file backend path is a JSON file; for badger it is a directory.
func Open(backend, path string, log zerolog.Logger) (Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(path), nil
	case BackendBadger:
		return OpenBadger(BadgerConfig{Path: path, SyncWrites: true, Logger: &log})
	default:
		return nil, fmt.Errorf("unknown prefs backend %q", backend)
	}
}
