package types

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// Catalog entries in catalog order.
	Models []Model `json:"models"`
	// Selected model id, empty when none.
	// example: whisper-base
	Selected string `json:"selected,omitempty" example:"whisper-base"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Selected model id, empty when none.
	Selected string `json:"selected,omitempty"`
	// Whether the selected model is ready.
	Ready bool `json:"ready"`
	// Downloads currently in flight.
	Downloading int `json:"downloading"`
	// Per-model state keyed by model id.
	Models map[string]DownloadState `json:"models"`
	// Last general (non per-model) error, such as an unwritable storage root.
	LastError string `json:"last_error,omitempty"`
	// Storage root holding file-set models.
	StorageRoot string `json:"storage_root,omitempty"`
}

// SelectResponse reports the outcome of POST /models/{id}/select.
type SelectResponse struct {
	// False when the request was ignored by the selection policy.
	Changed bool `json:"changed"`
	// Selected model id after the request.
	Selected string `json:"selected,omitempty"`
}

// Event is one Server-Sent Events payload from GET /events.
type Event struct {
	// example: download_progress
	Name    string         `json:"name" example:"download_progress"`
	ModelID string         `json:"model_id,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: model not found: whisper-tiny
	Error string `json:"error" example:"model not found: whisper-tiny"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}
