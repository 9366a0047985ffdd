package types

// Model is the API view of one catalog entry together with its live state.
type Model struct {
	// Stable identifier for the model.
	// example: parakeet-tdt-0.6b-v2
	ID string `json:"id" example:"parakeet-tdt-0.6b-v2"`
	// Human-friendly name.
	// example: Parakeet TDT 0.6B v2
	Name string `json:"name" example:"Parakeet TDT 0.6B v2"`
	Description string `json:"description,omitempty"`
	// Approximate download size shown to users.
	// example: 600 MB
	SizeLabel string `json:"size_label,omitempty" example:"600 MB"`
	// Backend kind: package, fileset or unsupported.
	// example: fileset
	Kind string `json:"kind" example:"fileset"`
	// example: en
	Language string `json:"language,omitempty" example:"en"`
	InfoURL  string `json:"info_url,omitempty"`
	// Whether the model is fully present and usable right now.
	Ready bool `json:"ready"`
	// Whether the model is the current selection.
	Selected bool `json:"selected"`
	// Whether the model may be selected under the current policy.
	Selectable bool `json:"selectable"`
	// Download lifecycle state.
	State DownloadState `json:"state"`
	// Manifest entries not yet valid on disk (file-set models only).
	Missing []string `json:"missing,omitempty"`
}

// DownloadState is the per-model download lifecycle record.
type DownloadState struct {
	// One of idle, downloading, succeeded, failed, cancelled.
	// example: downloading
	Phase string `json:"phase" example:"downloading"`
	// Aggregate progress in [0,1]; 1 only once succeeded.
	// example: 0.42
	Progress float64 `json:"progress" example:"0.42"`
	// Failure detail, present only when failed.
	Error string `json:"error,omitempty"`
}
