package manager

import "voxkey/internal/registry"

// Phase is the download lifecycle phase of one model.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDownloading Phase = "downloading"
	PhaseSucceeded   Phase = "succeeded"
	PhaseFailed      Phase = "failed"
	PhaseCancelled   Phase = "cancelled"
)

// DownloadState is the observable download record of one model.
// Progress never decreases while Downloading and is 1 only once Succeeded.
// Err is set only when Failed.
type DownloadState struct {
	Phase    Phase
	Progress float64
	Err      string
}

// validTransition reports whether the state machine permits from -> to.
// Resets to idle happen on delete or when a succeeded model disappears from disk.
func validTransition(from, to Phase) bool {
	switch from {
	case PhaseIdle:
		return to == PhaseDownloading
	case PhaseDownloading:
		return to == PhaseSucceeded || to == PhaseFailed || to == PhaseCancelled
	case PhaseFailed, PhaseCancelled:
		return to == PhaseDownloading || to == PhaseIdle
	case PhaseSucceeded:
		return to == PhaseIdle
	}
	return false
}

// ModelStatus joins a descriptor with its live state.
type ModelStatus struct {
	Descriptor registry.Descriptor
	Ready      bool
	Selected   bool
	Selectable bool
	State      DownloadState
	Missing    []registry.FileRef
}

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	Selected  string
	Models    []ModelStatus
	LastError string
}
