// Package manager is the local-model lifecycle orchestrator. It owns the
// per-model download state, the current selection and the dispatch of
// downloads to the backend-specific downloaders. It is structured into
// small files by concern:
//
//   - manager.go: Manager type, owner loop, constructor and getters.
//   - config.go: ManagerConfig and defaults; NewWithConfig applies them.
//   - types.go: Phase, DownloadState, ModelStatus, Snapshot.
//   - errors.go: error types and helpers (IsModelNotFound, IsBusy, IsUnsupported).
//   - download.go: Download, Retry, Cancel and session bookkeeping.
//   - selection.go: Select, RestoreSelection and persistence.
//   - delete.go: Delete and storage release.
//   - status_report.go: Snapshot, Status and Refresh.
//   - events.go, broadcast.go: lifecycle events and fan-out to observers.
//
// All state is owned by one goroutine. Public methods submit closures to it
// and wait; downloader callbacks post closures without waiting. Nothing
// else reads or writes the state maps.
package manager
