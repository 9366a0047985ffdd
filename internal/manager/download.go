package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"voxkey/internal/download"
	"voxkey/internal/registry"
)

// session is one dispatch of a downloader for one model.
type session struct {
	id     uuid.UUID
	cancel context.CancelFunc
	done   chan struct{} // closed when the downloader has returned
}

// Download starts downloading id. It is a no-op when a download is already
// in flight or the model already succeeded and is still on disk.
func (m *Manager) Download(id string) error {
	d, ok := m.Model(id)
	if !ok {
		return ErrModelNotFound(id)
	}
	if d.Kind == registry.KindUnsupported {
		return unsupportedError{id: id}
	}
	var err error
	if doErr := m.do(func() { err = m.startLocked(d) }); doErr != nil {
		return doErr
	}
	return err
}

// Retry clears the recorded error of id and downloads it again. It behaves
// like Download in every other phase.
func (m *Manager) Retry(id string) error {
	d, ok := m.Model(id)
	if !ok {
		return ErrModelNotFound(id)
	}
	if d.Kind == registry.KindUnsupported {
		return unsupportedError{id: id}
	}
	var err error
	doErr := m.do(func() {
		if st := m.stateOf(d.ID); st.Phase != PhaseDownloading {
			st.Err = ""
		}
		err = m.startLocked(d)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

func (m *Manager) startLocked(d registry.Descriptor) error {
	if m.closing {
		return ErrClosed
	}
	if m.deleting[d.ID] {
		return busyError{id: d.ID, op: "delete"}
	}
	st := m.stateOf(d.ID)
	switch st.Phase {
	case PhaseDownloading:
		return nil
	case PhaseSucceeded:
		if m.oracle.IsReady(d) {
			return nil
		}
		// removed from disk behind our back
		m.transition(d.ID, PhaseIdle)
		m.noteReadiness(d, false)
	}
	dl, ok := m.downloaders[d.Kind]
	if !ok {
		return fmt.Errorf("no downloader for backend kind %q", d.Kind)
	}
	if !m.transition(d.ID, PhaseDownloading) {
		return nil
	}
	st.Progress = 0
	st.Err = ""

	ctx, cancel := context.WithCancel(m.baseCtx)
	s := &session{id: uuid.New(), cancel: cancel, done: make(chan struct{})}
	prev := m.sessions[d.ID]
	m.sessions[d.ID] = s
	m.workers.Add(1)
	go m.run(ctx, s, prev, dl, d)

	m.log.Info().Str("model", d.ID).Str("kind", string(d.Kind)).Str("session", s.id.String()).Msg("download started")
	m.publish(EventDownloadStart, d.ID, map[string]any{"session": s.id.String(), "kind": string(d.Kind)})
	return nil
}

// run executes the downloader off the loop. A previous session for the
// same model is drained first so two downloaders never share a directory.
func (m *Manager) run(ctx context.Context, s *session, prev *session, dl download.Downloader, d registry.Descriptor) {
	defer m.workers.Done()
	if prev != nil {
		<-prev.done
	}
	downloadsInFlight.Inc()
	err := dl.Download(ctx, d, sessionSink{m: m, d: d, sid: s.id})
	downloadsInFlight.Dec()
	s.cancel()
	if st, ok := dl.(download.Settler); ok {
		// Download returns on cancel before a package backend stops writing
		<-st.Settled(d.ID)
	}
	close(s.done)
	m.post(func() { m.finish(d, s.id, err) })
}

// sessionSink forwards downloader reports for one session to the loop.
type sessionSink struct {
	m   *Manager
	d   registry.Descriptor
	sid uuid.UUID
}

func (k sessionSink) Progress(frac float64) {
	k.m.post(func() { k.m.onProgress(k.d.ID, k.sid, frac) })
}

func (k sessionSink) Readiness(ready bool) {
	k.m.post(func() {
		if k.m.current(k.d.ID, k.sid) {
			k.m.noteReadiness(k.d, ready)
		}
	})
}

func (m *Manager) current(id string, sid uuid.UUID) bool {
	s, ok := m.sessions[id]
	return ok && s.id == sid
}

func (m *Manager) onProgress(id string, sid uuid.UUID, frac float64) {
	if !m.current(id, sid) {
		return
	}
	st := m.stateOf(id)
	if st.Phase != PhaseDownloading {
		return
	}
	if frac > inFlightCeiling {
		frac = inFlightCeiling
	}
	if frac <= st.Progress {
		return
	}
	st.Progress = frac
	m.publish(EventDownloadProgress, id, map[string]any{"progress": frac})
}

func (m *Manager) finish(d registry.Descriptor, sid uuid.UUID, err error) {
	if !m.current(d.ID, sid) {
		return
	}
	delete(m.sessions, d.ID)
	st := m.stateOf(d.ID)
	if st.Phase != PhaseDownloading {
		// cancelled or reset while the downloader was finishing
		return
	}
	switch {
	case err == nil:
		if !m.oracle.IsReady(d) {
			m.fail(d, errors.New("download finished but model is incomplete on disk"))
			return
		}
		m.transition(d.ID, PhaseSucceeded)
		st.Progress = 1
		downloadsTotal.WithLabelValues(string(d.Kind), "succeeded").Inc()
		m.log.Info().Str("model", d.ID).Msg("download succeeded")
		m.publish(EventDownloadSucceeded, d.ID, nil)
		m.noteReadiness(d, true)
	case errors.Is(err, context.Canceled):
		m.transition(d.ID, PhaseCancelled)
		st.Progress = 0
		downloadsTotal.WithLabelValues(string(d.Kind), "cancelled").Inc()
		m.publish(EventDownloadCancelled, d.ID, nil)
	default:
		m.fail(d, err)
	}
}

func (m *Manager) fail(d registry.Descriptor, err error) {
	st := m.stateOf(d.ID)
	m.transition(d.ID, PhaseFailed)
	st.Err = err.Error()
	downloadsTotal.WithLabelValues(string(d.Kind), "failed").Inc()
	m.log.Warn().Err(err).Str("model", d.ID).Msg("download failed")
	m.publish(EventDownloadFailed, d.ID, map[string]any{"error": st.Err})
	if download.IsStorage(err) {
		m.recordStorageError(d.ID, err)
	}
}

func (m *Manager) recordStorageError(id string, err error) {
	m.lastErr = err.Error()
	m.publish(EventStorageError, id, map[string]any{"error": m.lastErr})
}

// Cancel stops an in-flight download of id. Already placed files stay on
// disk. It is idempotent and a no-op when nothing is in flight.
func (m *Manager) Cancel(id string) error {
	if _, ok := m.Model(id); !ok {
		return ErrModelNotFound(id)
	}
	return m.do(func() { m.cancelLocked(id) })
}

// cancelLocked returns the done channel of the cancelled session, if any.
func (m *Manager) cancelLocked(id string) <-chan struct{} {
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	s.cancel()
	if m.transition(id, PhaseCancelled) {
		m.stateOf(id).Progress = 0
		kind := ""
		if d, ok := m.Model(id); ok {
			kind = string(d.Kind)
		}
		downloadsTotal.WithLabelValues(kind, "cancelled").Inc()
		m.log.Info().Str("model", id).Msg("download cancelled")
		m.publish(EventDownloadCancelled, id, nil)
	}
	return s.done
}
