package manager

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"voxkey/internal/download"
	"voxkey/internal/readiness"
	"voxkey/internal/registry"
)

type Manager struct {
	catalog             []registry.Descriptor
	oracle              *readiness.Oracle
	downloaders         map[registry.Kind]download.Downloader
	releaser            CacheReleaser
	prefs               SelectionStore
	pub                 EventPublisher
	allowUnreadyPackage bool
	log                 zerolog.Logger

	baseCtx   context.Context
	stop      context.CancelFunc
	ops       chan func()
	quit      chan struct{}
	loopDone  chan struct{}
	workers   sync.WaitGroup
	closeOnce sync.Once

	// Owned by the loop goroutine.
	states   map[string]*DownloadState
	sessions map[string]*session
	deleting map[string]bool
	ready    map[string]bool
	selected string
	lastErr  string
	closing  bool
}

// New constructs a Manager over catalog with default policy and no
// persistence; tests and tools use it.
func New(catalog []registry.Descriptor, oracle *readiness.Oracle, downloaders map[registry.Kind]download.Downloader) *Manager {
	return NewWithConfig(ManagerConfig{
		Catalog:             catalog,
		Oracle:              oracle,
		Downloaders:         downloaders,
		AllowUnreadyPackage: true,
	})
}

func (m *Manager) loop() {
	defer close(m.loopDone)
	for {
		select {
		case fn := <-m.ops:
			fn()
		case <-m.quit:
			return
		}
	}
}

// do runs fn on the owner loop and waits for it to finish.
func (m *Manager) do(fn func()) error {
	done := make(chan struct{})
	select {
	case m.ops <- func() { fn(); close(done) }:
	case <-m.quit:
		return ErrClosed
	}
	<-done
	return nil
}

// post queues fn on the owner loop without waiting for it to run.
func (m *Manager) post(fn func()) {
	select {
	case m.ops <- fn:
	case <-m.quit:
	}
}

// SetEventPublisher replaces the event publisher.
func (m *Manager) SetEventPublisher(p EventPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	_ = m.do(func() { m.pub = p })
}

func (m *Manager) publish(name, modelID string, fields map[string]any) {
	m.pub.Publish(Event{Name: name, ModelID: modelID, Fields: fields})
}

// ListModels returns the catalog in order. The slice is a copy.
func (m *Manager) ListModels() []registry.Descriptor {
	out := make([]registry.Descriptor, len(m.catalog))
	copy(out, m.catalog)
	return out
}

// Model returns the descriptor for id.
func (m *Manager) Model(id string) (registry.Descriptor, bool) {
	return registry.Find(m.catalog, id)
}

// IsReady reports whether model id is fully present and usable now.
func (m *Manager) IsReady(id string) bool {
	d, ok := m.Model(id)
	return ok && m.oracle.IsReady(d)
}

// Ready reports whether a model is selected and ready.
func (m *Manager) Ready() bool {
	id := m.SelectedID()
	return id != "" && m.IsReady(id)
}

// State returns the download state of id, Idle if it was never touched.
func (m *Manager) State(id string) (DownloadState, error) {
	if _, ok := m.Model(id); !ok {
		return DownloadState{}, ErrModelNotFound(id)
	}
	var st DownloadState
	if err := m.do(func() { st = *m.stateOf(id) }); err != nil {
		return DownloadState{}, err
	}
	return st, nil
}

// stateOf returns the live state slot of id, creating it Idle. Loop only.
func (m *Manager) stateOf(id string) *DownloadState {
	st, ok := m.states[id]
	if !ok {
		st = &DownloadState{Phase: PhaseIdle}
		m.states[id] = st
	}
	return st
}

// transition moves id to phase `to` if the state machine permits it. Loop only.
func (m *Manager) transition(id string, to Phase) bool {
	st := m.stateOf(id)
	if !validTransition(st.Phase, to) {
		m.log.Debug().Str("model", id).Str("from", string(st.Phase)).Str("to", string(to)).Msg("transition rejected")
		return false
	}
	st.Phase = to
	return true
}

// Close cancels in-flight downloads, waits for their workers and stops the
// owner loop. It is safe to call more than once.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		_ = m.do(func() {
			m.closing = true
			m.stop()
		})
		m.workers.Wait()
		close(m.quit)
		<-m.loopDone
	})
	return nil
}
