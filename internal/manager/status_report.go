package manager

import (
	"voxkey/internal/registry"
	"voxkey/pkg/types"
)

// noteReadiness publishes readiness_changed when the readiness of d differs
// from the last observed value. Loop only.
func (m *Manager) noteReadiness(d registry.Descriptor, ready bool) {
	if m.ready[d.ID] == ready {
		return
	}
	m.ready[d.ID] = ready
	m.publish(EventReadinessChanged, d.ID, map[string]any{"ready": ready})
}

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	var s Snapshot
	_ = m.do(func() {
		s.Selected = m.selected
		s.LastError = m.lastErr
		s.Models = make([]ModelStatus, 0, len(m.catalog))
		for _, d := range m.catalog {
			s.Models = append(s.Models, m.statusLocked(d))
		}
	})
	return s
}

// ModelStatus returns the live status of one model.
func (m *Manager) ModelStatus(id string) (ModelStatus, error) {
	d, ok := m.Model(id)
	if !ok {
		return ModelStatus{}, ErrModelNotFound(id)
	}
	var ms ModelStatus
	if err := m.do(func() { ms = m.statusLocked(d) }); err != nil {
		return ModelStatus{}, err
	}
	return ms, nil
}

func (m *Manager) statusLocked(d registry.Descriptor) ModelStatus {
	st, ok := m.states[d.ID]
	state := DownloadState{Phase: PhaseIdle}
	if ok {
		state = *st
	}
	return ModelStatus{
		Descriptor: d,
		Ready:      m.oracle.IsReady(d),
		Selected:   m.selected == d.ID,
		Selectable: m.selectable(d),
		State:      state,
		Missing:    m.oracle.Missing(d),
	}
}

// Status builds the response for /status.
func (m *Manager) Status() types.StatusResponse {
	snap := m.Snapshot()
	resp := types.StatusResponse{
		Selected:    snap.Selected,
		LastError:   snap.LastError,
		Models:      make(map[string]types.DownloadState, len(snap.Models)),
		StorageRoot: m.oracle.ModelsRoot(),
	}
	for _, ms := range snap.Models {
		if ms.Selected {
			resp.Ready = ms.Ready
		}
		if ms.State.Phase == PhaseDownloading {
			resp.Downloading++
		}
		resp.Models[ms.Descriptor.ID] = ms.State.View()
	}
	return resp
}

// View converts the state to its wire form.
func (s DownloadState) View() types.DownloadState {
	return types.DownloadState{Phase: string(s.Phase), Progress: s.Progress, Error: s.Err}
}

// View converts the status to its wire form.
func (ms ModelStatus) View() types.Model {
	d := ms.Descriptor
	out := types.Model{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		SizeLabel:   d.SizeLabel,
		Kind:        string(d.Kind),
		Language:    d.Language,
		InfoURL:     d.InfoURL,
		Ready:       ms.Ready,
		Selected:    ms.Selected,
		Selectable:  ms.Selectable,
		State:       ms.State.View(),
	}
	for _, ref := range ms.Missing {
		out.Missing = append(out.Missing, ref.String())
	}
	return out
}

// Refresh re-derives readiness from storage after an external change. A
// succeeded model whose files disappeared returns to Idle, and a selected
// model that is no longer selectable is replaced by the first ready one.
func (m *Manager) Refresh() error {
	return m.do(func() {
		for _, d := range m.catalog {
			ready := m.oracle.IsReady(d)
			st := m.stateOf(d.ID)
			if !ready && st.Phase == PhaseSucceeded && m.transition(d.ID, PhaseIdle) {
				st.Progress = 0
				m.log.Info().Str("model", d.ID).Msg("model removed externally")
			}
			m.noteReadiness(d, ready)
		}
		if m.selected == "" {
			return
		}
		if d, ok := registry.Find(m.catalog, m.selected); !ok || (!m.deleting[d.ID] && !m.selectable(d)) {
			m.setSelected(m.firstReady())
		}
	})
}
