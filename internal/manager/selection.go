package manager

import (
	"voxkey/internal/prefs"
	"voxkey/internal/registry"
)

// selectable applies the selection policy. Loop only.
func (m *Manager) selectable(d registry.Descriptor) bool {
	switch d.Kind {
	case registry.KindFileSet:
		return m.oracle.IsReady(d)
	case registry.KindPackage:
		return m.allowUnreadyPackage || m.oracle.IsReady(d)
	default:
		return false
	}
}

// firstReady returns the first ready model in catalog order, or "".
func (m *Manager) firstReady() string {
	for _, d := range m.catalog {
		if m.oracle.IsReady(d) {
			return d.ID
		}
	}
	return ""
}

// SelectedID returns the selected model id, or "" when none.
func (m *Manager) SelectedID() string {
	var id string
	_ = m.do(func() { id = m.selected })
	return id
}

// SelectedModel returns the selected descriptor, if any.
func (m *Manager) SelectedModel() (registry.Descriptor, bool) {
	id := m.SelectedID()
	if id == "" {
		return registry.Descriptor{}, false
	}
	return m.Model(id)
}

// Select makes id the current model and persists it. It reports whether
// the selection changed: unknown or non-selectable ids are ignored, and
// selecting the current model again is a no-op.
func (m *Manager) Select(id string) (bool, error) {
	d, ok := m.Model(id)
	if !ok {
		return false, nil
	}
	var changed bool
	err := m.do(func() {
		if m.deleting[id] || !m.selectable(d) {
			m.log.Debug().Str("model", id).Msg("selection ignored")
			return
		}
		changed = id != m.selected
		m.setSelected(id)
	})
	return changed, err
}

// RestoreSelection reads the persisted selection once at startup. A
// persisted id that is still selectable is honored; otherwise the first
// ready model is substituted and persisted. With nothing ready the
// selection stays empty and the stored value is left alone.
func (m *Manager) RestoreSelection() error {
	return m.do(func() {
		if m.prefs != nil {
			v, ok, err := m.prefs.Get(prefs.SelectedModelKey)
			if err != nil {
				m.log.Warn().Err(err).Msg("read persisted selection")
			} else if ok {
				if d, found := registry.Find(m.catalog, v); found && m.selectable(d) {
					m.selected = v
					m.log.Info().Str("model", v).Msg("selection restored")
					m.publish(EventSelectionChanged, v, map[string]any{"restored": true})
					return
				}
				m.log.Info().Str("model", v).Msg("persisted selection no longer valid")
			}
		}
		if next := m.firstReady(); next != "" {
			m.setSelected(next)
		}
	})
}

// setSelected updates and persists the selection. Loop only.
func (m *Manager) setSelected(id string) {
	if id == m.selected {
		return
	}
	prev := m.selected
	m.selected = id
	if m.prefs != nil {
		var err error
		if id == "" {
			err = m.prefs.Delete(prefs.SelectedModelKey)
		} else {
			err = m.prefs.Set(prefs.SelectedModelKey, id)
		}
		if err != nil {
			m.log.Error().Err(err).Msg("persist selection")
			m.lastErr = "persist selection: " + err.Error()
		}
	}
	m.log.Info().Str("model", id).Str("previous", prev).Msg("selection changed")
	m.publish(EventSelectionChanged, id, map[string]any{"previous": prev})
}
