package manager

import (
	"context"
	"errors"
	"os"

	"voxkey/internal/download"
	"voxkey/internal/registry"
)

// Delete removes a model's storage. An in-flight download of the same
// model is cancelled and drained first. If the model was selected, the
// first ready model (or none) becomes the selection and is persisted.
func (m *Manager) Delete(ctx context.Context, id string) error {
	d, ok := m.Model(id)
	if !ok {
		return ErrModelNotFound(id)
	}
	if d.Kind == registry.KindUnsupported {
		return unsupportedError{id: id}
	}
	var (
		wait <-chan struct{}
		err  error
	)
	if doErr := m.do(func() {
		if m.deleting[id] {
			err = busyError{id: id, op: "delete"}
			return
		}
		m.deleting[id] = true
		wait = m.cancelLocked(id)
	}); doErr != nil {
		return doErr
	}
	if err != nil {
		return err
	}

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			_ = m.do(func() { delete(m.deleting, id) })
			return ctx.Err()
		}
	}

	removeErr := m.removeStorage(ctx, d)
	if doErr := m.do(func() {
		delete(m.deleting, id)
		if removeErr != nil {
			m.log.Error().Err(removeErr).Str("model", id).Msg("delete failed")
			if download.IsStorage(removeErr) {
				m.recordStorageError(id, removeErr)
			}
			return
		}
		st := m.stateOf(id)
		if st.Phase != PhaseIdle && m.transition(id, PhaseIdle) {
			st.Progress = 0
			st.Err = ""
		}
		m.log.Info().Str("model", id).Msg("model deleted")
		m.publish(EventModelDeleted, id, nil)
		m.noteReadiness(d, m.oracle.IsReady(d))
		if m.selected == id {
			m.setSelected(m.firstReady())
		}
	}); doErr != nil {
		return doErr
	}
	return removeErr
}

func (m *Manager) removeStorage(ctx context.Context, d registry.Descriptor) error {
	switch d.Kind {
	case registry.KindFileSet:
		dir := m.oracle.ModelDir(d.ID)
		if err := os.RemoveAll(dir); err != nil {
			return &download.StorageError{Path: dir, Err: err}
		}
		return nil
	case registry.KindPackage:
		if m.releaser == nil {
			return errors.New("package backend has no cache release routine")
		}
		return m.releaser.ReleaseCache(ctx, d)
	}
	return unsupportedError{id: d.ID}
}
