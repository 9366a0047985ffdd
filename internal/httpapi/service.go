package httpapi

import (
	"context"
	"sync"

	"voxkey/internal/manager"
	"voxkey/pkg/types"
)

// subscriberBuffer is the per-stream event buffer; slower clients miss events.
const subscriberBuffer = 256

// ManagerService adapts a manager.Manager and its event Broadcaster to Service.
type ManagerService struct {
	M      *manager.Manager
	Events *manager.Broadcaster
}

var _ Service = (*ManagerService)(nil)

func (s *ManagerService) ListModels() types.ModelsResponse {
	snap := s.M.Snapshot()
	resp := types.ModelsResponse{Selected: snap.Selected, Models: make([]types.Model, 0, len(snap.Models))}
	for _, ms := range snap.Models {
		resp.Models = append(resp.Models, ms.View())
	}
	return resp
}

func (s *ManagerService) Model(id string) (types.Model, error) {
	ms, err := s.M.ModelStatus(id)
	if err != nil {
		return types.Model{}, err
	}
	return ms.View(), nil
}

func (s *ManagerService) Status() types.StatusResponse { return s.M.Status() }

func (s *ManagerService) Download(id string) error { return s.M.Download(id) }

func (s *ManagerService) Cancel(id string) error { return s.M.Cancel(id) }

func (s *ManagerService) Retry(id string) error { return s.M.Retry(id) }

func (s *ManagerService) Select(id string) (types.SelectResponse, error) {
	if _, ok := s.M.Model(id); !ok {
		return types.SelectResponse{}, manager.ErrModelNotFound(id)
	}
	changed, err := s.M.Select(id)
	if err != nil {
		return types.SelectResponse{}, err
	}
	return types.SelectResponse{Changed: changed, Selected: s.M.SelectedID()}, nil
}

func (s *ManagerService) Delete(ctx context.Context, id string) error { return s.M.Delete(ctx, id) }

func (s *ManagerService) Ready() bool { return s.M.Ready() }

func (s *ManagerService) Subscribe() (<-chan types.Event, func()) {
	in, unsubscribe := s.Events.Subscribe(subscriberBuffer)
	out := make(chan types.Event, subscriberBuffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for ev := range in {
			select {
			case out <- types.Event{Name: ev.Name, ModelID: ev.ModelID, Fields: ev.Fields}:
			case <-done:
			}
		}
	}()
	var once sync.Once
	return out, func() {
		once.Do(func() {
			close(done)
			unsubscribe()
		})
	}
}
