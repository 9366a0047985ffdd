package manager

import (
	"context"
	"testing"

	"voxkey/internal/download"
	"voxkey/internal/registry"
)

func TestBroadcaster_FanOutAndDrop(t *testing.T) {
	b := NewBroadcaster()
	fast, cancelFast := b.Subscribe(8)
	defer cancelFast()
	slow, cancelSlow := b.Subscribe(1)
	for i := 0; i < 3; i++ {
		b.Publish(Event{Name: EventDownloadProgress, ModelID: "m"})
	}
	if len(fast) != 3 {
		t.Fatalf("fast subscriber got %d events", len(fast))
	}
	if len(slow) != 1 || b.Dropped() != 2 {
		t.Fatalf("slow=%d dropped=%d", len(slow), b.Dropped())
	}
	cancelSlow()
	cancelSlow()
	if b.Subscribers() != 1 {
		t.Fatalf("subscribers=%d", b.Subscribers())
	}
	for range slow {
	}
}

func TestEventPublisher_DownloadLifecycle(t *testing.T) {
	d := gridModel("m", 1, 1)
	h := newHarness(t, []registry.Descriptor{d}, nil)
	b := NewBroadcaster()
	ch, unsubscribe := b.Subscribe(64)
	defer unsubscribe()
	mem := NewMemoryPublisher()
	h.m.SetEventPublisher(Publishers{mem, b})
	h.fs.fn = func(ctx context.Context, desc registry.Descriptor, sink download.Sink) error {
		sink.Progress(0.5)
		fillModel(t, h.oracle, desc)
		return nil
	}
	if err := h.m.Download("m"); err != nil {
		t.Fatalf("download: %v", err)
	}
	waitPhase(t, h.m, "m", PhaseSucceeded)
	want := map[string]bool{
		EventDownloadStart:     false,
		EventDownloadProgress:  false,
		EventDownloadSucceeded: false,
		EventReadinessChanged:  false,
	}
	for _, e := range mem.Events() {
		if _, ok := want[e.Name]; ok {
			want[e.Name] = true
		}
	}
	for k, v := range want {
		if !v {
			t.Fatalf("expected event %q to be published; got events: %+v", k, mem.Events())
		}
	}
	if len(ch) != len(mem.Events()) {
		t.Fatalf("broadcaster saw %d events, memory %d", len(ch), len(mem.Events()))
	}
}
