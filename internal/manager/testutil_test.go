package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"voxkey/internal/download"
	"voxkey/internal/prefs"
	"voxkey/internal/readiness"
	"voxkey/internal/registry"
)

// gridModel builds a file-set descriptor with bundles x files entries.
func gridModel(id string, bundles, files int) registry.Descriptor {
	d := registry.Descriptor{ID: id, Name: id, Kind: registry.KindFileSet}
	for b := 0; b < bundles; b++ {
		bundle := registry.Bundle{Name: fmt.Sprintf("B%d.mlmodelc", b)}
		for f := 0; f < files-1; f++ {
			bundle.Files = append(bundle.Files, fmt.Sprintf("f%d.bin", f))
		}
		bundle.Files = append(bundle.Files, "weights/weight.bin")
		d.Manifest.Bundles = append(d.Manifest.Bundles, bundle)
	}
	return d
}

func packageModel(id string) registry.Descriptor {
	return registry.Descriptor{ID: id, Name: id, Kind: registry.KindPackage, PackageFile: "ggml-" + id + ".bin"}
}

// fillModel writes every manifest file of d with a valid size.
func fillModel(t *testing.T, o *readiness.Oracle, d registry.Descriptor) {
	t.Helper()
	for _, ref := range d.Manifest.Files() {
		p := o.FilePath(d.ID, ref)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, make([]byte, 128), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

// presentSet is a fake package backend flag store and cache releaser.
type presentSet struct {
	mu       sync.Mutex
	present  map[string]bool
	released []string
	block    chan struct{}
}

func newPresentSet(ids ...string) *presentSet {
	p := &presentSet{present: map[string]bool{}}
	for _, id := range ids {
		p.present[id] = true
	}
	return p
}

func (p *presentSet) ModelsPresent(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.present[id]
}

func (p *presentSet) set(id string, v bool) {
	p.mu.Lock()
	p.present[id] = v
	p.mu.Unlock()
}

func (p *presentSet) ReleaseCache(ctx context.Context, d registry.Descriptor) error {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.present, d.ID)
	p.released = append(p.released, d.ID)
	return nil
}

// fakeDownloader runs fn for every Download call and counts calls.
type fakeDownloader struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, d registry.Descriptor, sink download.Sink) error
}

func (f *fakeDownloader) Download(ctx context.Context, d registry.Descriptor, sink download.Sink) error {
	f.mu.Lock()
	f.calls++
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, d, sink)
}

func (f *fakeDownloader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type harness struct {
	m      *Manager
	oracle *readiness.Oracle
	pkg    *presentSet
	prefs  *prefs.FileStore
	pub    *MemoryPublisher
	fs     *fakeDownloader
	pk     *fakeDownloader
}

type harnessOpt func(*ManagerConfig)

func withStrictPackages() harnessOpt {
	return func(c *ManagerConfig) { c.AllowUnreadyPackage = false }
}

// withPackageBackend replaces the fake package downloader with the real
// one driving b.
func withPackageBackend(b download.PackageBackend) harnessOpt {
	return func(c *ManagerConfig) {
		ramp := download.RampConfig{Interval: 2 * time.Millisecond, Step: 0.1, Ceiling: 0.9}
		c.Downloaders[registry.KindPackage] = download.NewPackage(b, c.Oracle, ramp, nil)
	}
}

// slowBackend acquires by sleeping without watching ctx, then marks the
// model present, like a backend stuck in a blocking load.
type slowBackend struct {
	pkg   *presentSet
	delay time.Duration

	mu       sync.Mutex
	acquires int
	active   int
	overlap  bool
}

func (b *slowBackend) Acquire(ctx context.Context, d registry.Descriptor) error {
	b.mu.Lock()
	b.acquires++
	b.active++
	if b.active > 1 {
		b.overlap = true
	}
	b.mu.Unlock()
	time.Sleep(b.delay)
	b.pkg.set(d.ID, true)
	b.mu.Lock()
	b.active--
	b.mu.Unlock()
	return nil
}

func (b *slowBackend) WarmUp(ctx context.Context, d registry.Descriptor) error { return nil }

func (b *slowBackend) started() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acquires
}

// newHarness builds a manager over catalog with fake downloaders, a real
// oracle in a temp dir and a file-backed preference store.
func newHarness(t *testing.T, catalog []registry.Descriptor, pkg *presentSet, opts ...harnessOpt) *harness {
	t.Helper()
	dir := t.TempDir()
	if pkg == nil {
		pkg = newPresentSet()
	}
	h := &harness{
		oracle: readiness.New(dir, 100, pkg),
		pkg:    pkg,
		prefs:  prefs.NewFileStore(filepath.Join(dir, "prefs.json")),
		pub:    NewMemoryPublisher(),
		fs:     &fakeDownloader{},
		pk:     &fakeDownloader{},
	}
	h.start(t, catalog, opts...)
	return h
}

// start (re)creates the manager over the harness' storage, as after a restart.
func (h *harness) start(t *testing.T, catalog []registry.Descriptor, opts ...harnessOpt) {
	t.Helper()
	cfg := ManagerConfig{
		Catalog: catalog,
		Oracle:  h.oracle,
		Downloaders: map[registry.Kind]download.Downloader{
			registry.KindFileSet: h.fs,
			registry.KindPackage: h.pk,
		},
		Releaser:            h.pkg,
		Prefs:               h.prefs,
		Publisher:           h.pub,
		AllowUnreadyPackage: true,
	}
	for _, o := range opts {
		o(&cfg)
	}
	h.m = NewWithConfig(cfg)
	m := h.m
	t.Cleanup(func() { _ = m.Close() })
}

func (h *harness) persisted(t *testing.T) (string, bool) {
	t.Helper()
	v, ok, err := h.prefs.Get(prefs.SelectedModelKey)
	if err != nil {
		t.Fatalf("prefs get: %v", err)
	}
	return v, ok
}

// waitPhase polls until id reaches phase or fails the test.
func waitPhase(t *testing.T, m *Manager, id string, phase Phase) DownloadState {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		st, err := m.State(id)
		if err != nil {
			t.Fatalf("state: %v", err)
		}
		if st.Phase == phase {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("model %s: want phase %s, have %+v", id, phase, st)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func progressValues(events []Event) []float64 {
	var out []float64
	for _, e := range events {
		if e.Name == EventDownloadProgress {
			out = append(out, e.Fields["progress"].(float64))
		}
	}
	return out
}
