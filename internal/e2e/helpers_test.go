package e2e

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"voxkey/internal/download"
	"voxkey/internal/httpapi"
	"voxkey/internal/manager"
	"voxkey/internal/prefs"
	"voxkey/internal/readiness"
	"voxkey/internal/registry"
	"voxkey/internal/whisperpkg"
	"voxkey/pkg/types"
)

// testCatalog has one model of each backend kind.
func testCatalog() []registry.Descriptor {
	return []registry.Descriptor{
		{
			ID:   "parakeet",
			Name: "Parakeet",
			Kind: registry.KindFileSet,
			Manifest: registry.Manifest{Bundles: []registry.Bundle{
				{Name: "Encoder.mlmodelc", Files: []string{"model.mil", "weights/weight.bin"}},
				{Name: "Decoder.mlmodelc", Files: []string{"model.mil", "weights/weight.bin"}},
			}},
		},
		{ID: "whisper-tiny", Name: "Whisper Tiny", Kind: registry.KindPackage, PackageFile: "ggml-tiny.bin"},
		{ID: "canary", Name: "Canary", Kind: registry.KindUnsupported},
	}
}

// origin serves model files. While gated, file-set requests block until
// release is called or the client goes away.
type origin struct {
	mu     sync.Mutex
	gate   chan struct{}
	hits   int
	status int
}

func (o *origin) hold() {
	o.mu.Lock()
	o.gate = make(chan struct{})
	o.mu.Unlock()
}

func (o *origin) release() {
	o.mu.Lock()
	if o.gate != nil {
		close(o.gate)
		o.gate = nil
	}
	o.mu.Unlock()
}

func (o *origin) fail(status int) {
	o.mu.Lock()
	o.status = status
	o.mu.Unlock()
}

func (o *origin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	o.hits++
	gate, status := o.gate, o.status
	o.mu.Unlock()
	if status != 0 {
		http.Error(w, "unavailable", status)
		return
	}
	if strings.HasPrefix(r.URL.Path, "/pkg/") {
		var buf bytes.Buffer
		_ = binary.Write(&buf, binary.LittleEndian, uint32(0x67676d6c))
		buf.Write(make([]byte, 1024))
		_, _ = w.Write(buf.Bytes())
		return
	}
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	_, _ = w.Write(bytes.Repeat([]byte("w"), 2048))
}

type stack struct {
	root   string
	origin *origin
	api    *httptest.Server
	m      *manager.Manager
	store  prefs.Store
}

// newStack wires the real manager, downloaders and API against a local origin.
func newStack(t *testing.T) *stack {
	t.Helper()
	root := t.TempDir()
	o := &origin{}
	files := httptest.NewServer(o)
	t.Cleanup(files.Close)
	t.Cleanup(o.release)

	store := prefs.NewFileStore(filepath.Join(root, "prefs.json"))
	backend := whisperpkg.New(whisperpkg.Config{
		BaseURL:  files.URL + "/pkg",
		CacheDir: filepath.Join(root, "PackageCache"),
		Client:   files.Client(),
		Flags:    store,
	})
	oracle := readiness.New(root, readiness.DefaultMinFileBytes, backend)
	events := manager.NewBroadcaster()
	m := manager.NewWithConfig(manager.ManagerConfig{
		Catalog: testCatalog(),
		Oracle:  oracle,
		Downloaders: map[registry.Kind]download.Downloader{
			registry.KindFileSet: download.NewFileSet(download.FileSetConfig{BaseURL: files.URL + "/fs", Oracle: oracle, Client: files.Client(), MaxParallel: 2}),
			registry.KindPackage: download.NewPackage(backend, oracle, download.RampConfig{Interval: 5 * time.Millisecond}, nil),
		},
		Releaser:  backend,
		Prefs:     store,
		Publisher: events,
	})
	if err := m.RestoreSelection(); err != nil {
		t.Fatalf("restore: %v", err)
	}
	api := httptest.NewServer(httpapi.NewMux(&httpapi.ManagerService{M: m, Events: events}))
	t.Cleanup(func() {
		api.Close()
		_ = m.Close()
	})
	return &stack{root: root, origin: o, api: api, m: m, store: store}
}

func (s *stack) do(t *testing.T, method, path string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, s.api.URL+path, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func (s *stack) model(t *testing.T, id string) types.Model {
	t.Helper()
	resp, body := s.do(t, http.MethodGet, "/models/"+id)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /models/%s: %d %s", id, resp.StatusCode, body)
	}
	var m types.Model
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("json: %v", err)
	}
	return m
}

// waitPhase polls the API until id reaches phase.
func (s *stack) waitPhase(t *testing.T, id, phase string) types.Model {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		m := s.model(t, id)
		if m.State.Phase == phase {
			return m
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s never reached %s; last state %+v", id, phase, m.State)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
