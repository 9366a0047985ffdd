package blackbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

const catalogYAML = `
models:
  - id: alpha
    name: Alpha
    kind: fileset
    manifest:
      bundles:
        - name: Encoder.mlmodelc
          files: [model.mil, weights/weight.bin]
  - id: beta
    name: Beta
    kind: unsupported
`

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func projectRootFromThisFile(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// this file: <root>/tests/blackbox/blackbox_test.go
	return filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
}

func buildBinary(t *testing.T) string {
	t.Helper()
	binPath := filepath.Join(t.TempDir(), "voxkeyd")
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/voxkeyd")
	cmd.Dir = projectRootFromThisFile(t)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(out))
	}
	return binPath
}

// writeStorage creates a storage root and catalog; with ready set, alpha's
// files are placed on disk.
func writeStorage(t *testing.T, ready bool) (root, catalog string) {
	t.Helper()
	dir := t.TempDir()
	root = filepath.Join(dir, "store")
	catalog = filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(catalog, []byte(catalogYAML), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	if ready {
		for _, f := range []string{"model.mil", filepath.Join("weights", "weight.bin")} {
			p := filepath.Join(root, "Models", "alpha", "Encoder.mlmodelc", f)
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				t.Fatalf("mkdir: %v", err)
			}
			if err := os.WriteFile(p, make([]byte, 512), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
		}
	}
	return root, catalog
}

func startServer(t *testing.T, bin, root, catalog string) string {
	t.Helper()
	port := findFreePort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	cmd := exec.Command(bin, "serve", "--addr", addr, "--storage-root", root, "--catalog", catalog, "--log-level", "warn")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { _ = cmd.Process.Kill(); _ = cmd.Wait() })
	base := "http://" + addr
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return base
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not become healthy in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func call(t *testing.T, method, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func TestBlackbox_RestoresFirstReadyModel(t *testing.T) {
	bin := buildBinary(t)
	root, catalog := writeStorage(t, true)
	base := startServer(t, bin, root, catalog)

	resp, body := call(t, http.MethodGet, base+"/models")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/models %d %s", resp.StatusCode, string(body))
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("/models content-type=%s", ct)
	}
	var models struct {
		Models []struct {
			ID    string `json:"id"`
			Ready bool   `json:"ready"`
		} `json:"models"`
		Selected string `json:"selected"`
	}
	if err := json.Unmarshal(body, &models); err != nil {
		t.Fatalf("/models json: %v body=%s", err, string(body))
	}
	if len(models.Models) != 2 || !models.Models[0].Ready || models.Selected != "alpha" {
		t.Fatalf("unexpected /models: %s", string(body))
	}
	if resp, body := call(t, http.MethodGet, base+"/readyz"); resp.StatusCode != http.StatusOK {
		t.Fatalf("/readyz %d %s", resp.StatusCode, string(body))
	}
	if _, err := os.Stat(filepath.Join(root, "prefs.json")); err != nil {
		t.Fatalf("selection was not persisted: %v", err)
	}
}

func TestBlackbox_EmptyStorage(t *testing.T) {
	bin := buildBinary(t)
	root, catalog := writeStorage(t, false)
	base := startServer(t, bin, root, catalog)

	if resp, body := call(t, http.MethodGet, base+"/readyz"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("/readyz initial %d %s", resp.StatusCode, string(body))
	}
	if resp, body := call(t, http.MethodPost, base+"/models/beta/download"); resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unsupported download %d %s", resp.StatusCode, string(body))
	}
	if resp, body := call(t, http.MethodGet, base+"/models/missing"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown model %d %s", resp.StatusCode, string(body))
	}
	resp, body := call(t, http.MethodGet, base+"/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/status %d %s", resp.StatusCode, string(body))
	}
	var status struct {
		Selected    string `json:"selected"`
		Downloading int    `json:"downloading"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatalf("/status json: %v", err)
	}
	if status.Selected != "" || status.Downloading != 0 {
		t.Fatalf("unexpected /status: %s", string(body))
	}
}

func TestBlackbox_WatcherNoticesExternalDelete(t *testing.T) {
	bin := buildBinary(t)
	root, catalog := writeStorage(t, true)
	base := startServer(t, bin, root, catalog)

	if err := os.RemoveAll(filepath.Join(root, "Models", "alpha")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, _ := call(t, http.MethodGet, base+"/readyz")
		if resp.StatusCode == http.StatusServiceUnavailable {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("/readyz still %d after external delete", resp.StatusCode)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
