package readiness

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"voxkey/internal/registry"
)

type fakePackageState map[string]bool

func (f fakePackageState) ModelsPresent(id string) bool { return f[id] }

// gridModel builds a file-set descriptor with bundles x files entries.
func gridModel(id string, bundles, files int) registry.Descriptor {
	d := registry.Descriptor{ID: id, Name: id, Kind: registry.KindFileSet}
	for b := 0; b < bundles; b++ {
		bundle := registry.Bundle{Name: fmt.Sprintf("B%d.mlmodelc", b)}
		for f := 0; f < files; f++ {
			bundle.Files = append(bundle.Files, fmt.Sprintf("f%d.bin", f))
		}
		bundle.Files[files-1] = "weights/weight.bin"
		d.Manifest.Bundles = append(d.Manifest.Bundles, bundle)
	}
	return d
}

func writeRef(t *testing.T, o *Oracle, id string, ref registry.FileRef, size int) {
	t.Helper()
	p := o.FilePath(id, ref)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestFileSet_ReadyOnlyWhenAllPresent(t *testing.T) {
	root := t.TempDir()
	o := New(root, 100, nil)
	d := gridModel("m", 6, 4)
	if o.IsReady(d) {
		t.Fatalf("ready before any file exists")
	}
	refs := d.Manifest.Files()
	if len(refs) != 24 {
		t.Fatalf("expected 24 entries, got %d", len(refs))
	}
	for _, ref := range refs[:23] {
		writeRef(t, o, "m", ref, 128)
	}
	if o.IsReady(d) {
		t.Fatalf("ready with 23 of 24 files")
	}
	if miss := o.Missing(d); len(miss) != 1 || miss[0] != refs[23] {
		t.Fatalf("missing=%v", miss)
	}
	if o.BundleReady("m", d.Manifest.Bundles[5]) {
		t.Fatalf("last bundle reported ready with a file missing")
	}
	if !o.BundleReady("m", d.Manifest.Bundles[0]) {
		t.Fatalf("first bundle should be ready")
	}
	writeRef(t, o, "m", refs[23], 128)
	if !o.IsReady(d) {
		t.Fatalf("not ready after all 24 files written")
	}
	// A new oracle over the same directory agrees: readiness is a function of disk.
	if !New(root, 100, nil).IsReady(d) {
		t.Fatalf("fresh oracle disagrees after restart")
	}
}

func TestFileSet_SizeFloor(t *testing.T) {
	o := New(t.TempDir(), 100, nil)
	d := gridModel("m", 1, 1)
	ref := d.Manifest.Files()[0]
	writeRef(t, o, "m", ref, 50)
	if o.IsReady(d) {
		t.Fatalf("50 byte file passed a 100 byte floor")
	}
	writeRef(t, o, "m", ref, 0)
	if o.IsReady(d) {
		t.Fatalf("empty file passed")
	}
	writeRef(t, o, "m", ref, 101)
	if !o.IsReady(d) {
		t.Fatalf("101 byte file should pass")
	}
}

func TestFileSet_DirectoryAtFilePathIsNotReady(t *testing.T) {
	o := New(t.TempDir(), 0, nil)
	d := gridModel("m", 1, 1)
	if err := os.MkdirAll(o.FilePath("m", d.Manifest.Files()[0]), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if o.IsReady(d) {
		t.Fatalf("directory counted as a file")
	}
}

func TestPackageAndUnsupported(t *testing.T) {
	pkg := fakePackageState{"w": true}
	o := New(t.TempDir(), 100, pkg)
	if !o.IsReady(registry.Descriptor{ID: "w", Kind: registry.KindPackage}) {
		t.Fatalf("package readiness should follow backend flag")
	}
	if o.IsReady(registry.Descriptor{ID: "other", Kind: registry.KindPackage}) {
		t.Fatalf("package without flag reported ready")
	}
	if o.IsReady(registry.Descriptor{ID: "w", Kind: registry.KindUnsupported}) {
		t.Fatalf("unsupported model reported ready")
	}
	if New(t.TempDir(), 100, nil).IsReady(registry.Descriptor{ID: "w", Kind: registry.KindPackage}) {
		t.Fatalf("nil package state must never be ready")
	}
	if o.Missing(registry.Descriptor{ID: "w", Kind: registry.KindPackage}) != nil {
		t.Fatalf("missing is only defined for file-set models")
	}
}

func TestLayout(t *testing.T) {
	o := New("/data", 100, nil)
	got := o.FilePath("parakeet", registry.FileRef{Bundle: "Encoder.mlmodelc", Path: "weights/weight.bin"})
	want := filepath.Join("/data", "Models", "parakeet", "Encoder.mlmodelc", "weights", "weight.bin")
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}
