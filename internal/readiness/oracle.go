// Package readiness answers whether a local model is fully present and
// usable right now. Answers are derived from disk on every call so they
// survive restarts and external changes.
package readiness

import (
	"path/filepath"

	"voxkey/internal/common/fsutil"
	"voxkey/internal/registry"
)

// DefaultMinFileBytes is the size floor below which a downloaded file is
// treated as a truncated or error-page artefact.
const DefaultMinFileBytes = 100

// modelsDirName is the directory under the storage root holding file-set models.
const modelsDirName = "Models"

// PackageState exposes the self-managing backend's own persisted
// "models downloaded" signal.
type PackageState interface {
	ModelsPresent(modelID string) bool
}

// Oracle checks readiness for every backend kind. It holds no cache.
type Oracle struct {
	root     string
	minBytes int64
	pkg      PackageState
}

// New returns an Oracle for file-set models stored under storageRoot.
// pkg may be nil, in which case package models are never ready.
func New(storageRoot string, minBytes int64, pkg PackageState) *Oracle {
	if minBytes < 0 {
		minBytes = DefaultMinFileBytes
	}
	return &Oracle{root: storageRoot, minBytes: minBytes, pkg: pkg}
}

// MinFileBytes returns the configured size floor.
func (o *Oracle) MinFileBytes() int64 { return o.minBytes }

// ModelsRoot is the directory containing one sub-directory per file-set model.
func (o *Oracle) ModelsRoot() string { return filepath.Join(o.root, modelsDirName) }

// ModelDir is the on-disk root of a file-set model.
func (o *Oracle) ModelDir(modelID string) string {
	return filepath.Join(o.ModelsRoot(), modelID)
}

// FilePath is where a manifest entry lives once downloaded.
func (o *Oracle) FilePath(modelID string, ref registry.FileRef) string {
	return filepath.Join(o.ModelDir(modelID), filepath.FromSlash(ref.Bundle), filepath.FromSlash(ref.Path))
}

// IsReady reports whether d is fully present and usable.
func (o *Oracle) IsReady(d registry.Descriptor) bool {
	switch d.Kind {
	case registry.KindFileSet:
		if d.Manifest.Len() == 0 {
			return false
		}
		for _, ref := range d.Manifest.Files() {
			if !o.fileValid(d.ID, ref) {
				return false
			}
		}
		return true
	case registry.KindPackage:
		return o.pkg != nil && o.pkg.ModelsPresent(d.ID)
	default:
		return false
	}
}

// Missing lists the manifest entries of a file-set model that are absent or
// below the size floor. It returns nil for other kinds.
func (o *Oracle) Missing(d registry.Descriptor) []registry.FileRef {
	if d.Kind != registry.KindFileSet {
		return nil
	}
	var out []registry.FileRef
	for _, ref := range d.Manifest.Files() {
		if !o.fileValid(d.ID, ref) {
			out = append(out, ref)
		}
	}
	return out
}

// BundleReady reports whether every file of one bundle is present.
func (o *Oracle) BundleReady(modelID string, b registry.Bundle) bool {
	for _, f := range b.Files {
		if !o.fileValid(modelID, registry.FileRef{Bundle: b.Name, Path: f}) {
			return false
		}
	}
	return true
}

func (o *Oracle) fileValid(modelID string, ref registry.FileRef) bool {
	return fsutil.FileLargerThan(o.FilePath(modelID, ref), o.minBytes)
}
