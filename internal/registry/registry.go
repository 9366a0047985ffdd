package registry

import (
	"fmt"
	"strings"
)

// Kind identifies which backend family serves a model.
type Kind string

const (
	// KindPackage models are fetched, cached and loaded by a self-managing
	// backend; the manager only triggers acquisition.
	KindPackage Kind = "package"
	// KindFileSet models are raw multi-file bundles downloaded file by file.
	KindFileSet Kind = "fileset"
	// KindUnsupported models are listed but can never become ready.
	KindUnsupported Kind = "unsupported"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindPackage, KindFileSet, KindUnsupported:
		return true
	}
	return false
}

// Bundle is one logical unit of a file-set model. It only counts as present
// when every file listed in Files exists.
type Bundle struct {
	Name  string   `json:"name" yaml:"name" toml:"name"`
	Files []string `json:"files" yaml:"files" toml:"files"`
}

// Manifest is the ordered list of bundles required by a file-set model.
type Manifest struct {
	Bundles []Bundle `json:"bundles" yaml:"bundles" toml:"bundles"`
}

// FileRef addresses one required file inside a bundle.
type FileRef struct {
	Bundle string
	Path   string
}

func (r FileRef) String() string { return r.Bundle + "/" + r.Path }

// Files flattens the manifest into (bundle, file) pairs in manifest order.
func (m Manifest) Files() []FileRef {
	var out []FileRef
	for _, b := range m.Bundles {
		for _, f := range b.Files {
			out = append(out, FileRef{Bundle: b.Name, Path: f})
		}
	}
	return out
}

// Len returns the total number of required files.
func (m Manifest) Len() int {
	n := 0
	for _, b := range m.Bundles {
		n += len(b.Files)
	}
	return n
}

// Descriptor is the static description of a local model.
type Descriptor struct {
	ID          string `json:"id" yaml:"id" toml:"id"`
	Name        string `json:"name" yaml:"name" toml:"name"`
	Description string `json:"description,omitempty" yaml:"description" toml:"description"`
	SizeLabel   string `json:"size_label,omitempty" yaml:"size_label" toml:"size_label"`
	Kind        Kind   `json:"kind" yaml:"kind" toml:"kind"`
	Language    string `json:"language,omitempty" yaml:"language" toml:"language"`
	InfoURL     string `json:"info_url,omitempty" yaml:"info_url" toml:"info_url"`
	// PackageFile names the artefact the package backend fetches for this model.
	PackageFile string `json:"package_file,omitempty" yaml:"package_file" toml:"package_file"`
	// Manifest is only set for file-set models.
	Manifest Manifest `json:"manifest,omitempty" yaml:"manifest" toml:"manifest"`
}

// Validate checks a descriptor for structural problems.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("model id is required")
	}
	if strings.ContainsAny(d.ID, `/\`) || d.ID == "." || d.ID == ".." {
		return fmt.Errorf("model %q: id must be a single path segment", d.ID)
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("model %q: unknown kind %q", d.ID, d.Kind)
	}
	switch d.Kind {
	case KindFileSet:
		if d.Manifest.Len() == 0 {
			return fmt.Errorf("model %q: fileset model needs a non-empty manifest", d.ID)
		}
		for _, ref := range d.Manifest.Files() {
			if err := checkRelPath(ref.Bundle); err != nil {
				return fmt.Errorf("model %q: bundle %q: %w", d.ID, ref.Bundle, err)
			}
			if err := checkRelPath(ref.Path); err != nil {
				return fmt.Errorf("model %q: file %q: %w", d.ID, ref.String(), err)
			}
		}
	case KindPackage:
		if strings.TrimSpace(d.PackageFile) == "" {
			return fmt.Errorf("model %q: package model needs package_file", d.ID)
		}
		if err := checkRelPath(d.PackageFile); err != nil {
			return fmt.Errorf("model %q: package_file: %w", d.ID, err)
		}
	}
	return nil
}

// checkRelPath rejects empty, absolute and parent-escaping paths.
func checkRelPath(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("empty path")
	}
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) {
		return fmt.Errorf("absolute path not allowed")
	}
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return fmt.Errorf("parent reference not allowed")
		}
	}
	return nil
}

// Find returns the descriptor with the given id.
func Find(catalog []Descriptor, id string) (Descriptor, bool) {
	for _, d := range catalog {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}
