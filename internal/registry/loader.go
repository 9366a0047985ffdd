package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"voxkey/internal/common/fsutil"
)

// catalogFile is the on-disk shape of a catalog override.
type catalogFile struct {
	Models []Descriptor `json:"models" yaml:"models" toml:"models"`
}

// LoadFile reads a catalog from a .yaml/.yml, .json or .toml file.
// Every descriptor is validated and ids must be unique.
func LoadFile(path string) ([]Descriptor, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var cf catalogFile
	switch ext := strings.ToLower(filepath.Ext(p)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cf)
	case ".json":
		err = json.Unmarshal(b, &cf)
	case ".toml":
		err = toml.Unmarshal(b, &cf)
	default:
		return nil, fmt.Errorf("unsupported catalog extension: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", p, err)
	}
	if err := Validate(cf.Models); err != nil {
		return nil, err
	}
	return cf.Models, nil
}

// Validate checks every descriptor and rejects duplicate ids.
func Validate(catalog []Descriptor) error {
	if len(catalog) == 0 {
		return fmt.Errorf("catalog is empty")
	}
	seen := make(map[string]struct{}, len(catalog))
	for _, d := range catalog {
		if err := d.Validate(); err != nil {
			return err
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("duplicate model id %q", d.ID)
		}
		seen[d.ID] = struct{}{}
	}
	return nil
}
