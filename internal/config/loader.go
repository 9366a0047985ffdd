package config

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

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and are replaced by WithDefaults.
type Config struct {
	Addr                 string   `json:"addr" yaml:"addr" toml:"addr"`
	StorageRoot          string   `json:"storage_root" yaml:"storage_root" toml:"storage_root"`
	FileSetBaseURL       string   `json:"fileset_base_url" yaml:"fileset_base_url" toml:"fileset_base_url"`
	PackageBaseURL       string   `json:"package_base_url" yaml:"package_base_url" toml:"package_base_url"`
	MinFileBytes         int64    `json:"min_file_bytes" yaml:"min_file_bytes" toml:"min_file_bytes"`
	MaxParallelTransfers int      `json:"max_parallel_transfers" yaml:"max_parallel_transfers" toml:"max_parallel_transfers"`
	RampIntervalMS       int      `json:"ramp_interval_ms" yaml:"ramp_interval_ms" toml:"ramp_interval_ms"`
	RampStep             float64  `json:"ramp_step" yaml:"ramp_step" toml:"ramp_step"`
	RampCeiling          float64  `json:"ramp_ceiling" yaml:"ramp_ceiling" toml:"ramp_ceiling"`
	PrefsBackend         string   `json:"prefs_backend" yaml:"prefs_backend" toml:"prefs_backend"`
	PrefsPath            string   `json:"prefs_path" yaml:"prefs_path" toml:"prefs_path"`
	CatalogFile          string   `json:"catalog_file" yaml:"catalog_file" toml:"catalog_file"`
	AllowUnreadyPackage  *bool    `json:"allow_unready_package" yaml:"allow_unready_package" toml:"allow_unready_package"`
	WatchModels          *bool    `json:"watch_models" yaml:"watch_models" toml:"watch_models"`
	LogLevel             string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat            string   `json:"log_format" yaml:"log_format" toml:"log_format"`
	CORSEnabled          bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins   []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
	CORSAllowedMethods   []string `json:"cors_allowed_methods" yaml:"cors_allowed_methods" toml:"cors_allowed_methods"`
	CORSAllowedHeaders   []string `json:"cors_allowed_headers" yaml:"cors_allowed_headers" toml:"cors_allowed_headers"`
	MaxBodyBytes         int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
}

// Defaults for unspecified fields.
const (
	DefaultAddr                 = "127.0.0.1:8642"
	DefaultStorageRoot          = "~/.voxkey"
	DefaultFileSetBaseURL       = "https://huggingface.co/FluidInference/parakeet-tdt-0.6b-v2-coreml/resolve/main"
	DefaultPackageBaseURL       = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"
	DefaultMinFileBytes         = 100
	DefaultMaxParallelTransfers = 4
	DefaultRampIntervalMS       = 500
	DefaultRampStep             = 0.05
	DefaultRampCeiling          = 0.9
	DefaultPrefsBackend         = "file"
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "console"
	DefaultMaxBodyBytes         = 1 << 20
)

// Defaults returns a fully populated configuration.
func Defaults() Config {
	return Config{}.WithDefaults()
}

// WithDefaults returns a copy of c with zero fields replaced by defaults.
// Derived paths (prefs file) are resolved against the storage root.
func (c Config) WithDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.StorageRoot == "" {
		c.StorageRoot = DefaultStorageRoot
	}
	if root, err := fsutil.ExpandHome(c.StorageRoot); err == nil {
		c.StorageRoot = root
	}
	if c.FileSetBaseURL == "" {
		c.FileSetBaseURL = DefaultFileSetBaseURL
	}
	if c.PackageBaseURL == "" {
		c.PackageBaseURL = DefaultPackageBaseURL
	}
	if c.MinFileBytes <= 0 {
		c.MinFileBytes = DefaultMinFileBytes
	}
	if c.MaxParallelTransfers <= 0 {
		c.MaxParallelTransfers = DefaultMaxParallelTransfers
	}
	if c.RampIntervalMS <= 0 {
		c.RampIntervalMS = DefaultRampIntervalMS
	}
	if c.RampStep <= 0 {
		c.RampStep = DefaultRampStep
	}
	if c.RampCeiling <= 0 {
		c.RampCeiling = DefaultRampCeiling
	}
	if c.PrefsBackend == "" {
		c.PrefsBackend = DefaultPrefsBackend
	}
	if c.PrefsPath == "" {
		if c.PrefsBackend == "badger" {
			c.PrefsPath = filepath.Join(c.StorageRoot, "prefs.db")
		} else {
			c.PrefsPath = filepath.Join(c.StorageRoot, "prefs.json")
		}
	}
	if c.AllowUnreadyPackage == nil {
		v := true
		c.AllowUnreadyPackage = &v
	}
	if c.WatchModels == nil {
		v := true
		c.WatchModels = &v
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return c
}

// Validate reports settings that cannot work. Call it after WithDefaults.
func (c Config) Validate() error {
	if c.RampCeiling >= 1 {
		return fmt.Errorf("ramp_ceiling must be below 1, got %v", c.RampCeiling)
	}
	if c.RampStep >= 1 {
		return fmt.Errorf("ramp_step must be below 1, got %v", c.RampStep)
	}
	switch c.PrefsBackend {
	case "file", "badger":
	default:
		return fmt.Errorf("unknown prefs_backend %q (want file or badger)", c.PrefsBackend)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log_format %q (want console or json)", c.LogFormat)
	}
	return nil
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
