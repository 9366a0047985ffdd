package cli

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"voxkey/internal/config"
	"voxkey/internal/download"
	"voxkey/internal/manager"
	"voxkey/internal/prefs"
	"voxkey/internal/readiness"
	"voxkey/internal/registry"
	"voxkey/internal/whisperpkg"
)

// packageCacheDir is where the package backend keeps its own files.
const packageCacheDir = "PackageCache"

// Runtime is the fully wired model lifecycle stack.
type Runtime struct {
	Cfg     config.Config
	Log     zerolog.Logger
	Prefs   prefs.Store
	Backend *whisperpkg.Backend
	Oracle  *readiness.Oracle
	Manager *manager.Manager
	Events  *manager.Broadcaster
}

// loadCatalog returns the configured catalog or the built-in one.
func loadCatalog(cfg config.Config) ([]registry.Descriptor, error) {
	if cfg.CatalogFile == "" {
		return registry.Builtin(), nil
	}
	catalog, err := registry.LoadFile(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}
	if err := registry.Validate(catalog); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", cfg.CatalogFile, err)
	}
	return catalog, nil
}

// openRuntime wires prefs, backend, oracle, downloaders and manager for cfg
// and restores the persisted selection. client may be nil to use
// http.DefaultClient.
func openRuntime(cfg config.Config, log zerolog.Logger, client *http.Client) (*Runtime, error) {
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	store, err := prefs.Open(cfg.PrefsBackend, cfg.PrefsPath, log)
	if err != nil {
		return nil, fmt.Errorf("open preferences: %w", err)
	}
	backend := whisperpkg.New(whisperpkg.Config{
		BaseURL:  cfg.PackageBaseURL,
		CacheDir: filepath.Join(cfg.StorageRoot, packageCacheDir),
		Client:   client,
		Flags:    store,
		Logger:   &log,
	})
	oracle := readiness.New(cfg.StorageRoot, cfg.MinFileBytes, backend)
	events := manager.NewBroadcaster()
	m := manager.NewWithConfig(manager.ManagerConfig{
		Catalog: catalog,
		Oracle:  oracle,
		Downloaders: map[registry.Kind]download.Downloader{
			registry.KindFileSet: download.NewFileSet(download.FileSetConfig{
				BaseURL:     cfg.FileSetBaseURL,
				Oracle:      oracle,
				Client:      client,
				MaxParallel: cfg.MaxParallelTransfers,
				Logger:      &log,
			}),
			registry.KindPackage: download.NewPackage(backend, oracle, download.RampConfig{
				Interval: time.Duration(cfg.RampIntervalMS) * time.Millisecond,
				Step:     cfg.RampStep,
				Ceiling:  cfg.RampCeiling,
			}, &log),
		},
		Releaser:            backend,
		Prefs:               store,
		Publisher:           events,
		AllowUnreadyPackage: *cfg.AllowUnreadyPackage,
		Logger:              &log,
	})
	if err := m.RestoreSelection(); err != nil {
		log.Warn().Err(err).Msg("restore selection")
	}
	return &Runtime{Cfg: cfg, Log: log, Prefs: store, Backend: backend, Oracle: oracle, Manager: m, Events: events}, nil
}

// Close stops the manager and releases the preference store.
func (rt *Runtime) Close() error {
	return errors.Join(rt.Manager.Close(), rt.Prefs.Close())
}
