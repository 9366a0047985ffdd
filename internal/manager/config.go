package manager

import (
	"context"

	"github.com/rs/zerolog"

	"voxkey/internal/download"
	"voxkey/internal/readiness"
	"voxkey/internal/registry"
)

// inFlightCeiling caps progress reported while Downloading so that exactly
// 1.0 is only ever observed together with Succeeded.
const inFlightCeiling = 0.999

// SelectionStore persists the selected model id.
type SelectionStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// CacheReleaser is the package backend's cache-release routine.
type CacheReleaser interface {
	ReleaseCache(ctx context.Context, d registry.Descriptor) error
}

// ManagerConfig encapsulates all dependencies and tunables for Manager construction.
type ManagerConfig struct {
	Catalog     []registry.Descriptor
	Oracle      *readiness.Oracle
	Downloaders map[registry.Kind]download.Downloader
	Releaser    CacheReleaser
	Prefs       SelectionStore
	Publisher   EventPublisher
	// AllowUnreadyPackage lets package models be selected before their
	// backend reports them downloaded.
	AllowUnreadyPackage bool
	Logger              *zerolog.Logger
}

// NewWithConfig constructs a Manager and starts its owner loop. Callers
// must Close it.
func NewWithConfig(cfg ManagerConfig) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		catalog:             append([]registry.Descriptor(nil), cfg.Catalog...),
		oracle:              cfg.Oracle,
		downloaders:         cfg.Downloaders,
		releaser:            cfg.Releaser,
		prefs:               cfg.Prefs,
		pub:                 cfg.Publisher,
		allowUnreadyPackage: cfg.AllowUnreadyPackage,
		baseCtx:             ctx,
		stop:                cancel,
		ops:                 make(chan func()),
		quit:                make(chan struct{}),
		loopDone:            make(chan struct{}),
		states:              make(map[string]*DownloadState),
		sessions:            make(map[string]*session),
		deleting:            make(map[string]bool),
		ready:               make(map[string]bool),
	}
	if m.oracle == nil {
		m.oracle = readiness.New("", readiness.DefaultMinFileBytes, nil)
	}
	if m.downloaders == nil {
		m.downloaders = map[registry.Kind]download.Downloader{}
	}
	if m.pub == nil {
		m.pub = noopPublisher{}
	}
	if cfg.Logger != nil {
		m.log = cfg.Logger.With().Str("component", "manager").Logger()
	} else {
		m.log = zerolog.Nop()
	}
	for _, d := range m.catalog {
		m.ready[d.ID] = m.oracle.IsReady(d)
	}
	go m.loop()
	return m
}
