package download

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voxkey/internal/readiness"
	"voxkey/internal/registry"
)

// Synthetic progress defaults for the package backend, which exposes no
// byte-level progress.
const (
	DefaultRampInterval = 500 * time.Millisecond
	DefaultRampStep     = 0.05
	DefaultRampCeiling  = 0.9
)

// PackageBackend is the self-managing backend's download contract.
type PackageBackend interface {
	// Acquire downloads and loads the model; it owns its own cache.
	Acquire(ctx context.Context, d registry.Descriptor) error
	// WarmUp loads an already downloaded model.
	WarmUp(ctx context.Context, d registry.Descriptor) error
}

// RampConfig shapes the synthetic progress curve.
type RampConfig struct {
	Interval time.Duration
	Step     float64
	Ceiling  float64
}

func (r RampConfig) withDefaults() RampConfig {
	if r.Interval <= 0 {
		r.Interval = DefaultRampInterval
	}
	if r.Step <= 0 {
		r.Step = DefaultRampStep
	}
	if r.Ceiling <= 0 || r.Ceiling >= 1 {
		r.Ceiling = DefaultRampCeiling
	}
	return r
}

// Package downloads models through the package backend while reporting a
// time-based progress ramp that never reaches 1.0.
type Package struct {
	backend PackageBackend
	oracle  *readiness.Oracle
	ramp    RampConfig
	log     zerolog.Logger

	mu        sync.Mutex
	acquiring map[string]chan struct{} // closed when Acquire for the id returns
}

// NewPackage constructs a Package downloader.
func NewPackage(backend PackageBackend, oracle *readiness.Oracle, ramp RampConfig, logger *zerolog.Logger) *Package {
	p := &Package{
		backend:   backend,
		oracle:    oracle,
		ramp:      ramp.withDefaults(),
		acquiring: make(map[string]chan struct{}),
	}
	if logger != nil {
		p.log = logger.With().Str("component", "download.package").Logger()
	} else {
		p.log = zerolog.Nop()
	}
	return p
}

var settled = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Settled returns a channel closed once no Acquire for modelID is running.
// After a cancelled Download returns, the backend may still be writing its
// cache until this channel closes.
func (p *Package) Settled(modelID string) <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.acquiring[modelID]; ok {
		return c
	}
	return settled
}

func (p *Package) startAcquire(ctx context.Context, d registry.Descriptor) <-chan error {
	c := make(chan struct{})
	p.mu.Lock()
	p.acquiring[d.ID] = c
	p.mu.Unlock()

	result := make(chan error, 1)
	go func() {
		err := p.backend.Acquire(ctx, d)
		p.mu.Lock()
		if p.acquiring[d.ID] == c {
			delete(p.acquiring, d.ID)
		}
		p.mu.Unlock()
		close(c)
		result <- err
	}()
	return result
}

// Download runs backend.Acquire alongside the ramp. Cancellation returns
// within one ramp tick even if the backend is slow to notice ctx; use
// Settled to wait for the backend itself.
func (p *Package) Download(ctx context.Context, d registry.Descriptor, sink Sink) error {
	if d.Kind != registry.KindPackage {
		return fmt.Errorf("model %s is not a package model", d.ID)
	}
	sink = sinkOrNop(sink)
	// one Acquire per model id
	select {
	case <-p.Settled(d.ID):
	case <-ctx.Done():
		return ctx.Err()
	}
	if p.oracle.IsReady(d) {
		p.log.Debug().Str("model", d.ID).Msg("already downloaded; warming up")
		if err := p.backend.WarmUp(ctx, d); err != nil {
			return &BackendInitError{ModelID: d.ID, Err: err}
		}
		return nil
	}

	start := time.Now()
	result := p.startAcquire(ctx, d)

	ticker := time.NewTicker(p.ramp.Interval)
	defer ticker.Stop()
	progress := 0.0
	sink.Progress(progress)
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Str("model", d.ID).Msg("package download cancelled")
			return ctx.Err()
		case err := <-result:
			packageAcquireSeconds.Observe(time.Since(start).Seconds())
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				return &BackendInitError{ModelID: d.ID, Err: err}
			}
			return nil
		case <-ticker.C:
			if progress < p.ramp.Ceiling {
				progress += p.ramp.Step
				if progress > p.ramp.Ceiling {
					progress = p.ramp.Ceiling
				}
				sink.Progress(progress)
			}
		}
	}
}
