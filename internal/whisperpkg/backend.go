// Package whisperpkg is the self-managing model backend: it fetches
// whisper.cpp ggml model files into its own cache, loads them, and keeps a
// persisted "models downloaded" flag per model. Callers only see Acquire,
// WarmUp, ReleaseCache and ModelsPresent.
package whisperpkg

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"voxkey/internal/common/fsutil"
	"voxkey/internal/registry"
)

// DefaultBaseURL serves the upstream ggml model files.
const DefaultBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// ggmlMagic is the little-endian file magic of ggml model files.
const ggmlMagic uint32 = 0x67676d6c

const flagPrefix = "packageModelsDownloaded."

// FlagStore persists the backend's per-model downloaded flag.
type FlagStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// Config configures a Backend.
type Config struct {
	BaseURL  string
	CacheDir string
	Client   *http.Client
	Flags    FlagStore
	Logger   *zerolog.Logger
}

// Backend implements the package backend contract.
type Backend struct {
	baseURL  string
	cacheDir string
	client   *http.Client
	flags    FlagStore
	log      zerolog.Logger

	mu     sync.Mutex
	loaded map[string]string // model id -> loaded file path
}

// New constructs a Backend; BaseURL and Client default when unset.
func New(cfg Config) *Backend {
	b := &Backend{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		cacheDir: cfg.CacheDir,
		client:   cfg.Client,
		flags:    cfg.Flags,
		loaded:   make(map[string]string),
	}
	if b.baseURL == "" {
		b.baseURL = DefaultBaseURL
	}
	if b.client == nil {
		b.client = http.DefaultClient
	}
	if cfg.Logger != nil {
		b.log = cfg.Logger.With().Str("component", "whisperpkg").Logger()
	} else {
		b.log = zerolog.Nop()
	}
	return b
}

// ModelsPresent reports the persisted downloaded flag for modelID.
func (b *Backend) ModelsPresent(modelID string) bool {
	if b.flags == nil {
		return false
	}
	v, ok, err := b.flags.Get(flagPrefix + modelID)
	if err != nil {
		b.log.Warn().Err(err).Str("model", modelID).Msg("read downloaded flag")
		return false
	}
	return ok && v == "true"
}

// Loaded reports whether the model is loaded in this process.
func (b *Backend) Loaded(modelID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.loaded[modelID]
	return ok
}

func (b *Backend) cachePath(d registry.Descriptor) string {
	return filepath.Join(b.cacheDir, filepath.FromSlash(d.PackageFile))
}

// Acquire downloads the model file if it is not cached, loads it and marks
// the model as downloaded. It is safe to call again after success.
func (b *Backend) Acquire(ctx context.Context, d registry.Descriptor) error {
	if d.Kind != registry.KindPackage {
		return fmt.Errorf("model %s is not a package model", d.ID)
	}
	path := b.cachePath(d)
	if !fsutil.FileLargerThan(path, 0) {
		url := b.baseURL + "/" + d.PackageFile
		b.log.Info().Str("model", d.ID).Str("url", url).Msg("fetching model package")
		if err := b.fetch(ctx, url, path); err != nil {
			return fmt.Errorf("fetch %s: %w", d.PackageFile, err)
		}
	}
	if err := b.load(d.ID, path); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.markDownloaded(d.ID)
}

// WarmUp loads an already cached model. It is idempotent.
func (b *Backend) WarmUp(ctx context.Context, d registry.Descriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.Loaded(d.ID) {
		return nil
	}
	return b.load(d.ID, b.cachePath(d))
}

// ReleaseCache unloads the model, removes its cached file and clears the
// downloaded flag so a later Acquire fetches it again.
func (b *Backend) ReleaseCache(ctx context.Context, d registry.Descriptor) error {
	b.mu.Lock()
	delete(b.loaded, d.ID)
	b.mu.Unlock()
	if err := os.Remove(b.cachePath(d)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove cached package: %w", err)
	}
	if b.flags != nil {
		if err := b.flags.Delete(flagPrefix + d.ID); err != nil {
			return fmt.Errorf("clear downloaded flag: %w", err)
		}
	}
	b.log.Info().Str("model", d.ID).Msg("package cache released")
	return nil
}

// markDownloaded sets the flag the first time a model loads successfully.
func (b *Backend) markDownloaded(modelID string) error {
	if b.flags == nil || b.ModelsPresent(modelID) {
		return nil
	}
	if err := b.flags.Set(flagPrefix+modelID, "true"); err != nil {
		return fmt.Errorf("persist downloaded flag: %w", err)
	}
	return nil
}

// load verifies the ggml header and records the model as loaded.
func (b *Backend) load(modelID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("load model %s: %w", modelID, err)
	}
	defer f.Close()
	var magic uint32
	if err := binary.Read(f, binary.LittleEndian, &magic); err != nil {
		return fmt.Errorf("load model %s: read header: %w", modelID, err)
	}
	if magic != ggmlMagic {
		return fmt.Errorf("load model %s: not a ggml model file (magic %#x)", modelID, magic)
	}
	b.mu.Lock()
	b.loaded[modelID] = path
	b.mu.Unlock()
	b.log.Debug().Str("model", modelID).Str("path", path).Msg("model loaded")
	return nil
}

// fetch downloads url to dst through a temp file in the same directory.
func (b *Backend) fetch(ctx context.Context, url, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("prepare cache directory: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "voxkey")
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("request download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected HTTP status: %s", resp.Status)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".pkg-*.download")
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}
	_, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache file: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close cache file: %w", closeErr)
	}
	if err := ctx.Err(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := fsutil.ReplaceFile(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
