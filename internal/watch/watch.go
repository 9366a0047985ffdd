// Package watch notices external changes under the models directory (a
// user deleting a model folder, a sync tool restoring one) and asks the
// manager to re-derive readiness from disk.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long the watcher waits for changes to settle.
const DefaultDebounce = 250 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	Debounce time.Duration
	// Ignore reports paths whose changes should not trigger a refresh,
	// such as in-progress partial downloads.
	Ignore func(path string) bool
	Logger *zerolog.Logger
}

// Watcher calls onChange once per burst of filesystem changes under root.
type Watcher struct {
	root     string
	onChange func()
	debounce time.Duration
	ignore   func(string) bool
	log      zerolog.Logger
	fsw      *fsnotify.Watcher
}

// IgnorePartials skips temp files written during transfers.
func IgnorePartials(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// New creates a Watcher for root. Call Run to start it.
func New(root string, onChange func(), opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{root: root, onChange: onChange, debounce: opts.Debounce, ignore: opts.Ignore, fsw: fsw}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if w.ignore == nil {
		w.ignore = IgnorePartials
	}
	if opts.Logger != nil {
		w.log = opts.Logger.With().Str("component", "watch").Logger()
	} else {
		w.log = zerolog.Nop()
	}
	return w, nil
}

// Run watches until ctx is cancelled. The root is created if missing.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return err
	}
	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.log.Info().Str("root", w.root).Msg("watching models directory")

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.ignore(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.log.Warn().Err(err).Str("path", ev.Name).Msg("watch new directory")
					}
				}
			}
			timer.Reset(w.debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watcher error")
		case <-timer.C:
			w.log.Debug().Msg("models directory changed")
			w.onChange()
		}
	}
}

// addTree watches dir and every directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// directory vanished while walking
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return w.fsw.Add(path)
	})
}
