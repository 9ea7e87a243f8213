package questions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for more changes before rerunning.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reruns a batch whenever one of its question files changes.
type Watcher struct {
	paths    map[string]bool
	debounce time.Duration
	logger   *slog.Logger

	// hashes holds the content hash of each file as last run, so saves that
	// leave the content unchanged do not trigger a rerun.
	hashes map[string]string
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets the debounce delay.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) WatchOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher watches the given question files.
func NewWatcher(paths []string, opts ...WatchOption) (*Watcher, error) {
	w := &Watcher{
		paths:    make(map[string]bool, len(paths)),
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		hashes:   make(map[string]string, len(paths)),
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		w.paths[abs] = true
		w.hashes[abs] = fileHash(abs)
	}
	return w, nil
}

// Run calls fn every time a watched file changes, until ctx is done. The
// parent directories are watched rather than the files themselves so
// editors that save by rename are seen. Errors from fn are logged.
func (w *Watcher) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	dirs := make(map[string]bool)
	for p := range w.paths {
		dir := filepath.Dir(p)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	w.logger.Info("Watching question files",
		"files", len(w.paths),
		"debounce", w.debounce)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.paths[filepath.Clean(event.Name)] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("Question file change detected",
				"path", event.Name,
				"op", event.Op.String())
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Watcher error", "error", err)

		case <-timer.C:
			if !w.changed() {
				continue
			}
			w.logger.Info("Question files changed, rerunning batch")
			if err := fn(ctx); err != nil {
				w.logger.Error("Batch failed", "error", err)
			}
		}
	}
}

// changed updates the stored hashes and reports whether any differed.
func (w *Watcher) changed() bool {
	changed := false
	for p := range w.paths {
		h := fileHash(p)
		if h != w.hashes[p] {
			w.hashes[p] = h
			changed = true
		}
	}
	return changed
}

// fileHash returns the sha256 of a file, or "" if it cannot be read.
func fileHash(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
