// Package watch re-triggers builds when the build definition changes.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/specialistvlad/bundlegrid/internal/ctxlog"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 300 * time.Millisecond

// Config describes what to watch.
type Config struct {
	// Paths are files or directories. Files are watched through their parent
	// directory so atomic saves (write then rename) are seen.
	Paths []string
	// Patterns filter directory members by base name, e.g. "*.hcl".
	Patterns []string
	Debounce time.Duration
}

// Watcher emits debounced batches of changed paths.
type Watcher struct {
	cfg   Config
	fs    *fsnotify.Watcher
	files map[string]bool
}

// New starts watching cfg.Paths. Events that happen after New returns are
// never lost.
func New(cfg Config) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w := &Watcher{cfg: cfg, fs: fsw, files: make(map[string]bool)}

	dirs := make(map[string]bool)
	for _, p := range cfg.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fsw.Close()
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watching %s: %w", p, err)
		}
		if info.IsDir() {
			dirs[abs] = true
			continue
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// Run blocks until ctx is done, calling onChange with every debounced batch.
// Events that arrive while onChange runs are delivered in the next batch.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context, changed []string)) error {
	logger := ctxlog.FromContext(ctx)

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.cfg.Debounce)
	timer.Stop()
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod || !w.matches(ev.Name) {
				continue
			}
			logger.Debug("Change detected.", "path", ev.Name, "op", ev.Op.String())
			pending[ev.Name] = struct{}{}
			timer.Reset(w.cfg.Debounce)
			fire = timer.C
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error.", "error", err)
		case <-fire:
			fire = nil
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)
			onChange(ctx, changed)
		}
	}
}

func (w *Watcher) matches(path string) bool {
	abs, err := filepath.Abs(path)
	if err == nil && w.files[abs] {
		return true
	}
	base := filepath.Base(path)
	for _, pattern := range w.cfg.Patterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}
