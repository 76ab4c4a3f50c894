package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceWindow coalesces editor write bursts into one reload.
const DefaultDebounceWindow = 200 * time.Millisecond

// ReloadFunc receives the freshly loaded and validated configuration.
type ReloadFunc func(*Config)

// Watcher reloads the project configuration when its file changes.
// Only tunables consumed through the callback take effect at runtime;
// a reload that fails validation is logged and discarded, keeping the
// last good configuration active.
type Watcher struct {
	dir      string
	onReload ReloadFunc
	window   time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	stopCh  chan struct{}
	stopped bool
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounceWindow sets the coalescing window for change events.
func WithDebounceWindow(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.window = d
		}
	}
}

// WithWatchLogger sets the structured logger. Defaults to slog.Default().
func WithWatchLogger(logger *slog.Logger) WatchOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher creates a config watcher for the given project directory.
func NewWatcher(dir string, onReload ReloadFunc, opts ...WatchOption) *Watcher {
	w := &Watcher{
		dir:      dir,
		onReload: onReload,
		window:   DefaultDebounceWindow,
		logger:   slog.Default(),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start registers the directory watch and launches the event loop in the
// background. Setup errors are returned immediately; the loop runs until
// the context is cancelled or Stop is called.
//
// The directory is watched rather than the file itself because editors
// replace files on save, which drops a file-level watch.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		_ = fw.Close()
		return err
	}

	go w.loop(ctx, fw)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer fw.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if !w.isConfigEvent(event) {
				continue
			}
			w.scheduleReload()
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", slog.String("error", err.Error()))
		}
	}
}

// Stop terminates a running Start loop. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.stopCh)
}

func (w *Watcher) isConfigEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Base(event.Name)
	return name == ".vana.yaml" || name == ".vana.yml"
}

// scheduleReload arms the debounce timer, restarting it on every event so
// a save burst produces exactly one reload.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.window, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.dir)
	if err != nil {
		w.logger.Warn("config reload rejected, keeping previous configuration",
			slog.String("error", err.Error()))
		return
	}
	w.logger.Info("configuration reloaded", slog.String("dir", w.dir))
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
