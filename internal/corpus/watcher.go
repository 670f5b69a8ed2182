package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounceWindow = 500 * time.Millisecond

// Watcher reloads the corpus file when it changes on disk and swaps the
// new snapshot into a Provider. Editors and deploy tooling usually replace
// files by rename, so the parent directory is watched rather than the file
// itself, and events are debounced into a single reload.
type Watcher struct {
	provider *Provider
	path     string
	debounce time.Duration

	fsw     *fsnotify.Watcher
	errs    chan error
	stopCh  chan struct{}
	mu      sync.Mutex
	stopped bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceWindow overrides the reload debounce window.
func WithDebounceWindow(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for the corpus file at path. Reloaded
// snapshots are stored into provider; the caller keeps reading through the
// provider and picks up swaps on the next request.
func NewWatcher(provider *Provider, path string, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve corpus path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	w := &Watcher{
		provider: provider,
		path:     abs,
		debounce: defaultDebounceWindow,
		fsw:      fsw,
		errs:     make(chan error, 10),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching and blocks until the context is cancelled or Stop
// is called. Reload failures are reported on Errors and the previous
// snapshot stays active.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	slog.Debug("corpus watcher started",
		slog.String("path", w.path),
		slog.Duration("debounce", w.debounce))

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.matches(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case <-timerCh:
			timer = nil
			timerCh = nil
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// Stop stops the watcher. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	return w.fsw.Close()
}

// Errors returns a channel of non-fatal watcher and reload errors.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

func (w *Watcher) matches(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	return abs == w.path
}

func (w *Watcher) reload() {
	c, err := Load(w.path)
	if err != nil {
		slog.Warn("corpus reload failed, keeping previous snapshot",
			slog.String("path", w.path),
			slog.String("error", err.Error()))
		w.emitError(err)
		return
	}
	w.provider.Swap(c)
}

func (w *Watcher) emitError(err error) {
	select {
	case w.errs <- err:
	default:
		// Drop when nobody is draining; reloads already log failures.
	}
}
