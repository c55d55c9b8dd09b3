package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dshills/codeintel/internal/logging"
	"github.com/dshills/codeintel/internal/loop"
	"github.com/dshills/codeintel/internal/provider"
	"github.com/fsnotify/fsnotify"
)

// StoreHandler receives the stored values after the store file changed.
type StoreHandler func(values map[string]provider.Config)

// StoreWatcher reloads the provider store when its file changes on disk.
// Bursts of writes are coalesced into one reload.
type StoreWatcher struct {
	store    *Store
	handler  StoreHandler
	clock    loop.Clock
	debounce time.Duration
	logger   *logging.Logger

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending loop.Timer
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// WatchOption configures a StoreWatcher.
type WatchOption func(*StoreWatcher)

// WithDebounce sets the coalescing delay.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *StoreWatcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithWatchClock sets the clock used for debouncing.
func WithWatchClock(c loop.Clock) WatchOption {
	return func(w *StoreWatcher) {
		w.clock = c
	}
}

// WithWatchLogger sets the logger.
func WithWatchLogger(l *logging.Logger) WatchOption {
	return func(w *StoreWatcher) {
		w.logger = l
	}
}

// WatchStore starts watching the store's directory. The directory is
// created if needed so the store file can appear later.
func WatchStore(store *Store, handler StoreHandler, opts ...WatchOption) (*StoreWatcher, error) {
	w := &StoreWatcher{
		store:    store,
		handler:  handler,
		clock:    loop.RealClock{},
		debounce: 100 * time.Millisecond,
		logger:   logging.Nop(),
		closeCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	dir := filepath.Dir(store.Path())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	w.watcher = fsw

	w.wg.Add(1)
	go w.processLoop()
	return w, nil
}

func (w *StoreWatcher) processLoop() {
	defer w.wg.Done()

	target := filepath.Clean(w.store.Path())
	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename) {
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("store watcher: %v", err)
		}
	}
}

func (w *StoreWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = w.clock.AfterFunc(w.debounce, w.reload)
}

func (w *StoreWatcher) reload() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.pending = nil
	w.mu.Unlock()

	values, err := w.store.Values()
	if err != nil {
		w.logger.WithField("path", w.store.Path()).Warn("store reload failed: %v", err)
		return
	}
	w.handler(values)
}

// Close stops watching.
func (w *StoreWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.pending != nil {
		w.pending.Stop()
	}
	close(w.closeCh)
	w.mu.Unlock()

	w.wg.Wait()
	return w.watcher.Close()
}
