package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dshills/codeintel/internal/logging"
	"github.com/dshills/codeintel/internal/loop"
	"github.com/dshills/codeintel/internal/provider"
	"github.com/fsnotify/fsnotify"
)

// DefaultExclude lists the globs skipped unless overridden.
var DefaultExclude = []string{
	"**/.git/**",
	"**/.hg/**",
	"**/.svn/**",
	"**/node_modules/**",
	"**/__pycache__/**",
	"**/.venv/**",
	"**/*.swp",
	"**/*~",
}

// BatchHandler receives coalesced file changes, sorted by path.
type BatchHandler func(changes []provider.FileChange)

// WatcherStats counts watcher activity.
type WatcherStats struct {
	WatchedDirs int
	Events      uint64
	Ignored     uint64
	Batches     uint64
	Errors      uint64
}

// Watcher reports file changes under a root.
type Watcher struct {
	root    string
	include []string
	exclude []string
	handler BatchHandler
	clock   loop.Clock
	delay   time.Duration
	logger  *logging.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	dirs    map[string]bool
	pending map[string]provider.FileChangeType
	timer   loop.Timer
	stats   WatcherStats
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithInclude restricts reported files to those matching any glob. Globs are
// matched against slash-separated paths relative to the root.
func WithInclude(globs ...string) WatcherOption {
	return func(w *Watcher) {
		w.include = append(w.include, globs...)
	}
}

// WithExclude replaces the exclusion globs.
func WithExclude(globs ...string) WatcherOption {
	return func(w *Watcher) {
		w.exclude = append([]string(nil), globs...)
	}
}

// WithWatcherDebounce sets how long a burst may stay quiet before it is
// delivered.
func WithWatcherDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.delay = d
		}
	}
}

// WithWatcherClock sets the clock used for debouncing.
func WithWatcherClock(c loop.Clock) WatcherOption {
	return func(w *Watcher) {
		w.clock = c
	}
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(l *logging.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = l
	}
}

// NewWatcher watches root and every directory below it that is not
// excluded.
func NewWatcher(root string, handler BatchHandler, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:    abs,
		exclude: append([]string(nil), DefaultExclude...),
		handler: handler,
		clock:   loop.RealClock{},
		delay:   200 * time.Millisecond,
		logger:  logging.Nop(),
		dirs:    make(map[string]bool),
		pending: make(map[string]provider.FileChangeType),
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	for _, g := range append(append([]string(nil), w.include...), w.exclude...) {
		if !doublestar.ValidatePattern(g) {
			return nil, fmt.Errorf("invalid glob %q", g)
		}
	}
	w.logger = w.logger.WithComponent("workspace").WithField("root", abs)

	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w.fsw = fsw
	if err := w.addTree(abs); err != nil {
		fsw.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.processLoop()
	return w, nil
}

// Root returns the watched root.
func (w *Watcher) Root() string {
	return w.root
}

// Match reports whether path is reported by this watcher.
func (w *Watcher) Match(path string) bool {
	rel, ok := w.rel(path)
	if !ok {
		return false
	}
	if w.excluded(rel) {
		return false
	}
	if len(w.include) == 0 {
		return true
	}
	for _, g := range w.include {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == ".." || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) excluded(rel string) bool {
	for _, g := range w.exclude {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
		// A directory is excluded when anything inside it would be.
		if ok, _ := doublestar.Match(g, rel+"/_"); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root {
			if rel, ok := w.rel(p); !ok || w.excluded(rel) {
				return filepath.SkipDir
			}
		}
		w.mu.Lock()
		seen := w.dirs[p]
		w.mu.Unlock()
		if seen {
			return nil
		}
		if err := w.fsw.Add(p); err != nil {
			if p == w.root {
				return fmt.Errorf("watching %s: %w", p, err)
			}
			w.logger.WithField("dir", p).Debug("cannot watch: %v", err)
			return nil
		}
		w.mu.Lock()
		w.dirs[p] = true
		w.stats.WatchedDirs = len(w.dirs)
		w.mu.Unlock()
		return nil
	})
}

func (w *Watcher) processLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFSEvent(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
			w.logger.Debug("watch error: %v", err)
		}
	}
}

func (w *Watcher) handleFSEvent(ev fsnotify.Event) {
	typ, ok := changeType(ev.Op)
	if !ok {
		return
	}
	if typ == provider.FileCreated {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if rel, ok := w.rel(ev.Name); ok && !w.excluded(rel) {
				_ = w.addTree(ev.Name)
			}
			return
		}
	}
	if typ == provider.FileDeleted {
		w.mu.Lock()
		if w.dirs[ev.Name] {
			delete(w.dirs, ev.Name)
			w.stats.WatchedDirs = len(w.dirs)
		}
		w.mu.Unlock()
	}
	w.record(ev.Name, typ)
}

// changeType maps an fsnotify operation to the reported change. Chmod alone
// is not reported.
func changeType(op fsnotify.Op) (provider.FileChangeType, bool) {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return provider.FileDeleted, true
	case op.Has(fsnotify.Create):
		return provider.FileCreated, true
	case op.Has(fsnotify.Write):
		return provider.FileChanged, true
	default:
		return 0, false
	}
}

// coalesce folds next into the pending change for a path. keep is false when
// the two cancel out (created then deleted within one window).
func coalesce(prev provider.FileChangeType, seen bool, next provider.FileChangeType) (result provider.FileChangeType, keep bool) {
	if !seen {
		return next, true
	}
	switch next {
	case provider.FileDeleted:
		if prev == provider.FileCreated {
			return 0, false
		}
		return provider.FileDeleted, true
	case provider.FileCreated:
		if prev == provider.FileDeleted {
			return provider.FileChanged, true
		}
		return prev, true
	default:
		if prev == provider.FileDeleted {
			return provider.FileChanged, true
		}
		return prev, true
	}
}

func (w *Watcher) record(path string, typ provider.FileChangeType) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.stats.Events++
	if !w.Match(path) {
		w.stats.Ignored++
		return
	}

	prev, seen := w.pending[path]
	next, keep := coalesce(prev, seen, typ)
	if keep {
		w.pending[path] = next
	} else {
		delete(w.pending, path)
	}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = w.clock.AfterFunc(w.delay, w.Flush)
}

// Flush delivers pending changes immediately.
func (w *Watcher) Flush() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if w.closed || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	batch := make([]provider.FileChange, 0, len(w.pending))
	for path, typ := range w.pending {
		batch = append(batch, provider.FileChange{Path: path, Type: typ})
	}
	w.pending = make(map[string]provider.FileChangeType)
	w.stats.Batches++
	w.mu.Unlock()

	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	w.logger.WithField("changes", len(batch)).Debug("workspace changed")
	if w.handler != nil {
		w.handler(batch)
	}
}

// Pending returns the number of paths waiting for delivery.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Stats returns watcher counters.
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Close stops watching. Pending changes are discarded.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	close(w.closeCh)
	w.mu.Unlock()

	w.wg.Wait()
	return w.fsw.Close()
}
