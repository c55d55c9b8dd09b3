package script

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/codeintel/internal/document"
	"github.com/dshills/codeintel/internal/logging"
	"github.com/dshills/codeintel/internal/loop"
	"github.com/dshills/codeintel/internal/merge"
	"github.com/dshills/codeintel/internal/provider"
)

var errClosed = errors.New("script state closed")

const shutdownGrace = 2 * time.Second

// Adapter is a provider.Provider backed by a Lua script.
type Adapter struct {
	name    string
	file    string
	sink    provider.Sink
	logger  *logging.Logger
	docs    *document.Store
	maxCall time.Duration

	mu        sync.Mutex
	languages provider.LanguageSet
	gen       uint64
	worker    *loop.Loop
	cancel    context.CancelFunc
	state     *state
	failed    bool
	stopped   chan struct{}
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Adapter) {
		a.logger = l
	}
}

// New creates a script provider.
func New(name string, cfg provider.Config, sink provider.Sink, opts ...Option) *Adapter {
	a := &Adapter{
		name:      name,
		file:      cfg.String(KeyFile, ""),
		sink:      sink,
		logger:    logging.Nop(),
		docs:      document.NewStore(),
		maxCall:   time.Duration(cfg.Int(KeyMaxCallMillis, 1000)) * time.Millisecond,
		languages: provider.NewLanguageSet(cfg.Strings(KeyLanguages)...),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.maxCall <= 0 {
		a.maxCall = time.Second
	}
	a.logger = a.logger.WithComponent("script").WithField("provider", name)
	return a
}

// Factory returns a provider.Factory building script providers.
func Factory(name string, opts ...Option) provider.Factory {
	return func(cfg provider.Config, sink provider.Sink) (provider.Provider, error) {
		if cfg.String(KeyFile, "") == "" {
			return nil, fmt.Errorf("%w: %s needs a script file", provider.ErrInvalidConfig, name)
		}
		return New(name, cfg, sink, opts...), nil
	}
}

// Name implements provider.Provider.
func (a *Adapter) Name() string { return a.name }

// Supports implements provider.Provider. A script that declares a global
// "languages" list narrows the configured set once loaded.
func (a *Adapter) Supports(language string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.languages.Has(language)
}

// Start builds the Lua state and runs the script on the adapter's loop.
// Ready is reported once the script has loaded.
func (a *Adapter) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.worker != nil {
		if !a.failed {
			return nil
		}
		// A script that failed to load is loaded again from scratch.
		a.worker.Stop()
		a.cancel()
	}
	if a.file == "" {
		return fmt.Errorf("%w: no script file", provider.ErrInvalidConfig)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.gen++
	gen := a.gen
	a.cancel = cancel
	a.failed = false
	a.worker = loop.New(loop.WithLogger(a.logger))
	go a.worker.Run(ctx)

	a.worker.Post(func() { a.load(ctx, gen) })
	return nil
}

func (a *Adapter) load(ctx context.Context, gen uint64) {
	st := newState(a.logger)
	callCtx, done := context.WithTimeout(ctx, a.maxCall)
	err := st.load(callCtx, a.file)
	done()
	if err != nil {
		st.close()
		a.logger.WithField("file", a.file).Warn("script failed to load: %v", err)
		a.mu.Lock()
		current := a.gen == gen
		if current {
			a.failed = true
		}
		a.mu.Unlock()
		if current {
			a.sink.Down(a.name, fmt.Errorf("load %s: %w", a.file, err))
		}
		return
	}

	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		st.close()
		return
	}
	a.state = st
	if declared := st.globalStrings("languages"); len(declared) > 0 {
		a.languages = provider.NewLanguageSet(declared...)
	}
	languages := a.languages.Sorted()
	a.mu.Unlock()

	a.logger.WithField("file", a.file).Info("script loaded")
	a.sink.Ready(a.name, languages)
}

func (a *Adapter) sameGen(gen uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gen == gen
}

// SendRequest implements provider.Provider.
func (a *Adapter) SendRequest(language string, kind provider.Kind, payload provider.Payload, id int64) {
	a.mu.Lock()
	worker, gen := a.worker, a.gen
	a.mu.Unlock()
	if worker == nil {
		return
	}
	worker.Post(func() { a.request(gen, language, kind, payload, id) })
}

func (a *Adapter) request(gen uint64, language string, kind provider.Kind, p provider.Payload, id int64) {
	a.mu.Lock()
	st := a.state
	a.mu.Unlock()
	if st == nil || !a.sameGen(gen) {
		return
	}
	if !st.has(string(kind)) {
		a.sink.Response(a.name, id, nil)
		return
	}

	ctx, done := context.WithTimeout(context.Background(), a.maxCall)
	defer done()
	result, err := st.call(ctx, string(kind), a.requestTable(language, p))
	if err != nil {
		a.logger.WithFields(map[string]any{"id": id, "kind": string(kind)}).Debug("handler failed: %v", err)
		return
	}
	a.sink.Response(a.name, id, body(kind, result))
}

// requestTable is the table a handler receives.
func (a *Adapter) requestTable(language string, p provider.Payload) map[string]any {
	text := p.Text
	if doc, ok := a.docs.Get(p.Path); ok {
		text = doc.Text
	}
	prefix := p.Prefix
	if prefix == "" {
		prefix = document.WordBefore(text, p.Line, p.Column)
	}
	req := map[string]any{
		"language":            language,
		"path":                p.Path,
		"line":                p.Line,
		"column":              p.Column,
		"prefix":              prefix,
		"text":                text,
		"include_declaration": p.IncludeDeclaration,
	}
	if p.NewName != "" {
		req["new_name"] = p.NewName
	}
	if p.Condition != "" {
		req["condition"] = p.Condition
	}
	return req
}

// body normalizes a handler result.
func body(kind provider.Kind, result any) any {
	if provider.IsEmpty(result) {
		return nil
	}
	if kind == provider.KindCompletion {
		items, ok := merge.Items(result)
		if !ok || len(items) == 0 {
			return nil
		}
		return items
	}
	return result
}

// SendNotification implements provider.Provider.
func (a *Adapter) SendNotification(language string, kind provider.Kind, payload provider.Payload) {
	a.mu.Lock()
	worker, gen := a.worker, a.gen
	a.mu.Unlock()
	if worker == nil {
		return
	}
	worker.Post(func() { a.notify(gen, language, kind, payload) })
}

func (a *Adapter) notify(gen uint64, language string, kind provider.Kind, p provider.Payload) {
	if _, _, err := a.docs.Apply(language, kind, p); err != nil {
		a.logger.WithField("path", p.Path).Debug("mirror: %v", err)
	}

	a.mu.Lock()
	st := a.state
	a.mu.Unlock()
	if st == nil || !a.sameGen(gen) || !st.has("on_notification") {
		return
	}
	ctx, done := context.WithTimeout(context.Background(), a.maxCall)
	defer done()
	req := a.requestTable(language, p)
	if kind == provider.KindConfigChange {
		req["settings"] = p.Settings
	}
	if _, err := st.call(ctx, "on_notification", string(kind), req); err != nil {
		a.logger.WithField("kind", string(kind)).Debug("on_notification failed: %v", err)
	}
}

// IsAlive implements provider.Provider. A script that failed to load is
// not alive.
func (a *Adapter) IsAlive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.worker != nil && !a.failed
}

// Shutdown closes the Lua state on the adapter's loop and stops it.
func (a *Adapter) Shutdown() error {
	a.mu.Lock()
	worker, cancel, st := a.worker, a.cancel, a.state
	if worker == nil {
		a.mu.Unlock()
		return nil
	}
	a.gen++
	a.worker = nil
	a.state = nil
	stopped := make(chan struct{})
	a.stopped = stopped
	a.mu.Unlock()

	// The state is closed on the worker once any running call returns.
	go func() {
		defer close(stopped)
		ctx, done := context.WithTimeout(context.Background(), shutdownGrace)
		defer done()
		if st != nil && !worker.Call(ctx, st.close) {
			a.logger.Warn("script did not stop in time")
		}
		worker.Stop()
		cancel()
	}()
	return nil
}

// Wait blocks until the last shutdown has closed the Lua state.
func (a *Adapter) Wait(ctx context.Context) error {
	a.mu.Lock()
	stopped := a.stopped
	a.mu.Unlock()
	if stopped == nil {
		return nil
	}
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
