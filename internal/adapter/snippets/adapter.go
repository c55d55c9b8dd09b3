package snippets

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/dshills/codeintel/internal/document"
	"github.com/dshills/codeintel/internal/logging"
	"github.com/dshills/codeintel/internal/provider"
)

// Adapter is the in-process snippet provider.
type Adapter struct {
	name      string
	sink      provider.Sink
	logger    *logging.Logger
	languages provider.LanguageSet
	docs      *document.Store

	mu       sync.Mutex
	running  bool
	file     string
	builtins bool
	table    *Table
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Adapter) {
		a.logger = l
	}
}

// New creates a snippet provider.
func New(name string, cfg provider.Config, sink provider.Sink, opts ...Option) *Adapter {
	a := &Adapter{
		name:      name,
		sink:      sink,
		logger:    logging.Nop(),
		languages: provider.NewLanguageSet(cfg.Strings(KeyLanguages)...),
		docs:      document.NewStore(),
		table:     NewTable(),
	}
	a.configure(cfg)
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.WithComponent("snippets").WithField("provider", name)
	return a
}

// Factory returns a provider.Factory building snippet providers.
func Factory(name string, opts ...Option) provider.Factory {
	return func(cfg provider.Config, sink provider.Sink) (provider.Provider, error) {
		return New(name, cfg, sink, opts...), nil
	}
}

func (a *Adapter) configure(cfg provider.Config) {
	a.file = cfg.String(KeyFile, "")
	if a.file != "" {
		a.file = filepath.Clean(a.file)
	}
	a.builtins = cfg.Bool(KeyBuiltins, true)
}

// Name implements provider.Provider.
func (a *Adapter) Name() string { return a.name }

// Supports implements provider.Provider.
func (a *Adapter) Supports(language string) bool {
	return a.languages.Has(language)
}

// Start loads the snippet table. A malformed file fails the start; a
// missing one leaves the built-ins.
func (a *Adapter) Start() error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	table, err := a.load()
	if err != nil {
		a.mu.Unlock()
		return err
	}
	a.table = table
	a.running = true
	a.mu.Unlock()

	a.logger.WithField("snippets", table.Len()).Info("snippets loaded")
	a.sink.Ready(a.name, a.languages.Sorted())
	return nil
}

// load builds a table from the configuration. Called with mu held.
func (a *Adapter) load() (*Table, error) {
	var sets []map[string][]Snippet
	if a.builtins {
		sets = append(sets, Builtins())
	}
	if a.file != "" {
		set, err := Load(a.file)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			a.logger.WithField("file", a.file).Debug("snippet file missing")
		case err != nil:
			return nil, fmt.Errorf("%s: %w", a.file, err)
		default:
			sets = append(sets, set)
		}
	}
	return NewTable(sets...), nil
}

// reload rebuilds the table, keeping the old one on error.
func (a *Adapter) reload() {
	a.mu.Lock()
	defer a.mu.Unlock()
	table, err := a.load()
	if err != nil {
		a.logger.Warn("reload failed: %v", err)
		return
	}
	a.table = table
	a.logger.WithField("snippets", table.Len()).Info("snippets reloaded")
}

// Shutdown implements provider.Provider.
func (a *Adapter) Shutdown() error {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	return nil
}

// IsAlive implements provider.Provider.
func (a *Adapter) IsAlive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// SendNotification implements provider.Provider. Saving the snippet file
// reloads it.
func (a *Adapter) SendNotification(language string, kind provider.Kind, payload provider.Payload) {
	switch kind {
	case provider.KindConfigChange:
		a.mu.Lock()
		a.configure(provider.Config(payload.Settings))
		a.mu.Unlock()
		a.reload()
		return
	case provider.KindDidOpen, provider.KindDidChange, provider.KindDidSave, provider.KindDidClose:
	default:
		return
	}

	if _, _, err := a.docs.Apply(language, kind, payload); err != nil {
		a.logger.WithField("path", payload.Path).Debug("mirror: %v", err)
	}
	if kind != provider.KindDidSave {
		return
	}
	a.mu.Lock()
	file := a.file
	a.mu.Unlock()
	if file != "" && filepath.Clean(payload.Path) == file {
		a.reload()
	}
}

// SendRequest implements provider.Provider. Only completion is served;
// other kinds are answered with nil.
func (a *Adapter) SendRequest(language string, kind provider.Kind, payload provider.Payload, id int64) {
	a.mu.Lock()
	running, table := a.running, a.table
	a.mu.Unlock()
	if !running {
		return
	}
	if kind != provider.KindCompletion {
		a.sink.Response(a.name, id, nil)
		return
	}

	typed := payload.Prefix
	if typed == "" {
		text := payload.Text
		if doc, ok := a.docs.Get(payload.Path); ok {
			text = doc.Text
		}
		typed = document.WordBefore(text, payload.Line, payload.Column)
	}
	if typed == "" {
		a.sink.Response(a.name, id, nil)
		return
	}

	matches := table.Match(language, typed)
	if len(matches) == 0 {
		a.sink.Response(a.name, id, nil)
		return
	}
	items := make([]provider.CompletionItem, 0, len(matches))
	for _, s := range matches {
		items = append(items, provider.CompletionItem{
			Label:            s.Prefix,
			InsertText:       s.Body,
			Kind:             provider.CompletionSnippet,
			SortText:         s.Prefix,
			Detail:           s.Description,
			Documentation:    s.Body,
			InsertTextFormat: provider.FormatSnippet,
		})
	}
	a.sink.Response(a.name, id, items)
}
