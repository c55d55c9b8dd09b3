package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dshills/codeintel/internal/document"
	"github.com/dshills/codeintel/internal/logging"
	"github.com/dshills/codeintel/internal/loop"
	"github.com/dshills/codeintel/internal/provider"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/tidwall/gjson"
)

// ErrConnectionLost is reported when the server exits or the connection
// drops while the adapter is running.
var ErrConnectionLost = errors.New("language server connection lost")

const (
	shutdownGrace = 2 * time.Second
	dialTimeout   = 10 * time.Second
)

// Adapter is a provider.Provider backed by a language server.
type Adapter struct {
	name      string
	cfg       provider.Config
	sink      provider.Sink
	dial      Dialer
	logger    *logging.Logger
	languages provider.LanguageSet
	docs      *document.Store

	mu        sync.Mutex
	gen       uint64
	ctx       context.Context
	cancel    context.CancelFunc
	worker    *loop.Loop
	conn      *jsonrpc2.Conn
	transport *Transport
	ready     bool
	stopped   chan struct{}
	syncKind  int
	settings  map[string]any
	root      string
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithDialer replaces the transport dialer.
func WithDialer(d Dialer) Option {
	return func(a *Adapter) {
		a.dial = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Adapter) {
		a.logger = l
	}
}

// New creates an adapter for cfg that reports through sink.
func New(name string, cfg provider.Config, sink provider.Sink, opts ...Option) *Adapter {
	a := &Adapter{
		name:      name,
		cfg:       cfg.Clone(),
		sink:      sink,
		dial:      DialConfig,
		logger:    logging.Nop(),
		languages: provider.NewLanguageSet(cfg.Strings(KeyLanguages)...),
		docs:      document.NewStore(),
		syncKind:  SyncFull,
		settings:  cfg.Map(KeySettings),
		root:      cfg.String(KeyRootPath, ""),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.WithComponent("lsp").WithField("provider", name)
	if a.root == "" {
		if wd, err := os.Getwd(); err == nil {
			a.root = wd
		}
	}
	return a
}

// Factory returns a provider.Factory building adapters registered as name.
func Factory(name string, opts ...Option) provider.Factory {
	return func(cfg provider.Config, sink provider.Sink) (provider.Provider, error) {
		if cfg.String(provider.KeyCommand, "") == "" && !cfg.Bool(provider.KeyExternal, false) {
			return nil, fmt.Errorf("%w: %s needs a command or an external server", provider.ErrInvalidConfig, name)
		}
		return New(name, cfg, sink, opts...), nil
	}
}

// Name implements provider.Provider.
func (a *Adapter) Name() string { return a.name }

// Supports implements provider.Provider.
func (a *Adapter) Supports(language string) bool {
	return a.languages.Has(language)
}

// Start hands the connection to the adapter's worker and returns. Ready is
// reported once the server has answered initialize; a server that cannot
// be reached is reported down.
func (a *Adapter) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.worker != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.gen++
	gen := a.gen
	a.ctx, a.cancel = ctx, cancel
	a.ready = false

	a.worker = loop.New(loop.WithLogger(a.logger))
	go a.worker.Run(ctx)
	a.worker.Post(func() { a.connect(ctx, gen) })

	a.logger.Info("language server starting")
	return nil
}

// connect opens the transport and runs the handshake on the worker, so
// requests and notifications queue behind it.
func (a *Adapter) connect(ctx context.Context, gen uint64) {
	dialCtx, done := context.WithTimeout(ctx, dialTimeout)
	t, err := a.dial(dialCtx, a.cfg, a.logger)
	done()
	if err != nil {
		a.fail(gen, fmt.Errorf("connect: %w", err))
		return
	}

	stream := jsonrpc2.NewBufferedStream(t.Stream, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(ctx, stream, &handler{adapter: a})

	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		_ = conn.Close()
		if t.Kill != nil {
			_ = t.Kill()
		}
		return
	}
	a.conn, a.transport = conn, t
	a.mu.Unlock()

	go a.watch(gen, conn, t.Exited)
	a.initialize(ctx, gen, conn)
}

func (a *Adapter) initialize(ctx context.Context, gen uint64, conn *jsonrpc2.Conn) {
	a.mu.Lock()
	root := a.root
	a.mu.Unlock()

	params := InitializeParams{
		ProcessID:             os.Getpid(),
		ClientInfo:            &ClientInfo{Name: "codeintel"},
		RootURI:               FilePathToURI(root),
		RootPath:              root,
		Capabilities:          DefaultClientCapabilities(),
		InitializationOptions: map[string]any(a.cfg.Map(KeyInitOptions)),
		WorkspaceFolders:      []WorkspaceFolder{folder(root)},
	}

	var result json.RawMessage
	if err := conn.Call(ctx, MethodInitialize, params, &result); err != nil {
		a.fail(gen, fmt.Errorf("initialize: %w", err))
		return
	}

	syncKind := SyncFull
	syncCap := gjson.GetBytes(result, "capabilities.textDocumentSync")
	switch {
	case syncCap.Type == gjson.Number:
		syncKind = int(syncCap.Int())
	case syncCap.IsObject() && syncCap.Get("change").Exists():
		syncKind = int(syncCap.Get("change").Int())
	}

	if err := conn.Notify(ctx, MethodInitialized, struct{}{}); err != nil {
		a.logger.Debug("initialized: %v", err)
	}

	// A restarted server knows nothing about the files the editor has open.
	for _, path := range a.docs.Paths() {
		doc, ok := a.docs.Get(path)
		if !ok {
			continue
		}
		_ = conn.Notify(ctx, MethodDidOpen, DidOpenTextDocumentParams{TextDocument: TextDocumentItem{
			URI: FilePathToURI(path), LanguageID: doc.Language, Version: doc.Version, Text: doc.Text,
		}})
	}

	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		return
	}
	a.syncKind = syncKind
	a.ready = true
	settings := a.settings
	a.mu.Unlock()

	if len(settings) > 0 {
		_ = conn.Notify(ctx, MethodDidChangeConfiguration, DidChangeConfigurationParams{Settings: settings})
	}

	a.logger.WithField("server", gjson.GetBytes(result, "serverInfo.name").String()).Info("language server ready")
	a.sink.Ready(a.name, a.languages.Sorted())
}

// watch reports the server as down when its process exits or the
// connection drops, unless the adapter is shutting down.
func (a *Adapter) watch(gen uint64, conn *jsonrpc2.Conn, exited <-chan struct{}) {
	select {
	case <-conn.DisconnectNotify():
	case <-exited:
	}
	a.fail(gen, ErrConnectionLost)
}

// fail reports generation gen down and releases it, so the next Start
// connects afresh.
func (a *Adapter) fail(gen uint64, err error) {
	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		return
	}
	teardown := a.detach()
	a.mu.Unlock()

	a.logger.Warn("language server down: %v", err)
	a.sink.Down(a.name, err)
	if teardown != nil {
		go teardown()
	}
}

// current reports whether gen is the started instance.
func (a *Adapter) current(gen uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gen == gen
}

// connection returns the open connection of generation gen, or nil.
func (a *Adapter) connection(gen uint64) *jsonrpc2.Conn {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gen != gen {
		return nil
	}
	return a.conn
}

// SendRequest implements provider.Provider.
func (a *Adapter) SendRequest(language string, kind provider.Kind, payload provider.Payload, id int64) {
	a.mu.Lock()
	worker, ctx, gen := a.worker, a.ctx, a.gen
	a.mu.Unlock()
	if worker == nil {
		return
	}
	worker.Post(func() { a.request(ctx, gen, language, kind, payload, id) })
}

func (a *Adapter) request(ctx context.Context, gen uint64, language string, kind provider.Kind, payload provider.Payload, id int64) {
	conn := a.connection(gen)
	if conn == nil {
		return
	}
	method, ok := requestMethod(kind)
	if !ok {
		a.sink.Response(a.name, id, nil)
		return
	}
	log := a.logger.WithFields(map[string]any{"id": id, "method": method})

	// Requests about a file the editor never opened carry its text.
	if _, open := a.docs.Get(payload.Path); !open && payload.Text != "" {
		a.notify(ctx, conn, language, provider.KindDidOpen, payload)
	}

	call, err := conn.DispatchCall(ctx, method, requestParams(kind, payload))
	if err != nil {
		log.Debug("dispatch failed: %v", err)
		return
	}
	go func() {
		var raw json.RawMessage
		if err := call.Wait(ctx, &raw); err != nil {
			log.Debug("request failed: %v", err)
			return
		}
		if !a.current(gen) {
			return
		}
		a.sink.Response(a.name, id, decodeResult(kind, raw))
	}()
}

// SendNotification implements provider.Provider.
func (a *Adapter) SendNotification(language string, kind provider.Kind, payload provider.Payload) {
	a.mu.Lock()
	worker, ctx, gen := a.worker, a.ctx, a.gen
	a.mu.Unlock()

	if kind == provider.KindConfigChange {
		a.mu.Lock()
		a.settings = payload.Settings
		a.mu.Unlock()
	}
	if kind == provider.KindWorkspaceFoldersChange && payload.Path != "" {
		a.mu.Lock()
		a.root = payload.Path
		a.mu.Unlock()
	}
	if worker == nil {
		return
	}
	worker.Post(func() { a.notify(ctx, a.connection(gen), language, kind, payload) })
}

func (a *Adapter) notify(ctx context.Context, conn *jsonrpc2.Conn, language string, kind provider.Kind, p provider.Payload) {
	method, params, ok := a.notification(language, kind, p)
	if !ok || conn == nil {
		return
	}
	if err := conn.Notify(ctx, method, params); err != nil {
		a.logger.WithField("method", method).Debug("notify failed: %v", err)
	}
}

// notification updates the document mirror and builds the message for a
// notification kind.
func (a *Adapter) notification(language string, kind provider.Kind, p provider.Payload) (string, any, bool) {
	uri := FilePathToURI(p.Path)

	switch kind {
	case provider.KindDidOpen:
		doc, err := a.docs.Open(p.Path, language, p.Version, p.Text)
		if err != nil {
			return "", nil, false
		}
		return MethodDidOpen, DidOpenTextDocumentParams{TextDocument: TextDocumentItem{
			URI: uri, LanguageID: language, Version: doc.Version, Text: doc.Text,
		}}, true

	case provider.KindDidChange:
		doc, err := a.docs.Change(p.Path, p.Version, p.Text, p.Edits)
		if err != nil {
			a.logger.WithField("path", p.Path).Debug("change dropped: %v", err)
			return "", nil, false
		}
		if a.syncKind == SyncNone {
			return "", nil, false
		}
		return MethodDidChange, DidChangeTextDocumentParams{
			TextDocument: VersionedTextDocumentIdentifier{
				TextDocumentIdentifier: TextDocumentIdentifier{URI: uri},
				Version:                doc.Version,
			},
			ContentChanges: []TextDocumentContentChangeEvent{{Text: doc.Text}},
		}, true

	case provider.KindDidSave:
		doc, open, _ := a.docs.Apply(language, kind, p)
		if !open {
			return "", nil, false
		}
		text := doc.Text
		return MethodDidSave, DidSaveTextDocumentParams{
			TextDocument: TextDocumentIdentifier{URI: uri},
			Text:         &text,
		}, true

	case provider.KindDidClose:
		if !a.docs.Close(p.Path) {
			return "", nil, false
		}
		return MethodDidClose, DidCloseTextDocumentParams{TextDocument: TextDocumentIdentifier{URI: uri}}, true

	case provider.KindWorkspaceFoldersChange:
		return MethodDidChangeWorkspaceFolders, DidChangeWorkspaceFoldersParams{Event: WorkspaceFoldersChangeEvent{
			Added:   folders(p.Added),
			Removed: folders(p.Removed),
		}}, true

	case provider.KindConfigChange:
		return MethodDidChangeConfiguration, DidChangeConfigurationParams{Settings: p.Settings}, true

	case provider.KindWatchedFilesChange:
		return MethodDidChangeWatchedFiles, DidChangeWatchedFilesParams{Changes: fileChangeEvents(p.Changes)}, true

	default:
		return "", nil, false
	}
}

// IsAlive implements provider.Provider.
func (a *Adapter) IsAlive() bool {
	a.mu.Lock()
	conn, t := a.conn, a.transport
	a.mu.Unlock()
	if conn == nil {
		return false
	}
	select {
	case <-conn.DisconnectNotify():
		return false
	default:
	}
	if t.Exited != nil {
		select {
		case <-t.Exited:
			return false
		default:
		}
	}
	return true
}

// Shutdown detaches the server and returns. The shutdown request, the exit
// notification and reaping the process run in the background; a process
// that does not exit within a short grace period is killed.
func (a *Adapter) Shutdown() error {
	a.mu.Lock()
	teardown := a.detach()
	a.mu.Unlock()
	if teardown != nil {
		go teardown()
	}
	return nil
}

// detach ends the current generation and returns the work that releases
// its server, or nil when nothing is started. Called with mu held.
func (a *Adapter) detach() func() {
	worker := a.worker
	if worker == nil {
		return nil
	}
	conn, t, cancel, wasReady := a.conn, a.transport, a.cancel, a.ready
	a.gen++
	a.conn, a.transport, a.worker, a.ready = nil, nil, nil, false
	stopped := make(chan struct{})
	a.stopped = stopped
	return func() { a.teardown(worker, conn, t, cancel, wasReady, stopped) }
}

func (a *Adapter) teardown(worker *loop.Loop, conn *jsonrpc2.Conn, t *Transport, cancel context.CancelFunc, wasReady bool, stopped chan struct{}) {
	defer close(stopped)
	worker.Stop()

	if conn != nil {
		ctx, done := context.WithTimeout(context.Background(), shutdownGrace)
		if wasReady {
			if err := conn.Call(ctx, MethodShutdown, nil, nil); err != nil {
				a.logger.Debug("shutdown request: %v", err)
			}
			_ = conn.Notify(ctx, MethodExit, nil)
		}
		done()
		if err := conn.Close(); err != nil && !errors.Is(err, jsonrpc2.ErrClosed) {
			a.logger.Debug("close: %v", err)
		}
	}
	cancel()

	if t != nil && t.Exited != nil {
		select {
		case <-t.Exited:
		case <-time.After(shutdownGrace):
			if t.Kill != nil {
				_ = t.Kill()
			}
			<-t.Exited
		}
	}
	a.logger.Info("language server stopped")
}

// Wait blocks until the last shutdown has finished tearing down.
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

// Documents returns the paths the adapter mirrors.
func (a *Adapter) Documents() []string {
	return a.docs.Paths()
}
