package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/dshills/codeintel/internal/document"
	"github.com/dshills/codeintel/internal/logging"
	"github.com/dshills/codeintel/internal/loop"
	"github.com/dshills/codeintel/internal/provider"
	"github.com/tidwall/gjson"
)

var (
	// ErrNotReady is reported when the daemon never answers /ready.
	ErrNotReady = errors.New("engine never became ready")
	// ErrProcessExited is reported when a spawned daemon exits.
	ErrProcessExited = errors.New("engine process exited")
)

const (
	shutdownGrace = 2 * time.Second
	readyAttempts = 50
)

// Adapter is a provider.Provider backed by an HTTP completion daemon.
type Adapter struct {
	name      string
	cfg       provider.Config
	sink      provider.Sink
	logger    *logging.Logger
	languages provider.LanguageSet
	docs      *document.Store
	http      *http.Client
	interval  time.Duration

	mu      sync.Mutex
	gen     uint64
	ctx     context.Context
	cancel  context.CancelFunc
	worker  *loop.Loop
	client  *client
	proc    *process
	ready   bool
	lost    bool
	stopped chan struct{}
	root    string
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Adapter) {
		a.logger = l
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) {
		a.http = c
	}
}

// WithPollInterval sets the delay between readiness probes.
func WithPollInterval(d time.Duration) Option {
	return func(a *Adapter) {
		a.interval = d
	}
}

// New creates an adapter for cfg that reports through sink.
func New(name string, cfg provider.Config, sink provider.Sink, opts ...Option) *Adapter {
	a := &Adapter{
		name:      name,
		cfg:       cfg.Clone(),
		sink:      sink,
		logger:    logging.Nop(),
		languages: provider.NewLanguageSet(cfg.Strings(KeyLanguages)...),
		docs:      document.NewStore(),
		http:      &http.Client{},
		interval:  100 * time.Millisecond,
		root:      cfg.String(KeyRootPath, ""),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.WithComponent("engine").WithField("provider", name)
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
		if cfg.Int(provider.KeyPort, 0) <= 0 {
			return nil, fmt.Errorf("%w: %s needs a port", provider.ErrInvalidConfig, name)
		}
		if !cfg.Bool(provider.KeyExternal, false) && cfg.String(provider.KeyCommand, "") == "" {
			return nil, fmt.Errorf("%w: %s needs a command or an external daemon", provider.ErrInvalidConfig, name)
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

// Start validates the configuration and returns; spawning the daemon and
// polling for readiness happen in the background.
func (a *Adapter) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.worker != nil {
		return nil
	}

	host := a.cfg.String(provider.KeyHost, "127.0.0.1")
	port := a.cfg.Int(provider.KeyPort, 0)
	if port <= 0 {
		return fmt.Errorf("%w: no port", provider.ErrInvalidConfig)
	}
	spawn := !a.cfg.Bool(provider.KeyExternal, false)
	if spawn && a.cfg.String(provider.KeyCommand, "") == "" {
		return fmt.Errorf("%w: no command", provider.ErrInvalidConfig)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.gen++
	gen := a.gen
	a.ctx, a.cancel = ctx, cancel
	a.client = newClient("http://"+net.JoinHostPort(host, strconv.Itoa(port)), a.http)
	a.proc = nil
	a.ready, a.lost = false, false

	a.worker = loop.New(loop.WithLogger(a.logger))
	go a.worker.Run(ctx)
	go a.launch(ctx, gen, a.client, spawn, a.root)

	a.logger.WithField("url", a.client.base).Info("engine starting")
	return nil
}

// launch spawns the daemon when the adapter owns it and waits for it to
// answer /ready.
func (a *Adapter) launch(ctx context.Context, gen uint64, c *client, spawn bool, root string) {
	var proc *process
	if spawn {
		p, err := startProcess(a.cfg.String(provider.KeyCommand, ""), a.cfg.Strings(provider.KeyArgs), root, a.logger)
		if err != nil {
			a.fail(gen, err)
			return
		}
		a.mu.Lock()
		if a.gen != gen {
			a.mu.Unlock()
			p.stop(0)
			return
		}
		a.proc = p
		a.mu.Unlock()
		proc = p
	}
	a.awaitReady(ctx, gen, c, proc)
}

func (a *Adapter) awaitReady(ctx context.Context, gen uint64, c *client, proc *process) {
	var exited <-chan struct{}
	if proc != nil {
		exited = proc.exited
	}

	for i := 0; i < readyAttempts; i++ {
		body, err := c.get(ctx, pathReady)
		if err == nil && gjson.ParseBytes(body).Bool() {
			a.becomeReady(ctx, gen, c, exited)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-exited:
			a.fail(gen, ErrProcessExited)
			return
		case <-time.After(a.interval):
		}
	}
	a.logger.Warn("engine not ready after %d probes", readyAttempts)
	a.fail(gen, ErrNotReady)
}

func (a *Adapter) becomeReady(ctx context.Context, gen uint64, c *client, exited <-chan struct{}) {
	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		return
	}
	a.ready = true
	worker := a.worker
	a.mu.Unlock()

	// A restarted daemon knows nothing about the buffers the editor has open.
	for _, path := range a.docs.Paths() {
		doc, ok := a.docs.Get(path)
		if !ok {
			continue
		}
		worker.Post(func() {
			a.event(ctx, c, eventReadyToParse, doc.Language, provider.Payload{Path: doc.Path}, doc.Text)
		})
	}

	if exited != nil {
		go a.watch(gen, exited)
	}
	a.logger.Info("engine ready")
	a.sink.Ready(a.name, a.languages.Sorted())
}

func (a *Adapter) watch(gen uint64, exited <-chan struct{}) {
	<-exited
	a.fail(gen, ErrProcessExited)
}

// fail reports generation gen down and releases it, so the next Start
// launches afresh.
func (a *Adapter) fail(gen uint64, err error) {
	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		return
	}
	teardown := a.detach()
	a.mu.Unlock()

	a.logger.Warn("engine down: %v", err)
	a.sink.Down(a.name, err)
	if teardown != nil {
		go teardown()
	}
}

// SendRequest implements provider.Provider.
func (a *Adapter) SendRequest(language string, kind provider.Kind, payload provider.Payload, id int64) {
	a.mu.Lock()
	worker, c, ctx, gen := a.worker, a.client, a.ctx, a.gen
	a.mu.Unlock()
	if worker == nil {
		return
	}
	worker.Post(func() { a.request(ctx, gen, c, language, kind, payload, id) })
}

func (a *Adapter) request(ctx context.Context, gen uint64, c *client, language string, kind provider.Kind, payload provider.Payload, id int64) {
	path := endpoint(kind)
	if path == "" {
		a.sink.Response(a.name, id, nil)
		return
	}
	log := a.logger.WithFields(map[string]any{"id": id, "kind": string(kind)})

	if payload.Text != "" {
		if _, open := a.docs.Get(payload.Path); !open {
			if _, err := a.docs.Open(payload.Path, language, payload.Version, payload.Text); err != nil {
				log.Debug("mirror: %v", err)
			}
		}
	}
	text := a.text(payload)

	var body []byte
	var err error
	if path == pathCommand {
		body, err = commandRequest(kind, language, payload, text)
	} else {
		body, err = fileRequest(language, payload, text)
	}
	if err != nil {
		log.Debug("encode failed: %v", err)
		return
	}

	go func() {
		raw, err := c.post(ctx, path, body)
		if err != nil {
			log.Debug("request failed: %v", err)
			a.noteFailure(gen, err)
			return
		}
		if !a.current(gen) {
			return
		}
		a.sink.Response(a.name, id, decode(kind, raw, a.lookup))
	}()
}

func (a *Adapter) text(p provider.Payload) string {
	if doc, ok := a.docs.Get(p.Path); ok {
		return doc.Text
	}
	return p.Text
}

func (a *Adapter) lookup(path string) (string, bool) {
	doc, ok := a.docs.Get(path)
	return doc.Text, ok
}

// noteFailure marks the daemon unreachable so the next heartbeat fails.
func (a *Adapter) noteFailure(gen uint64, err error) {
	if !unreachable(err) {
		return
	}
	a.mu.Lock()
	if a.gen == gen {
		a.lost = true
	}
	a.mu.Unlock()
}

func (a *Adapter) current(gen uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gen == gen
}

// SendNotification implements provider.Provider. Buffer events are posted
// one at a time in issue order.
func (a *Adapter) SendNotification(language string, kind provider.Kind, payload provider.Payload) {
	a.mu.Lock()
	if kind == provider.KindWorkspaceFoldersChange && payload.Path != "" {
		a.root = payload.Path
	}
	worker, c, ctx, gen := a.worker, a.client, a.ctx, a.gen
	a.mu.Unlock()
	if worker == nil {
		return
	}
	worker.Post(func() { a.notify(ctx, gen, c, language, kind, payload) })
}

func (a *Adapter) notify(ctx context.Context, gen uint64, c *client, language string, kind provider.Kind, p provider.Payload) {
	log := a.logger.WithFields(map[string]any{"kind": string(kind), "path": p.Path})

	var event string
	switch kind {
	case provider.KindDidOpen, provider.KindDidChange:
		event = eventReadyToParse
	case provider.KindDidSave:
		event = eventSave
	case provider.KindDidClose:
		event = eventUnload
	default:
		log.Debug("notification not forwarded")
		return
	}

	doc, open, err := a.docs.Apply(language, kind, p)
	if err != nil {
		log.Debug("mirror: %v", err)
		return
	}
	if !open {
		return
	}
	text := doc.Text
	if language == "" {
		language = doc.Language
	}
	if language == "" {
		language = provider.DetectLanguage(p.Path)
	}
	if err := a.event(ctx, c, event, language, p, text); err != nil {
		a.noteFailure(gen, err)
	}
}

func (a *Adapter) event(ctx context.Context, c *client, event, language string, p provider.Payload, text string) error {
	body, err := eventRequest(event, language, p, text)
	if err != nil {
		return err
	}
	if _, err := c.post(ctx, pathEvent, body); err != nil {
		a.logger.WithField("event", event).Debug("event failed: %v", err)
		return err
	}
	return nil
}

// IsAlive implements provider.Provider.
func (a *Adapter) IsAlive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.worker == nil || a.lost {
		return false
	}
	return a.proc == nil || !a.proc.done()
}

// Shutdown detaches the daemon and returns. A daemon the adapter owns is
// asked to exit and killed after a grace period in the background; an
// external daemon is left running.
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
// its daemon, or nil when nothing is started. Called with mu held.
func (a *Adapter) detach() func() {
	worker := a.worker
	if worker == nil {
		return nil
	}
	c, proc, cancel, wasReady := a.client, a.proc, a.cancel, a.ready
	a.gen++
	a.worker, a.client, a.proc, a.ready = nil, nil, nil, false
	stopped := make(chan struct{})
	a.stopped = stopped
	return func() {
		defer close(stopped)
		worker.Stop()
		if proc != nil && wasReady {
			ctx, done := context.WithTimeout(context.Background(), shutdownGrace)
			if _, err := c.post(ctx, pathShutdown, []byte(`{}`)); err != nil {
				a.logger.Debug("shutdown request: %v", err)
			}
			done()
		}
		cancel()
		if proc != nil {
			proc.stop(shutdownGrace)
		}
		a.logger.Info("engine stopped")
	}
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
