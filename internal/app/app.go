// Package app composes the completion core: one event loop owning the
// provider registry, the request router and the notification bus, plus the
// configuration store and workspace watchers that feed them. Core is the
// north interface editors and front ends talk to.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/codeintel/internal/bus"
	"github.com/dshills/codeintel/internal/config"
	"github.com/dshills/codeintel/internal/logging"
	"github.com/dshills/codeintel/internal/loop"
	"github.com/dshills/codeintel/internal/merge"
	"github.com/dshills/codeintel/internal/provider"
	"github.com/dshills/codeintel/internal/registry"
	"github.com/dshills/codeintel/internal/router"
	"github.com/dshills/codeintel/internal/workspace"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// shutdownGrace bounds provider shutdown when the caller's context has no
// deadline.
const shutdownGrace = 5 * time.Second

// Options configures a Core.
type Options struct {
	// Settings are the process settings. The zero value means
	// config.DefaultSettings; otherwise out-of-range fields are normalized
	// and a zero WaitForMS means no wait.
	Settings config.Settings

	// Logger receives every component's logs. Defaults to a no-op logger.
	Logger *logging.Logger

	// Clock drives request, heartbeat and restart timers.
	// Defaults to the real clock.
	Clock loop.Clock

	// Providers are the registered backends. Defaults to Builtin.
	Providers []ProviderSpec

	// Store holds provider configuration. Defaults to the store under
	// Settings.StateDir.
	Store *config.Store

	// Root is the default workspace root. Defaults to the working directory.
	Root string

	// WatchStore reloads provider configuration when the store file changes.
	WatchStore bool

	// WatchWorkspace forwards file system changes under Root to providers
	// as watched_files_change broadcasts.
	WatchWorkspace bool

	// WatchInclude and WatchExclude filter workspace events by glob.
	WatchInclude []string
	WatchExclude []string
}

// Core is the completion aggregator. All registry, router and bus state is
// confined to the core loop; the exported methods are safe for concurrent
// use and marshal work onto it.
type Core struct {
	id      string
	logger  *logging.Logger
	clock   loop.Clock
	metrics *Metrics

	settingsMu sync.RWMutex
	settings   config.Settings

	loop     *loop.Loop
	registry *registry.Registry
	router   *router.Router
	bus      *bus.Bus
	resolver *workspace.Resolver
	store    *config.Store

	specs   map[string]ProviderSpec
	order   []string
	enabled map[string]bool // loop-confined

	storeWatcher *config.StoreWatcher
	fileWatcher  *workspace.Watcher

	downMu       sync.Mutex
	downHandlers []func(name string, err error)

	running atomic.Bool
	stopped atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	opts    Options
}

// New builds a core. Providers are registered but not started; call Start.
func New(opts Options) (*Core, error) {
	s := opts.Settings
	if s.IsZero() {
		s = config.DefaultSettings()
	}
	s.Normalize()

	c := &Core{
		id:       uuid.NewString(),
		settings: s,
		logger:   opts.Logger,
		clock:    opts.Clock,
		metrics:  NewMetrics(),
		specs:    make(map[string]ProviderSpec),
		enabled:  make(map[string]bool),
		done:     make(chan struct{}),
		opts:     opts,
	}
	if c.logger == nil {
		c.logger = logging.Nop()
	}
	if c.clock == nil {
		c.clock = loop.RealClock{}
	}
	c.logger = c.logger.WithField("instance", c.id)

	if err := c.bootstrap(); err != nil {
		return nil, err
	}
	return c, nil
}

// bootstrap builds the components in dependency order.
func (c *Core) bootstrap() error {
	log := c.logger

	// 1. Loop - every core mutation runs here.
	c.loop = loop.New(loop.WithLogger(log))

	// 2. Registry - provider lifecycles.
	c.registry = registry.New(c.loop,
		registry.WithClock(c.clock),
		registry.WithLogger(log),
		registry.WithConfig(registryConfig(c.settings)),
	)

	// 3. Router - dispatch and collection.
	c.router = router.New(c.loop, c.registry,
		router.WithClock(c.clock),
		router.WithLogger(log),
		router.WithConfig(routerConfig(c.settings)),
		router.WithMerger(mergerFor(c.settings)),
	)
	c.registry.OnResponse(c.router.HandleResponse)
	c.registry.OnStatus(c.handleStatus)

	// 4. Bus and root resolver.
	c.bus = bus.New(c.registry, bus.WithLogger(log))
	resolverOpts := []workspace.ResolverOption{workspace.WithResolverLogger(log)}
	if c.opts.Root != "" {
		resolverOpts = append(resolverOpts, workspace.WithDefaultRoot(c.opts.Root))
	}
	c.resolver = workspace.NewResolver(c.bus, resolverOpts...)

	// 5. Provider configuration.
	c.store = c.opts.Store
	if c.store == nil {
		c.store = config.NewStore(c.settings.StorePath())
	}
	specs := c.opts.Providers
	if specs == nil {
		specs = Builtin(log)
	}
	return c.register(specs)
}

// ID returns the instance id that tags this core's log lines.
func (c *Core) ID() string { return c.id }

// Settings returns the process settings in effect.
func (c *Core) Settings() config.Settings {
	c.settingsMu.RLock()
	defer c.settingsMu.RUnlock()
	return c.settings
}

// Metrics returns the north-side request metrics.
func (c *Core) Metrics() *Metrics { return c.metrics }

// Start runs the loop, starts every enabled provider and the watchers.
func (c *Core) Start(ctx context.Context) error {
	if c.stopped.Load() {
		return ErrNotRunning
	}
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go func() {
		defer close(c.done)
		if err := c.loop.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, loop.ErrStopped) {
			c.logger.Error("core loop exited: %v", err)
		}
	}()

	var startErr error
	if !c.loop.Call(ctx, func() { startErr = c.startEnabled() }) {
		return ctx.Err()
	}
	if startErr != nil {
		c.logger.Warn("some providers failed to start: %v", startErr)
	}

	if c.opts.WatchStore {
		if err := c.watchStore(); err != nil {
			c.logger.Warn("%v", NewComponentError("store", "watch", err))
		}
	}
	if c.opts.WatchWorkspace {
		if err := c.watchWorkspace(); err != nil {
			c.logger.Warn("%v", NewComponentError("workspace", "watch", err))
		}
	}

	c.logger.WithField("providers", c.order).Info("core started")
	return nil
}

// Shutdown stops the watchers, moves every provider to Stopped, shuts the
// instances down in parallel and stops the loop. Pending requests are
// dropped without a response.
func (c *Core) Shutdown(ctx context.Context) error {
	if !c.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var done context.CancelFunc
		ctx, done = context.WithTimeout(ctx, shutdownGrace)
		defer done()
	}

	if c.storeWatcher != nil {
		c.storeWatcher.Close()
	}
	if c.fileWatcher != nil {
		c.fileWatcher.Close()
	}

	var instances []provider.Provider
	if c.running.Load() {
		if !c.loop.Call(ctx, func() { instances = c.registry.StopAll() }) {
			c.logger.Warn("core loop did not answer during shutdown")
		}
	} else {
		instances = c.registry.StopAll()
	}

	err := shutdownAll(ctx, instances)

	c.loop.Stop()
	if c.cancel != nil {
		c.cancel()
		select {
		case <-c.done:
		case <-ctx.Done():
		}
	}
	c.logger.Info("core stopped")
	return err
}

// shutdownAll shuts instances down concurrently and waits for all of them
// or for ctx.
func shutdownAll(ctx context.Context, instances []provider.Provider) error {
	var g errgroup.Group
	for _, inst := range instances {
		g.Go(func() error {
			if err := provider.Safe(inst.Shutdown); err != nil {
				return fmt.Errorf("%s: %w", inst.Name(), err)
			}
			if err := provider.Wait(ctx, inst); err != nil {
				return fmt.Errorf("%s: %w", inst.Name(), ErrShutdownTimeout)
			}
			return nil
		})
	}

	result := make(chan error, 1)
	go func() { result <- g.Wait() }()
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ErrShutdownTimeout
	}
}

// ApplySettings re-applies process settings to the running core. Timers
// already armed keep their period; requests dispatched afterwards use the
// new budget and merge order.
func (c *Core) ApplySettings(s config.Settings) {
	s.Normalize()
	c.settingsMu.Lock()
	c.settings = s
	c.settingsMu.Unlock()
	c.loop.Post(func() {
		c.registry.SetConfig(registryConfig(s))
		c.router.SetConfig(routerConfig(s))
		c.router.SetMerger(mergerFor(s))
		c.logger.SetLevel(logging.ParseLevel(s.Log.Level))
	})
}

// handleStatus runs on the loop for every provider transition.
func (c *Core) handleStatus(ev registry.Event) {
	if ev.From == provider.StatusRunning && ev.To != provider.StatusRunning {
		c.router.ProviderLost(ev.Name)
	}
	if !ev.IsDown() {
		return
	}
	c.downMu.Lock()
	handlers := append([]func(string, error){}, c.downHandlers...)
	c.downMu.Unlock()
	for _, fn := range handlers {
		fn(ev.Name, ev.Err)
	}
}

// OnProviderDown registers fn for the user-visible provider-down signal.
// fn runs on the core loop and must not block.
func (c *Core) OnProviderDown(fn func(name string, err error)) {
	c.downMu.Lock()
	c.downHandlers = append(c.downHandlers, fn)
	c.downMu.Unlock()
}

func registryConfig(s config.Settings) registry.Config {
	return registry.Config{
		MaxRestartAttempts: s.MaxRestartAttempts,
		RestartInterval:    s.RestartInterval(),
		HeartbeatInterval:  s.HeartbeatInterval(),
	}
}

func routerConfig(s config.Settings) router.Config {
	sources := make(map[provider.Kind][]string, len(s.WaitFor))
	for name, providers := range s.WaitFor {
		kind, err := provider.ParseKind(name)
		if err != nil || !kind.IsRequest() {
			continue
		}
		sources[kind] = append([]string(nil), providers...)
	}
	return router.Config{
		WaitFor:     s.WaitForDuration(),
		WaitSources: sources,
		MaxLive:     s.MaxLiveRequests,
	}
}

func mergerFor(s config.Settings) *merge.Merger {
	var opts []merge.Option
	for name, order := range s.Priority {
		kind, err := provider.ParseKind(name)
		if err != nil || !kind.IsRequest() {
			continue
		}
		opts = append(opts, merge.WithOrder(kind, order))
	}
	return merge.New(opts...)
}
