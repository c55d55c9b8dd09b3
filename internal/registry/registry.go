package registry

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dshills/codeintel/internal/config"
	"github.com/dshills/codeintel/internal/logging"
	"github.com/dshills/codeintel/internal/loop"
	"github.com/dshills/codeintel/internal/provider"
)

var (
	errHeartbeatFailed  = errors.New("heartbeat failed")
	errRestartExhausted = errors.New("restart attempts exhausted")
)

// Config configures lifecycle timing.
type Config struct {
	// MaxRestartAttempts is the restart budget after a liveness failure.
	// Default: 5
	MaxRestartAttempts int

	// RestartInterval is the delay between restart attempts.
	// Default: 10 seconds
	RestartInterval time.Duration

	// HeartbeatInterval is the liveness probe period for running providers.
	// Default: 3 seconds
	HeartbeatInterval time.Duration
}

// DefaultConfig returns the default lifecycle configuration.
func DefaultConfig() Config {
	return Config{
		MaxRestartAttempts: 5,
		RestartInterval:    10 * time.Second,
		HeartbeatInterval:  3 * time.Second,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.MaxRestartAttempts <= 0 {
		c.MaxRestartAttempts = def.MaxRestartAttempts
	}
	if c.RestartInterval <= 0 {
		c.RestartInterval = def.RestartInterval
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	return c
}

// ResponseHandler receives provider responses on the loop.
type ResponseHandler func(name string, id int64, body any)

// Handle pairs a provider instance with its registered name.
type Handle struct {
	Name     string
	Provider provider.Provider
}

type entry struct {
	name     string
	factory  provider.Factory
	config   provider.Config
	instance provider.Provider
	gen      uint64

	status       provider.Status
	since        time.Time
	languages    provider.LanguageSet
	attemptsLeft int
	restarts     int

	heartbeat      loop.Timer
	heartbeatToken uint64
	restart        loop.Timer
	restartToken   uint64
}

// Registry tracks every provider's lifecycle.
type Registry struct {
	loop   *loop.Loop
	clock  loop.Clock
	cfg    Config
	logger *logging.Logger

	entries   map[string]*entry
	order     []string
	observers []func(Event)
	responses ResponseHandler
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the timer source.
func WithClock(c loop.Clock) Option {
	return func(r *Registry) {
		r.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithConfig sets the lifecycle configuration.
func WithConfig(cfg Config) Option {
	return func(r *Registry) {
		r.cfg = cfg.normalized()
	}
}

// New creates a registry whose signals are marshaled onto l.
func New(l *loop.Loop, opts ...Option) *Registry {
	r := &Registry{
		loop:    l,
		clock:   loop.RealClock{},
		cfg:     DefaultConfig(),
		logger:  logging.Nop(),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("registry")
	return r
}

// SetConfig replaces the lifecycle configuration. Running timers keep their
// current period; the next arm uses the new values.
func (r *Registry) SetConfig(cfg Config) {
	r.cfg = cfg.normalized()
}

// OnStatus registers an observer for status changes.
func (r *Registry) OnStatus(fn func(Event)) {
	r.observers = append(r.observers, fn)
}

// OnResponse sets the handler that receives provider responses.
func (r *Registry) OnResponse(fn ResponseHandler) {
	r.responses = fn
}

// Register adds a provider in the Stopped state. The instance is built on
// first start.
func (r *Registry) Register(name string, factory provider.Factory, cfg provider.Config) error {
	if factory == nil {
		return fmt.Errorf("%s: %w", name, ErrNoFactory)
	}
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrDuplicateProvider)
	}
	r.entries[name] = &entry{
		name:    name,
		factory: factory,
		config:  cfg.Clone(),
		status:  provider.StatusStopped,
		since:   r.clock.Now(),
	}
	r.order = append(r.order, name)
	return nil
}

// Start moves a Stopped or Down provider to Starting. Starting, Running and
// Restarting providers are left alone.
func (r *Registry) Start(name string) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	switch e.status {
	case provider.StatusStarting, provider.StatusRunning, provider.StatusRestarting:
		return nil
	}
	return r.start(e)
}

// StartAll starts every registered provider in registration order and
// returns the start errors joined.
func (r *Registry) StartAll() error {
	var errs []error
	for _, name := range r.order {
		if err := r.Start(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Restart stops the provider and starts it again, whatever its state.
func (r *Registry) Restart(name string) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	r.stop(e)
	return r.start(e)
}

// Stop moves the provider to Stopped and shuts its instance down.
func (r *Registry) Stop(name string) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	return r.stop(e)
}

// StopAll moves every provider to Stopped and returns the live instances
// without shutting them down, so the caller can shut them down in parallel
// off the loop.
func (r *Registry) StopAll() []provider.Provider {
	var out []provider.Provider
	for _, name := range r.order {
		e := r.entries[name]
		if e.status == provider.StatusStopped {
			continue
		}
		r.cancelTimers(e)
		r.setStatus(e, provider.StatusStopped, nil)
		e.languages = nil
		if e.instance != nil {
			out = append(out, e.instance)
		}
	}
	return out
}

// Reconfigure applies a new provider configuration. When a restart-sensitive
// key changed, the current instance is shut down and a new one is built and
// started; otherwise a running provider receives a config_change
// notification. The first result reports whether a restart happened.
func (r *Registry) Reconfigure(name string, cfg provider.Config) (bool, error) {
	e, err := r.lookup(name)
	if err != nil {
		return false, err
	}

	old := e.config
	e.config = cfg.Clone()

	if !config.RestartRequired(old, cfg) {
		if e.status == provider.StatusRunning && e.instance != nil {
			payload := provider.Payload{Settings: map[string]any(cfg.Clone())}
			inst := e.instance
			if err := provider.Safe(func() error {
				inst.SendNotification("", provider.KindConfigChange, payload)
				return nil
			}); err != nil {
				r.logger.WithField("provider", name).Debug("config push failed: %v", err)
			}
		}
		return false, nil
	}

	r.logger.WithFields(map[string]any{
		"provider": name,
		"keys":     config.RestartChanges(old, cfg),
	}).Info("restart-sensitive configuration changed")

	active := e.status != provider.StatusStopped
	if active {
		r.stop(e)
	}
	e.instance = nil
	if !active {
		return false, nil
	}
	return true, r.start(e)
}

// Status returns the provider's current status.
func (r *Registry) Status(name string) provider.Status {
	if e, ok := r.entries[name]; ok {
		return e.status
	}
	return provider.StatusStopped
}

// Config returns a copy of the provider's configuration.
func (r *Registry) Config(name string) provider.Config {
	if e, ok := r.entries[name]; ok {
		return e.config.Clone()
	}
	return nil
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Running returns the Running providers that support language, in
// registration order. An empty language selects every Running provider.
func (r *Registry) Running(language string) []Handle {
	var out []Handle
	for _, name := range r.order {
		e := r.entries[name]
		if e.status != provider.StatusRunning || e.instance == nil {
			continue
		}
		if language != "" && !r.supports(e, language) {
			continue
		}
		out = append(out, Handle{Name: name, Provider: e.instance})
	}
	return out
}

func (r *Registry) supports(e *entry, language string) bool {
	ok := false
	err := provider.Safe(func() error {
		ok = e.instance.Supports(language)
		return nil
	})
	if err != nil {
		r.logger.WithField("provider", e.name).Debug("supports: %v", err)
		return false
	}
	return ok
}

// Languages returns the union of languages reported by Running providers,
// in lexical order. The wildcard is not included.
func (r *Registry) Languages() []string {
	set := make(map[string]struct{})
	for _, name := range r.order {
		e := r.entries[name]
		if e.status != provider.StatusRunning {
			continue
		}
		for l := range e.languages {
			if l != provider.Wildcard {
				set[l] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns the state of every provider in registration order.
func (r *Registry) Snapshot() []Info {
	out := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		out = append(out, Info{
			Name:         name,
			Status:       e.status,
			Languages:    e.languages.Sorted(),
			AttemptsLeft: e.attemptsLeft,
			Since:        e.since,
			Restarts:     e.restarts,
		})
	}
	return out
}

func (r *Registry) lookup(name string) (*entry, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownProvider)
	}
	return e, nil
}

func (r *Registry) build(e *entry) error {
	e.gen++
	inst, err := e.factory(e.config.Clone(), &sink{r: r, name: e.name, gen: e.gen})
	if err != nil {
		return err
	}
	if inst == nil {
		return fmt.Errorf("%s: factory returned nil provider", e.name)
	}
	e.instance = inst
	return nil
}

func (r *Registry) start(e *entry) error {
	r.setStatus(e, provider.StatusStarting, nil)
	if e.instance == nil {
		if err := r.build(e); err != nil {
			r.fail(e, err)
			return err
		}
	}
	if err := provider.Safe(e.instance.Start); err != nil {
		r.fail(e, err)
		return err
	}
	return nil
}

func (r *Registry) fail(e *entry, err error) {
	r.cancelTimers(e)
	r.setStatus(e, provider.StatusDown, err)
}

func (r *Registry) stop(e *entry) error {
	if e.status == provider.StatusStopped {
		return nil
	}
	r.cancelTimers(e)
	r.setStatus(e, provider.StatusStopped, nil)
	e.languages = nil
	if e.instance == nil {
		return nil
	}
	return provider.Safe(e.instance.Shutdown)
}

func (r *Registry) setStatus(e *entry, to provider.Status, cause error) {
	from := e.status
	if from == to {
		return
	}
	if !ValidTransition(from, to) {
		r.logger.WithField("provider", e.name).Error("%v", &TransitionError{Name: e.name, From: from, To: to})
		return
	}
	e.status = to
	e.since = r.clock.Now()

	log := r.logger.WithFields(map[string]any{
		"provider": e.name,
		"from":     from.String(),
		"to":       to.String(),
	})
	switch to {
	case provider.StatusDown:
		log.WithField("error", cause).Warn("provider down")
	case provider.StatusRestarting:
		log.WithField("error", cause).Info("provider restarting")
	default:
		log.Debug("provider status changed")
	}

	ev := Event{
		Name:         e.name,
		From:         from,
		To:           to,
		AttemptsLeft: e.attemptsLeft,
		Err:          cause,
		Time:         e.since,
	}
	for _, fn := range r.observers {
		fn(ev)
	}
}
