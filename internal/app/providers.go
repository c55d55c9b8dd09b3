package app

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/dshills/codeintel/internal/adapter/engine"
	"github.com/dshills/codeintel/internal/adapter/fallback"
	"github.com/dshills/codeintel/internal/adapter/lsp"
	"github.com/dshills/codeintel/internal/adapter/script"
	"github.com/dshills/codeintel/internal/adapter/snippets"
	"github.com/dshills/codeintel/internal/config"
	"github.com/dshills/codeintel/internal/logging"
	"github.com/dshills/codeintel/internal/provider"
	"github.com/dshills/codeintel/internal/registry"
	"github.com/dshills/codeintel/internal/workspace"
)

// keyRootPath is the configuration key the process-backed adapters read
// their workspace root from.
const keyRootPath = "root_path"

// ProviderSpec declares a provider: its registered name, how to build it and
// its versioned default configuration.
type ProviderSpec struct {
	Name     string
	Factory  provider.Factory
	Defaults config.Declared
}

// Builtin returns the bundled providers in default priority order.
func Builtin(logger *logging.Logger) []ProviderSpec {
	return []ProviderSpec{
		{Name: lsp.Name, Factory: lsp.Factory(lsp.Name, lsp.WithLogger(logger)), Defaults: lsp.Defaults()},
		{Name: engine.Name, Factory: engine.Factory(engine.Name, engine.WithLogger(logger)), Defaults: engine.Defaults()},
		{Name: fallback.Name, Factory: fallback.Factory(fallback.Name, fallback.WithLogger(logger)), Defaults: fallback.Defaults()},
		{Name: snippets.Name, Factory: snippets.Factory(snippets.Name, snippets.WithLogger(logger)), Defaults: snippets.Defaults()},
		{Name: script.Name, Factory: script.Factory(script.Name, script.WithLogger(logger)), Defaults: script.Defaults()},
	}
}

// register reconciles every declared default against the store and adds
// each provider to the registry in the Stopped state.
func (c *Core) register(specs []ProviderSpec) error {
	declared := make(map[string]config.Declared, len(specs))
	for _, spec := range specs {
		if spec.Name == "" || spec.Factory == nil {
			return &InitError{Component: "providers", Err: fmt.Errorf("incomplete provider spec %q", spec.Name)}
		}
		if _, dup := c.specs[spec.Name]; dup {
			return &InitError{Component: "providers", Err: fmt.Errorf("%s: %w", spec.Name, registry.ErrDuplicateProvider)}
		}
		c.specs[spec.Name] = spec
		c.order = append(c.order, spec.Name)
		declared[spec.Name] = spec.Defaults
	}

	effective, outcomes, err := c.store.Reconcile(declared)
	if err != nil {
		// The file is left untouched; defaults apply until it parses.
		c.logger.WithField("path", c.store.Path()).Warn("provider store unusable, using defaults: %v", err)
		effective = make(map[string]provider.Config, len(specs))
		for _, spec := range specs {
			effective[spec.Name] = provider.Config(spec.Defaults.Values).Clone()
		}
	}
	for name, out := range outcomes {
		if out.Changed() {
			c.logger.WithFields(map[string]any{
				"provider": name,
				"bump":     out.Bump.String(),
				"fresh":    out.Fresh,
				"added":    out.Added,
				"replaced": out.Replaced,
				"removed":  out.Removed,
			}).Info("provider configuration reconciled")
		}
	}

	for _, name := range c.order {
		cfg := c.withRoot(effective[name])
		if err := c.registry.Register(name, c.specs[name].Factory, cfg); err != nil {
			return &InitError{Component: "providers", Err: err}
		}
		c.enabled[name] = cfg.Bool(provider.KeyEnabled, true)
	}
	return nil
}

// withRoot fills an empty root_path with the core's default root.
func (c *Core) withRoot(cfg provider.Config) provider.Config {
	cfg = cfg.Clone()
	if cfg == nil {
		cfg = provider.Config{}
	}
	if c.opts.Root != "" && cfg.String(keyRootPath, "") == "" {
		cfg[keyRootPath] = c.opts.Root
	}
	return cfg
}

// startEnabled starts every enabled provider. It runs on the loop.
func (c *Core) startEnabled() error {
	var errs []error
	for _, name := range c.order {
		if !c.enabled[name] {
			c.logger.WithField("provider", name).Debug("provider disabled")
			continue
		}
		if err := c.registry.Start(name); err != nil {
			errs = append(errs, NewComponentError(name, "start", err))
		}
	}
	return errors.Join(errs...)
}

// applyConfig routes a provider configuration change. It runs on the loop.
// Turning "enabled" off stops the provider; turning it on starts it. Any
// other change goes through the registry's restart-or-push rule.
func (c *Core) applyConfig(name string, cfg provider.Config) error {
	if _, ok := c.specs[name]; !ok {
		return fmt.Errorf("%s: %w", name, ErrUnknownProvider)
	}
	cfg = c.withRoot(cfg)
	if reflect.DeepEqual(c.registry.Config(name), cfg) {
		return nil
	}

	was := c.enabled[name]
	now := cfg.Bool(provider.KeyEnabled, true)
	c.enabled[name] = now
	log := c.logger.WithField("provider", name)

	switch {
	case was && !now:
		log.Info("provider disabled")
		if err := c.registry.Stop(name); err != nil {
			log.Debug("stop: %v", err)
		}
		_, err := c.registry.Reconfigure(name, cfg)
		return err
	case !was && now:
		log.Info("provider enabled")
		if _, err := c.registry.Reconfigure(name, cfg); err != nil {
			return err
		}
		return c.registry.Start(name)
	default:
		restarted, err := c.registry.Reconfigure(name, cfg)
		if restarted {
			log.Info("provider restarted for new configuration")
		}
		return err
	}
}

// watchStore reloads provider configuration when the store file changes.
func (c *Core) watchStore() error {
	w, err := config.WatchStore(c.store, func(values map[string]provider.Config) {
		c.loop.Post(func() {
			names := make([]string, 0, len(values))
			for name := range values {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				if _, ok := c.specs[name]; !ok {
					continue
				}
				if err := c.applyConfig(name, values[name]); err != nil {
					c.logger.WithField("provider", name).Warn("applying configuration: %v", err)
				}
			}
		})
	}, config.WithWatchClock(c.clock), config.WithWatchLogger(c.logger))
	if err != nil {
		return err
	}
	c.storeWatcher = w
	return nil
}

// watchWorkspace broadcasts file system changes under the default root.
func (c *Core) watchWorkspace() error {
	root := c.opts.Root
	if root == "" {
		root = workspace.DefaultRoot()
	}
	opts := []workspace.WatcherOption{
		workspace.WithWatcherClock(c.clock),
		workspace.WithWatcherLogger(c.logger),
	}
	if len(c.opts.WatchInclude) > 0 {
		opts = append(opts, workspace.WithInclude(c.opts.WatchInclude...))
	}
	if len(c.opts.WatchExclude) > 0 {
		opts = append(opts, workspace.WithExclude(c.opts.WatchExclude...))
	}
	w, err := workspace.NewWatcher(root, func(changes []provider.FileChange) {
		c.Broadcast(provider.KindWatchedFilesChange, provider.Payload{Changes: changes})
	}, opts...)
	if err != nil {
		return err
	}
	c.fileWatcher = w
	return nil
}
