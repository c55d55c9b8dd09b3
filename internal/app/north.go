package app

import (
	"context"
	"time"

	"github.com/dshills/codeintel/internal/bus"
	"github.com/dshills/codeintel/internal/provider"
	"github.com/dshills/codeintel/internal/registry"
	"github.com/dshills/codeintel/internal/router"
)

// SendRequest allocates a request id and dispatches the request on the core
// loop. The id is returned immediately. originator receives at most one
// response, possibly none when a newer request of the same kind supersedes
// this one.
func (c *Core) SendRequest(language string, kind provider.Kind, payload provider.Payload, originator router.Originator) int64 {
	id := c.router.NextID()
	c.metrics.RecordRequest()
	if !c.loop.Post(func() { c.router.Dispatch(id, language, kind, payload, originator) }) {
		c.logger.WithField("id", id).Debug("request after shutdown dropped")
	}
	return id
}

// SendNotification delivers a notification to the running providers that
// support language.
func (c *Core) SendNotification(language string, kind provider.Kind, payload provider.Payload) {
	c.metrics.RecordNotification()
	c.loop.Post(func() { c.bus.SendNotification(language, kind, payload) })
}

// Broadcast delivers a notification to every running provider regardless
// of language.
func (c *Core) Broadcast(kind provider.Kind, payload provider.Payload) {
	c.metrics.RecordNotification()
	c.loop.Post(func() { c.bus.Broadcast(kind, payload) })
}

// Detach drops every live request of originator. Use it when an editor
// view is torn down.
func (c *Core) Detach(originator router.Originator) {
	c.loop.Post(func() { c.router.Detach(originator) })
}

// waiter is the originator behind Request.
type waiter struct {
	ch chan any
}

func (w *waiter) HandleResponse(_ provider.Kind, body any) {
	select {
	case w.ch <- body:
	default:
	}
}

// Request sends a request and blocks until its merged body arrives or ctx
// ends. A nil body with a nil error means no provider had an answer.
func (c *Core) Request(ctx context.Context, language string, kind provider.Kind, payload provider.Payload) (any, error) {
	if !c.running.Load() || c.stopped.Load() {
		return nil, ErrNotRunning
	}
	w := &waiter{ch: make(chan any, 1)}
	start := time.Now()
	c.SendRequest(language, kind, payload, w)

	select {
	case body := <-w.ch:
		c.metrics.RecordAnswer(time.Since(start), provider.IsEmpty(body))
		return body, nil
	case <-ctx.Done():
		c.metrics.RecordAbandoned()
		c.Detach(w)
		return nil, ctx.Err()
	}
}

// SetRoot sets the workspace root for language. Providers are told through
// a workspace_folders_change notification when the root actually changed.
func (c *Core) SetRoot(language, path string) {
	c.loop.Post(func() { c.resolver.Set(language, path) })
}

// Root returns the workspace root for language.
func (c *Core) Root(ctx context.Context, language string) (string, error) {
	var root string
	if err := c.call(ctx, func() { root = c.resolver.Root(language) }); err != nil {
		return "", err
	}
	return root, nil
}

// Providers returns a snapshot of every provider's state in registration
// order.
func (c *Core) Providers(ctx context.Context) ([]registry.Info, error) {
	var infos []registry.Info
	if err := c.call(ctx, func() { infos = c.registry.Snapshot() }); err != nil {
		return nil, err
	}
	return infos, nil
}

// Languages returns the languages reported by running providers.
func (c *Core) Languages(ctx context.Context) ([]string, error) {
	var langs []string
	if err := c.call(ctx, func() { langs = c.registry.Languages() }); err != nil {
		return nil, err
	}
	return langs, nil
}

// ProviderConfigs returns the effective configuration of every provider.
func (c *Core) ProviderConfigs(ctx context.Context) (map[string]provider.Config, error) {
	out := make(map[string]provider.Config, len(c.order))
	err := c.call(ctx, func() {
		for _, name := range c.order {
			out[name] = c.registry.Config(name)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetProviderConfig applies a new configuration to one provider, the same
// way an edit of the store file would.
func (c *Core) SetProviderConfig(ctx context.Context, name string, cfg provider.Config) error {
	var applyErr error
	if err := c.call(ctx, func() { applyErr = c.applyConfig(name, cfg) }); err != nil {
		return err
	}
	return applyErr
}

// RestartProvider stops and starts a provider.
func (c *Core) RestartProvider(ctx context.Context, name string) error {
	var restartErr error
	if err := c.call(ctx, func() { restartErr = c.registry.Restart(name) }); err != nil {
		return err
	}
	return restartErr
}

// Stats is a point-in-time view of the core.
type Stats struct {
	InstanceID string
	Router     router.Stats
	Bus        bus.Stats
	Providers  []registry.Info
	Metrics    MetricsSnapshot

	// LoopTasks and LoopPanics count loop task executions.
	LoopTasks  uint64
	LoopPanics uint64
}

// Stats reads counters and provider states through the loop.
func (c *Core) Stats(ctx context.Context) (Stats, error) {
	st := Stats{InstanceID: c.id, Metrics: c.metrics.Snapshot()}
	err := c.call(ctx, func() {
		st.Router = c.router.Stats()
		st.Bus = c.bus.Stats()
		st.Providers = c.registry.Snapshot()
	})
	if err != nil {
		return Stats{}, err
	}
	st.LoopTasks, st.LoopPanics = c.loop.Stats()
	return st, nil
}

// call runs fn on the loop and waits for it.
func (c *Core) call(ctx context.Context, fn func()) error {
	if !c.running.Load() || c.stopped.Load() {
		return ErrNotRunning
	}
	if !c.loop.Call(ctx, fn) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrNotRunning
	}
	return nil
}
