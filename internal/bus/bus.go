// Package bus fans editor notifications out to running providers.
//
// Notifications never allocate a request id and never wait for an answer.
// The bus runs on the core loop and calls SendNotification synchronously, so
// notifications to one provider leave the core in the order they were
// issued. Adapters keep that order on their side of the boundary.
package bus

import (
	"github.com/dshills/codeintel/internal/logging"
	"github.com/dshills/codeintel/internal/provider"
	"github.com/dshills/codeintel/internal/registry"
)

// Providers is the registry view the bus reads at send time.
type Providers interface {
	Running(language string) []registry.Handle
}

// Stats counts notifications since the bus was created.
type Stats struct {
	Sent      uint64
	Delivered uint64
	Rejected  uint64
	Failed    uint64
}

// Bus delivers notifications.
type Bus struct {
	providers Providers
	logger    *logging.Logger
	stats     Stats
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Bus) {
		b.logger = l
	}
}

// New creates a bus over providers.
func New(providers Providers, opts ...Option) *Bus {
	b := &Bus{
		providers: providers,
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.WithComponent("bus")
	return b
}

// SendNotification delivers a notification to every running provider that
// supports language and returns how many providers received it. did_close
// goes to every running provider so each can release per-file state.
func (b *Bus) SendNotification(language string, kind provider.Kind, payload provider.Payload) int {
	if !kind.IsNotification() {
		b.stats.Rejected++
		b.logger.WithField("kind", string(kind)).Debug("not a notification kind")
		return 0
	}
	b.stats.Sent++

	target := language
	if kind == provider.KindDidClose {
		target = ""
	}
	return b.deliver(b.providers.Running(target), language, kind, payload)
}

// Broadcast delivers a notification once to every running provider. It
// carries process-wide changes such as workspace folders and configuration.
// A payload naming a language narrows delivery to the providers that
// support it.
func (b *Bus) Broadcast(kind provider.Kind, payload provider.Payload) int {
	if !kind.IsNotification() {
		b.stats.Rejected++
		b.logger.WithField("kind", string(kind)).Debug("not a notification kind")
		return 0
	}
	b.stats.Sent++
	return b.deliver(b.providers.Running(payload.Language), payload.Language, kind, payload)
}

// SendTo delivers a notification to a single running provider.
func (b *Bus) SendTo(name string, kind provider.Kind, payload provider.Payload) bool {
	if !kind.IsNotification() {
		b.stats.Rejected++
		return false
	}
	b.stats.Sent++
	for _, h := range b.providers.Running("") {
		if h.Name == name {
			return b.deliver([]registry.Handle{h}, payload.Language, kind, payload) == 1
		}
	}
	return false
}

// Stats returns the notification counters.
func (b *Bus) Stats() Stats {
	return b.stats
}

func (b *Bus) deliver(handles []registry.Handle, language string, kind provider.Kind, payload provider.Payload) int {
	n := 0
	for _, h := range handles {
		inst := h.Provider
		err := provider.Safe(func() error {
			inst.SendNotification(language, kind, payload)
			return nil
		})
		if err != nil {
			b.stats.Failed++
			b.logger.WithFields(map[string]any{
				"provider": h.Name,
				"kind":     string(kind),
			}).Debug("notification failed: %v", err)
			continue
		}
		n++
	}
	b.stats.Delivered += uint64(n)
	return n
}
