package provider

import (
	"sort"
	"strings"
)

//go:generate mockgen -source=provider.go -destination=mocks/provider.go -self_package=github.com/dshills/codeintel/internal/provider

// Provider is the uniform asynchronous contract exposed by every backend.
type Provider interface {
	// Name returns the unique lowercase provider name.
	Name() string

	// Start initializes the provider. It is idempotent and must not block;
	// a successful start is reported later through Sink.Ready.
	Start() error

	// Shutdown releases every transport, subprocess and timer the provider
	// owns. It is idempotent and must not block: slow teardown runs in the
	// background (see Waiter).
	Shutdown() error

	// SendRequest submits a request. The provider eventually calls
	// Sink.Response with the same id, or never responds at all.
	SendRequest(language string, kind Kind, payload Payload, id int64)

	// SendNotification submits a fire-and-forget notification.
	SendNotification(language string, kind Kind, payload Payload)

	// Supports is a cheap predicate for language routing.
	Supports(language string) bool

	// IsAlive is the heartbeat probe. It must be cheap.
	IsAlive() bool
}

// Sink receives the signals a provider emits. Implementations marshal every
// call onto the core loop, so providers may call them from any goroutine.
type Sink interface {
	// Ready reports a successful start and the languages now served.
	Ready(name string, languages []string)

	// Response delivers the body for request id.
	Response(name string, id int64, body any)

	// Down reports that the provider lost its transport.
	Down(name string, err error)
}

// Factory builds a provider instance from its configuration.
type Factory func(cfg Config, sink Sink) (Provider, error)

// Wildcard is the language entry meaning "every language".
const Wildcard = "*"

// LanguageSet is a set of lowercase language identifiers.
type LanguageSet map[string]struct{}

// NewLanguageSet builds a set from the given identifiers.
func NewLanguageSet(languages ...string) LanguageSet {
	s := make(LanguageSet, len(languages))
	for _, l := range languages {
		l = strings.ToLower(strings.TrimSpace(l))
		if l != "" {
			s[l] = struct{}{}
		}
	}
	return s
}

// Has reports whether the set contains language or the wildcard.
func (s LanguageSet) Has(language string) bool {
	if _, ok := s[Wildcard]; ok {
		return true
	}
	_, ok := s[strings.ToLower(language)]
	return ok
}

// Sorted returns the members in lexical order.
func (s LanguageSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
