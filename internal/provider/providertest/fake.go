// Package providertest provides a scriptable in-memory Provider for tests of
// the registry, router and bus.
package providertest

import (
	"sync"

	"github.com/dshills/codeintel/internal/provider"
)

// Request records a SendRequest call.
type Request struct {
	Language string
	Kind     provider.Kind
	Payload  provider.Payload
	ID       int64
}

// Notification records a SendNotification call.
type Notification struct {
	Language string
	Kind     provider.Kind
	Payload  provider.Payload
}

// Fake is a Provider whose behavior is driven by the test. By default Start
// reports Ready synchronously and requests are recorded without a response.
type Fake struct {
	name string
	sink provider.Sink

	mu            sync.Mutex
	languages     []string
	alive         bool
	startErr      error
	readyOnStart  bool
	respond       func(Request) (any, bool)
	requests      []Request
	notifications []Notification
	starts        int
	shutdowns     int
	calls         []string
}

// New creates a fake provider for the given languages. A language of "*"
// supports everything.
func New(name string, sink provider.Sink, languages ...string) *Fake {
	return &Fake{
		name:         name,
		sink:         sink,
		languages:    languages,
		alive:        true,
		readyOnStart: true,
	}
}

// Factory returns a provider.Factory that builds fakes and hands each new
// instance to onCreate.
func Factory(name string, languages []string, onCreate func(*Fake)) provider.Factory {
	return func(_ provider.Config, sink provider.Sink) (provider.Provider, error) {
		f := New(name, sink, languages...)
		if onCreate != nil {
			onCreate(f)
		}
		return f, nil
	}
}

// SetSink replaces the sink the fake reports to.
func (f *Fake) SetSink(s provider.Sink) {
	f.mu.Lock()
	f.sink = s
	f.mu.Unlock()
}

// SetAlive controls the heartbeat answer.
func (f *Fake) SetAlive(alive bool) {
	f.mu.Lock()
	f.alive = alive
	f.mu.Unlock()
}

// SetStartError makes Start fail with err.
func (f *Fake) SetStartError(err error) {
	f.mu.Lock()
	f.startErr = err
	f.mu.Unlock()
}

// SetReadyOnStart controls whether Start reports Ready immediately.
func (f *Fake) SetReadyOnStart(ready bool) {
	f.mu.Lock()
	f.readyOnStart = ready
	f.mu.Unlock()
}

// RespondWith installs a synchronous responder. Returning false suppresses
// the response.
func (f *Fake) RespondWith(fn func(Request) (any, bool)) {
	f.mu.Lock()
	f.respond = fn
	f.mu.Unlock()
}

// Name implements provider.Provider.
func (f *Fake) Name() string { return f.name }

// Start implements provider.Provider.
func (f *Fake) Start() error {
	f.mu.Lock()
	f.starts++
	f.calls = append(f.calls, "start")
	err := f.startErr
	ready := f.readyOnStart && err == nil
	sink := f.sink
	langs := append([]string(nil), f.languages...)
	f.mu.Unlock()
	if ready && sink != nil {
		sink.Ready(f.name, langs)
	}
	return err
}

// Shutdown implements provider.Provider.
func (f *Fake) Shutdown() error {
	f.mu.Lock()
	f.shutdowns++
	f.calls = append(f.calls, "shutdown")
	f.mu.Unlock()
	return nil
}

// SendRequest implements provider.Provider.
func (f *Fake) SendRequest(language string, kind provider.Kind, payload provider.Payload, id int64) {
	req := Request{Language: language, Kind: kind, Payload: payload, ID: id}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	respond := f.respond
	sink := f.sink
	f.mu.Unlock()
	if respond == nil || sink == nil {
		return
	}
	if body, ok := respond(req); ok {
		sink.Response(f.name, id, body)
	}
}

// SendNotification implements provider.Provider.
func (f *Fake) SendNotification(language string, kind provider.Kind, payload provider.Payload) {
	f.mu.Lock()
	f.notifications = append(f.notifications, Notification{Language: language, Kind: kind, Payload: payload})
	f.mu.Unlock()
}

// Supports implements provider.Provider.
func (f *Fake) Supports(language string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return provider.NewLanguageSet(f.languages...).Has(language)
}

// IsAlive implements provider.Provider.
func (f *Fake) IsAlive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

// Ready emits a Ready signal as the provider would after an async start.
func (f *Fake) Ready() {
	f.mu.Lock()
	sink := f.sink
	langs := append([]string(nil), f.languages...)
	f.mu.Unlock()
	sink.Ready(f.name, langs)
}

// Respond emits a response for id.
func (f *Fake) Respond(id int64, body any) {
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()
	sink.Response(f.name, id, body)
}

// Down emits a Down signal.
func (f *Fake) Down(err error) {
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()
	sink.Down(f.name, err)
}

// Requests returns the recorded requests.
func (f *Fake) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

// LastRequest returns the most recent request. It panics if none was sent.
func (f *Fake) LastRequest() Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

// Notifications returns the recorded notifications.
func (f *Fake) Notifications() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notification(nil), f.notifications...)
}

// Starts returns how many times Start was called.
func (f *Fake) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

// Shutdowns returns how many times Shutdown was called.
func (f *Fake) Shutdowns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdowns
}

// Calls returns the lifecycle call log ("start", "shutdown").
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
