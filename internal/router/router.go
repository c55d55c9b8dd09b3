package router

import (
	"sync/atomic"
	"time"

	"github.com/dshills/codeintel/internal/logging"
	"github.com/dshills/codeintel/internal/loop"
	"github.com/dshills/codeintel/internal/merge"
	"github.com/dshills/codeintel/internal/provider"
	"github.com/dshills/codeintel/internal/registry"
)

// Providers is the registry view the router reads at dispatch time.
type Providers interface {
	Running(language string) []registry.Handle
}

// Config configures dispatch and collection.
type Config struct {
	// WaitFor is the per-request budget. Zero or less means no wait: the
	// request is decided on the next loop turn with what has arrived.
	// Default: 300ms
	WaitFor time.Duration

	// WaitSources lists the authoritative providers per request kind.
	WaitSources map[provider.Kind][]string

	// MaxLive caps the live request table; the oldest record is dropped on
	// overflow. Zero disables the cap.
	// Default: 10000
	MaxLive int
}

// DefaultConfig returns the default router configuration.
func DefaultConfig() Config {
	sources := make(map[provider.Kind][]string, len(provider.RequestKinds))
	for _, k := range provider.RequestKinds {
		switch k {
		case provider.KindCompletion, provider.KindSignatureHelp, provider.KindHover:
			sources[k] = []string{merge.ProviderLSP, merge.ProviderEngine}
		default:
			sources[k] = []string{merge.ProviderLSP}
		}
	}
	return Config{
		WaitFor:     300 * time.Millisecond,
		WaitSources: sources,
		MaxLive:     10000,
	}
}

// Stats counts request outcomes since the router was created.
type Stats struct {
	Live       int
	Dispatched uint64
	Delivered  uint64
	Superseded uint64
	Evicted    uint64
	Detached   uint64
	Discarded  uint64
	Unknown    uint64
	TimedOut   uint64
}

// Router is the request dispatcher and response collector.
type Router struct {
	loop      *loop.Loop
	clock     loop.Clock
	providers Providers
	merger    *merge.Merger
	cfg       Config
	logger    *logging.Logger

	nextID atomic.Int64

	live   map[int64]*record
	fifo   []int64
	latest map[latestKey]int64
	stats  Stats
}

// Option configures a Router.
type Option func(*Router)

// WithClock sets the timer source.
func WithClock(c loop.Clock) Option {
	return func(r *Router) {
		r.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Router) {
		r.logger = l
	}
}

// WithConfig sets the router configuration.
func WithConfig(cfg Config) Option {
	return func(r *Router) {
		r.cfg = cfg
	}
}

// WithMerger sets the merge policy.
func WithMerger(m *merge.Merger) Option {
	return func(r *Router) {
		r.merger = m
	}
}

// New creates a router reading provider state from providers.
func New(l *loop.Loop, providers Providers, opts ...Option) *Router {
	r := &Router{
		loop:      l,
		clock:     loop.RealClock{},
		providers: providers,
		merger:    merge.New(),
		cfg:       DefaultConfig(),
		logger:    logging.Nop(),
		live:      make(map[int64]*record),
		latest:    make(map[latestKey]int64),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("router")
	return r
}

// SetConfig replaces the configuration for requests dispatched afterwards.
func (r *Router) SetConfig(cfg Config) {
	r.cfg = cfg
}

// SetMerger replaces the merge policy.
func (r *Router) SetMerger(m *merge.Merger) {
	r.merger = m
}

// NextID allocates a request id. It is safe to call from any goroutine.
func (r *Router) NextID() int64 {
	return r.nextID.Add(1)
}

// Send allocates an id and dispatches the request. It must run on the loop.
func (r *Router) Send(language string, kind provider.Kind, payload provider.Payload, originator Originator) int64 {
	id := r.NextID()
	r.Dispatch(id, language, kind, payload, originator)
	return id
}

// Dispatch records request id and fans it out to every running provider
// that supports language.
func (r *Router) Dispatch(id int64, language string, kind provider.Kind, payload provider.Payload, originator Originator) {
	log := r.logger.WithFields(map[string]any{"id": id, "kind": string(kind), "language": language})
	if !kind.IsRequest() {
		log.Debug("not a request kind")
		return
	}
	r.stats.Dispatched++

	if supersedable(kind) {
		key := latestKey{originator: originator, kind: kind}
		if newest := r.latest[key]; id < newest {
			r.stats.Superseded++
			log.Debug("dispatched after a newer request, dropping")
			return
		}
		r.latest[key] = id
		r.supersedeOlder(key, id)
	}

	now := r.clock.Now()
	rec := &record{
		id:         id,
		language:   language,
		kind:       kind,
		payload:    payload,
		originator: originator,
		sources:    make(map[string]any),
		waitSet:    make(map[string]struct{}),
		sentTo:     make(map[string]struct{}),
		createdAt:  now,
		deadline:   now.Add(r.cfg.WaitFor),
	}

	running := r.providers.Running(language)
	authoritative := make(map[string]bool)
	for _, name := range r.cfg.WaitSources[kind] {
		authoritative[name] = true
	}
	for _, h := range running {
		if authoritative[h.Name] {
			rec.waitSet[h.Name] = struct{}{}
		}
	}

	r.evictIfFull()
	r.live[id] = rec
	r.fifo = append(r.fifo, id)

	for _, h := range running {
		rec.sentTo[h.Name] = struct{}{}
		inst := h.Provider
		if err := provider.Safe(func() error {
			inst.SendRequest(language, kind, payload, id)
			return nil
		}); err != nil {
			log.WithField("provider", h.Name).Debug("send failed: %v", err)
		}
	}

	if len(rec.sentTo) == 0 {
		log.Debug("no running provider, resolving empty")
		r.decide(rec)
		return
	}

	if r.cfg.WaitFor <= 0 {
		rec.timedOut = true
		r.loop.Post(func() { r.force(id) })
		return
	}
	rec.timer = r.clock.AfterFunc(r.cfg.WaitFor, func() {
		r.loop.Post(func() { r.timeout(id) })
	})
}

// HandleResponse records a provider's answer for request id.
func (r *Router) HandleResponse(name string, id int64, body any) {
	rec, ok := r.live[id]
	if !ok {
		r.stats.Unknown++
		r.logger.WithFields(map[string]any{"id": id, "provider": name}).Debug("response for unknown request")
		return
	}
	if _, dup := rec.sources[name]; dup {
		r.logger.WithFields(map[string]any{"id": id, "provider": name}).Debug("duplicate response")
		return
	}
	rec.sources[name] = body
	r.evaluate(rec)
}

// ProviderLost treats every outstanding request sent to name as answered
// with no body, so a provider that leaves Running does not hold requests
// until the deadline.
func (r *Router) ProviderLost(name string) {
	for _, id := range r.liveIDs() {
		rec, ok := r.live[id]
		if !ok {
			continue
		}
		if _, sent := rec.sentTo[name]; !sent {
			continue
		}
		if _, answered := rec.sources[name]; answered {
			continue
		}
		rec.sources[name] = nil
		r.evaluate(rec)
	}
}

// Detach drops every live request from originator without delivery.
func (r *Router) Detach(originator Originator) {
	for _, id := range r.liveIDs() {
		rec, ok := r.live[id]
		if ok && rec.originator == originator {
			r.remove(rec)
			r.stats.Detached++
		}
	}
	for key := range r.latest {
		if key.originator == originator {
			delete(r.latest, key)
		}
	}
}

// Live returns the number of live request records.
func (r *Router) Live() int {
	return len(r.live)
}

// Stats returns the outcome counters.
func (r *Router) Stats() Stats {
	s := r.stats
	s.Live = len(r.live)
	return s
}

func (r *Router) timeout(id int64) {
	rec, ok := r.live[id]
	if !ok {
		return
	}
	rec.timer = nil
	rec.timedOut = true
	r.stats.TimedOut++
	r.evaluate(rec)
}

// force decides a no-wait request with whatever has arrived.
func (r *Router) force(id int64) {
	if rec, ok := r.live[id]; ok {
		r.decide(rec)
	}
}

func (r *Router) evaluate(rec *record) {
	if r.isSuperseded(rec) {
		r.remove(rec)
		r.stats.Superseded++
		return
	}
	if rec.allResponded() || (rec.timedOut && rec.anyNonEmpty()) {
		r.decide(rec)
	}
}

func (r *Router) isSuperseded(rec *record) bool {
	if !supersedable(rec.kind) {
		return false
	}
	return r.latest[latestKey{originator: rec.originator, kind: rec.kind}] > rec.id
}

func (r *Router) supersedeOlder(key latestKey, newest int64) {
	for _, id := range r.liveIDs() {
		rec, ok := r.live[id]
		if !ok || rec.id >= newest || rec.originator != key.originator || rec.kind != key.kind {
			continue
		}
		r.remove(rec)
		r.stats.Superseded++
	}
}

func (r *Router) decide(rec *record) {
	r.remove(rec)
	body := r.merger.Merge(rec.kind, rec.sources)

	log := r.logger.WithFields(map[string]any{
		"id":        rec.id,
		"kind":      string(rec.kind),
		"sources":   len(rec.sources),
		"timed_out": rec.timedOut,
		"elapsed":   r.clock.Now().Sub(rec.createdAt).String(),
	})
	if c, ok := rec.originator.(Closer); ok && c.Closed() {
		r.stats.Discarded++
		log.Debug("originator closed, discarding")
		return
	}
	if rec.originator == nil {
		r.stats.Discarded++
		return
	}

	r.stats.Delivered++
	if err := provider.Safe(func() error {
		rec.originator.HandleResponse(rec.kind, body)
		return nil
	}); err != nil {
		log.Warn("originator failed handling response: %v", err)
		return
	}
	log.Debug("delivered")
}

// remove deletes rec from the live table. It is the only place records leave
// the table.
func (r *Router) remove(rec *record) {
	if _, ok := r.live[rec.id]; !ok {
		return
	}
	delete(r.live, rec.id)
	if rec.timer != nil {
		rec.timer.Stop()
		rec.timer = nil
	}
	if supersedable(rec.kind) {
		key := latestKey{originator: rec.originator, kind: rec.kind}
		if r.latest[key] == rec.id {
			delete(r.latest, key)
		}
	}
}

func (r *Router) evictIfFull() {
	if r.cfg.MaxLive <= 0 {
		return
	}
	for len(r.live) >= r.cfg.MaxLive && len(r.fifo) > 0 {
		oldest := r.fifo[0]
		r.fifo = r.fifo[1:]
		if rec, ok := r.live[oldest]; ok {
			r.remove(rec)
			r.stats.Evicted++
			r.logger.WithField("id", oldest).Debug("live table full, dropping oldest request")
		}
	}
	r.compactFIFO()
}

// liveIDs returns live ids in dispatch order and trims ids that already
// left the table.
func (r *Router) liveIDs() []int64 {
	r.compactFIFO()
	return append([]int64(nil), r.fifo...)
}

func (r *Router) compactFIFO() {
	if len(r.fifo) <= 2*len(r.live)+16 {
		return
	}
	kept := r.fifo[:0]
	for _, id := range r.fifo {
		if _, ok := r.live[id]; ok {
			kept = append(kept, id)
		}
	}
	r.fifo = kept
}
