package router

import (
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/dshills/codeintel/internal/loop"
	"github.com/dshills/codeintel/internal/provider"
	"github.com/dshills/codeintel/internal/provider/providertest"
	"github.com/dshills/codeintel/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	kind provider.Kind
	body any
}

type recorder struct {
	got    []delivery
	closed bool
}

func (r *recorder) HandleResponse(kind provider.Kind, body any) {
	r.got = append(r.got, delivery{kind, body})
}

func (r *recorder) Closed() bool { return r.closed }

type env struct {
	t      *testing.T
	loop   *loop.Loop
	clock  *loop.FakeClock
	reg    *registry.Registry
	router *Router
	fakes  map[string]*providertest.Fake
}

type spec struct {
	name  string
	langs []string
}

func newEnv(t *testing.T, cfg Config, providers ...spec) *env {
	t.Helper()
	e := &env{
		t:     t,
		loop:  loop.New(),
		clock: loop.NewFakeClock(time.Unix(0, 0)),
		fakes: make(map[string]*providertest.Fake),
	}
	e.reg = registry.New(e.loop, registry.WithClock(e.clock))
	e.router = New(e.loop, e.reg, WithClock(e.clock), WithConfig(cfg))
	e.reg.OnResponse(e.router.HandleResponse)

	for _, p := range providers {
		p := p
		require.NoError(t, e.reg.Register(p.name, providertest.Factory(p.name, p.langs, func(f *providertest.Fake) {
			e.fakes[p.name] = f
		}), nil))
		require.NoError(t, e.reg.Start(p.name))
	}
	e.loop.Drain()
	return e
}

func config(wait time.Duration) Config {
	cfg := DefaultConfig()
	cfg.WaitFor = wait
	return cfg
}

func (e *env) send(lang string, kind provider.Kind, o Originator) int64 {
	var id int64
	e.loop.Post(func() { id = e.router.Send(lang, kind, provider.Payload{Path: "/a.py"}, o) })
	e.loop.Drain()
	return id
}

func (e *env) respond(name string, id int64, body any) {
	e.fakes[name].Respond(id, body)
	e.loop.Drain()
}

func (e *env) advance(d time.Duration) {
	e.clock.Advance(d)
	e.loop.Drain()
}

func items(labels ...string) []provider.CompletionItem {
	out := make([]provider.CompletionItem, len(labels))
	for i, l := range labels {
		out[i] = provider.CompletionItem{Label: l}
	}
	return out
}

func deliveredLabels(t *testing.T, d delivery) []string {
	t.Helper()
	list, ok := d.body.([]provider.CompletionItem)
	require.True(t, ok, "body %T", d.body)
	out := make([]string, len(list))
	for i, it := range list {
		out[i] = it.Label
	}
	return out
}

func TestDeliversWhenWaitSetAnswers(t *testing.T) {
	e := newEnv(t, config(300*time.Millisecond),
		spec{"lsp", []string{"python"}}, spec{"fallback", []string{"*"}})
	o := &recorder{}

	id := e.send("python", provider.KindCompletion, o)
	assert.Equal(t, id, e.fakes["lsp"].LastRequest().ID)
	assert.Equal(t, id, e.fakes["fallback"].LastRequest().ID)

	e.respond("fallback", id, []provider.CompletionItem{{Label: "foo", SortText: "x"}, {Label: "baz", SortText: "y"}})
	assert.Empty(t, o.got, "lsp is authoritative")

	e.respond("lsp", id, []provider.CompletionItem{{Label: "foo", SortText: "a"}, {Label: "bar", SortText: "b"}})
	require.Len(t, o.got, 1)
	assert.Equal(t, []string{"foo", "bar", "baz"}, deliveredLabels(t, o.got[0]))
	assert.Zero(t, e.router.Live())
}

func TestSupersessionDropsStale(t *testing.T) {
	e := newEnv(t, config(300*time.Millisecond), spec{"lsp", []string{"python"}})
	o := &recorder{}

	r1 := e.send("python", provider.KindCompletion, o)
	r2 := e.send("python", provider.KindCompletion, o)
	require.Greater(t, r2, r1)

	e.respond("lsp", r2, items("second"))
	e.respond("lsp", r1, items("first"))
	e.advance(time.Second)

	require.Len(t, o.got, 1)
	assert.Equal(t, []string{"second"}, deliveredLabels(t, o.got[0]))
	assert.EqualValues(t, 1, e.router.Stats().Superseded)
}

func TestSupersessionIsPerOriginatorAndKind(t *testing.T) {
	e := newEnv(t, config(300*time.Millisecond), spec{"lsp", []string{"python"}})
	a, b := &recorder{}, &recorder{}

	c1 := e.send("python", provider.KindCompletion, a)
	h1 := e.send("python", provider.KindHover, a)
	h2 := e.send("python", provider.KindHover, a)
	c2 := e.send("python", provider.KindCompletion, b)

	for _, id := range []int64{c1, h1, h2, c2} {
		e.respond("lsp", id, items("x"))
	}
	assert.Len(t, a.got, 3, "hover is not superseded")
	assert.Len(t, b.got, 1)
}

func TestTimeoutDeliversNonEmptyFallback(t *testing.T) {
	e := newEnv(t, config(100*time.Millisecond),
		spec{"lsp", []string{"python"}}, spec{"fallback", []string{"*"}})
	o := &recorder{}

	id := e.send("python", provider.KindCompletion, o)
	e.advance(10 * time.Millisecond)
	e.respond("fallback", id, items("only"))
	assert.Empty(t, o.got)

	e.advance(90 * time.Millisecond)
	require.Len(t, o.got, 1)
	assert.Equal(t, []string{"only"}, deliveredLabels(t, o.got[0]))

	e.advance(400 * time.Millisecond)
	e.respond("lsp", id, items("late"))
	assert.Len(t, o.got, 1)
	assert.EqualValues(t, 1, e.router.Stats().Unknown)
}

func TestTimeoutWithOnlyEmptyKeepsWaiting(t *testing.T) {
	e := newEnv(t, config(100*time.Millisecond),
		spec{"lsp", []string{"python"}}, spec{"fallback", []string{"*"}})
	o := &recorder{}

	id := e.send("python", provider.KindHover, o)
	e.respond("fallback", id, "")
	e.advance(time.Second)
	assert.Empty(t, o.got)
	assert.Equal(t, 1, e.router.Live())

	e.respond("lsp", id, "docs")
	require.Len(t, o.got, 1)
	assert.Equal(t, "docs", o.got[0].body)
}

func TestTimeoutDecidesWhenWaitSetAnsweredEmpty(t *testing.T) {
	e := newEnv(t, config(100*time.Millisecond),
		spec{"lsp", []string{"python"}}, spec{"engine", []string{"python"}})
	o := &recorder{}

	id := e.send("python", provider.KindHover, o)
	e.respond("lsp", id, nil)
	e.respond("engine", id, nil)
	require.Len(t, o.got, 1)
	assert.Nil(t, o.got[0].body)
}

func TestFirstNonEmptyHover(t *testing.T) {
	e := newEnv(t, config(300*time.Millisecond),
		spec{"lsp", []string{"python"}}, spec{"engine", []string{"python"}}, spec{"fallback", []string{"*"}})
	o := &recorder{}

	id := e.send("python", provider.KindHover, o)
	e.respond("fallback", id, "x")
	e.respond("lsp", id, nil)
	e.respond("engine", id, "docstring")
	require.Len(t, o.got, 1)
	assert.Equal(t, "docstring", o.got[0].body)
}

func TestNoWaitResolvesNextTurn(t *testing.T) {
	e := newEnv(t, config(0), spec{"lsp", []string{"python"}}, spec{"fallback", []string{"*"}})
	e.fakes["fallback"].RespondWith(func(providertest.Request) (any, bool) {
		return items("word"), true
	})
	o := &recorder{}

	e.send("python", provider.KindCompletion, o)
	require.Len(t, o.got, 1)
	assert.Equal(t, []string{"word"}, deliveredLabels(t, o.got[0]))
}

func TestNoWaitWithNothingResolvesNil(t *testing.T) {
	e := newEnv(t, config(0), spec{"lsp", []string{"python"}})
	o := &recorder{}
	e.send("python", provider.KindDefinition, o)
	require.Len(t, o.got, 1)
	assert.Nil(t, o.got[0].body)
	assert.Zero(t, e.router.Live())
}

func TestNoSupportingProviderResolvesImmediately(t *testing.T) {
	e := newEnv(t, config(300*time.Millisecond), spec{"lsp", []string{"python"}})
	o := &recorder{}

	e.send("rust", provider.KindCompletion, o)
	require.Len(t, o.got, 1)
	assert.Nil(t, o.got[0].body)
}

func TestAllProvidersDownResolvesNil(t *testing.T) {
	e := newEnv(t, config(300*time.Millisecond), spec{"lsp", []string{"python"}})
	e.loop.Post(func() { require.NoError(t, e.reg.Stop("lsp")) })
	e.loop.Drain()

	o := &recorder{}
	e.send("python", provider.KindHover, o)
	require.Len(t, o.got, 1)
	assert.Nil(t, o.got[0].body)
	assert.Len(t, e.fakes["lsp"].Requests(), 0)
}

func TestFallbackOnlyMode(t *testing.T) {
	e := newEnv(t, config(300*time.Millisecond),
		spec{"fallback", []string{"*"}}, spec{"snippets", []string{"*"}})
	o := &recorder{}

	id := e.send("python", provider.KindCompletion, o)
	e.respond("fallback", id, items("a"))
	assert.Empty(t, o.got)
	e.respond("snippets", id, items("b"))
	require.Len(t, o.got, 1)
	assert.Equal(t, []string{"a", "b"}, deliveredLabels(t, o.got[0]))
}

func TestFallbackOnlyModeTimeout(t *testing.T) {
	e := newEnv(t, config(300*time.Millisecond),
		spec{"fallback", []string{"*"}}, spec{"snippets", []string{"*"}})
	o := &recorder{}

	id := e.send("python", provider.KindCompletion, o)
	e.respond("snippets", id, items("b"))
	e.advance(300 * time.Millisecond)
	require.Len(t, o.got, 1)
	assert.Equal(t, []string{"b"}, deliveredLabels(t, o.got[0]))
}

func TestClosedOriginatorDiscarded(t *testing.T) {
	e := newEnv(t, config(300*time.Millisecond), spec{"lsp", []string{"python"}})
	o := &recorder{}
	id := e.send("python", provider.KindHover, o)
	o.closed = true
	e.respond("lsp", id, "docs")
	assert.Empty(t, o.got)
	assert.EqualValues(t, 1, e.router.Stats().Discarded)
}

func TestDetachDropsRecords(t *testing.T) {
	e := newEnv(t, config(300*time.Millisecond), spec{"lsp", []string{"python"}})
	a, b := &recorder{}, &recorder{}
	ida := e.send("python", provider.KindHover, a)
	idb := e.send("python", provider.KindHover, b)

	e.loop.Post(func() { e.router.Detach(a) })
	e.loop.Drain()
	assert.Equal(t, 1, e.router.Live())

	e.respond("lsp", ida, "x")
	e.respond("lsp", idb, "y")
	assert.Empty(t, a.got)
	require.Len(t, b.got, 1)
}

func TestLiveTableCapDropsOldest(t *testing.T) {
	cfg := config(time.Second)
	cfg.MaxLive = 2
	e := newEnv(t, cfg, spec{"lsp", []string{"python"}})
	o := &recorder{}

	first := e.send("python", provider.KindHover, o)
	second := e.send("python", provider.KindHover, o)
	third := e.send("python", provider.KindHover, o)
	assert.Equal(t, 2, e.router.Live())
	assert.EqualValues(t, 1, e.router.Stats().Evicted)

	e.respond("lsp", first, "a")
	assert.Empty(t, o.got)
	e.respond("lsp", second, "b")
	e.respond("lsp", third, "c")
	require.Len(t, o.got, 2)
	assert.Equal(t, "b", o.got[0].body)
}

func TestDuplicateResponseIgnored(t *testing.T) {
	e := newEnv(t, config(300*time.Millisecond),
		spec{"lsp", []string{"python"}}, spec{"engine", []string{"python"}})
	o := &recorder{}
	id := e.send("python", provider.KindHover, o)
	e.respond("lsp", id, "")
	e.respond("lsp", id, "second")
	e.respond("engine", id, nil)
	require.Len(t, o.got, 1)
	assert.Nil(t, o.got[0].body)
}

func TestProviderLostUnblocksRequest(t *testing.T) {
	e := newEnv(t, config(300*time.Millisecond),
		spec{"lsp", []string{"python"}}, spec{"engine", []string{"python"}})
	o := &recorder{}
	id := e.send("python", provider.KindHover, o)
	e.respond("engine", id, "engine docs")

	e.loop.Post(func() { e.router.ProviderLost("lsp") })
	e.loop.Drain()
	require.Len(t, o.got, 1)
	assert.Equal(t, "engine docs", o.got[0].body)
}

func TestPanickingProviderTreatedAsSilent(t *testing.T) {
	e := newEnv(t, config(100*time.Millisecond),
		spec{"lsp", []string{"python"}}, spec{"fallback", []string{"*"}})
	e.fakes["lsp"].RespondWith(func(providertest.Request) (any, bool) {
		panic("encode failure")
	})
	o := &recorder{}
	id := e.send("python", provider.KindCompletion, o)
	e.respond("fallback", id, items("w"))
	e.advance(100 * time.Millisecond)
	require.Len(t, o.got, 1)
}

func TestNotificationKindIgnored(t *testing.T) {
	e := newEnv(t, config(300*time.Millisecond), spec{"lsp", []string{"python"}})
	o := &recorder{}
	e.send("python", provider.KindDidOpen, o)
	assert.Empty(t, e.fakes["lsp"].Requests())
	assert.Zero(t, e.router.Live())
}

// Random interleavings of dispatches, responses and clock ticks: every
// request is delivered at most once, and an older completion is never
// delivered after a newer one from the same originator was dispatched.
func TestNewestIndexEmptiesAfterDelivery(t *testing.T) {
	e := newEnv(t, config(300*time.Millisecond), spec{"lsp", []string{"python"}})

	for i := 0; i < 1000; i++ {
		o := &recorder{}
		id := e.send("python", provider.KindCompletion, o)
		e.respond("lsp", id, items("x"))
		require.Len(t, o.got, 1)
	}
	assert.Zero(t, e.router.Live())
	assert.Empty(t, e.router.latest)

	o := &recorder{}
	r1 := e.send("python", provider.KindCompletion, o)
	r2 := e.send("python", provider.KindCompletion, o)
	assert.Len(t, e.router.latest, 1)
	e.respond("lsp", r1, items("old"))
	e.respond("lsp", r2, items("new"))
	require.Len(t, o.got, 1)
	assert.Equal(t, []string{"new"}, deliveredLabels(t, o.got[0]))
	assert.Empty(t, e.router.latest)

	timedOut := &recorder{}
	e.send("python", provider.KindCompletion, timedOut)
	e.advance(300 * time.Millisecond)
	e.router.Detach(timedOut)
	assert.Empty(t, e.router.latest)
}

func TestAtMostOnceAndNewestOnly(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 50; iter++ {
		e := newEnv(t, config(50*time.Millisecond),
			spec{"lsp", []string{"python"}}, spec{"fallback", []string{"*"}})

		delivered := map[int64]int{}
		origins := []*tracking{{}, {}, {}}
		for _, o := range origins {
			o := o
			o.onDeliver = func(id int64) {
				delivered[id]++
				assert.Equal(t, o.newest, id, "stale completion delivered")
			}
		}

		var pending []int64
		for step := 0; step < 60; step++ {
			switch rng.Intn(4) {
			case 0:
				o := origins[rng.Intn(len(origins))]
				id := e.send("python", provider.KindCompletion, o)
				o.newest = id
				pending = append(pending, id)
			case 1, 2:
				if len(pending) == 0 {
					continue
				}
				id := pending[rng.Intn(len(pending))]
				name := []string{"lsp", "fallback"}[rng.Intn(2)]
				e.respond(name, id, items(strconv.FormatInt(id, 10)))
			case 3:
				e.advance(time.Duration(rng.Intn(60)) * time.Millisecond)
			}
		}
		for id, n := range delivered {
			require.Equal(t, 1, n, "request %d delivered %d times", id, n)
		}
	}
}

// tracking recovers the request id from the single label every provider
// answers with.
type tracking struct {
	newest    int64
	onDeliver func(id int64)
}

func (tr *tracking) HandleResponse(_ provider.Kind, body any) {
	list, _ := body.([]provider.CompletionItem)
	if len(list) != 1 {
		return
	}
	id, err := strconv.ParseInt(list[0].Label, 10, 64)
	if err == nil {
		tr.onDeliver(id)
	}
}
