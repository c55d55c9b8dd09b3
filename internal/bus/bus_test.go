package bus

import (
	"testing"
	"time"

	"github.com/dshills/codeintel/internal/loop"
	"github.com/dshills/codeintel/internal/provider"
	mock_provider "github.com/dshills/codeintel/internal/provider/mocks"
	"github.com/dshills/codeintel/internal/provider/providertest"
	"github.com/dshills/codeintel/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type env struct {
	loop  *loop.Loop
	reg   *registry.Registry
	bus   *Bus
	fakes map[string]*providertest.Fake
}

func newEnv(t *testing.T, providers map[string][]string) *env {
	t.Helper()
	e := &env{
		loop:  loop.New(),
		fakes: make(map[string]*providertest.Fake),
	}
	e.reg = registry.New(e.loop, registry.WithClock(loop.NewFakeClock(time.Unix(0, 0))))
	e.bus = New(e.reg)
	for name, langs := range providers {
		name := name
		require.NoError(t, e.reg.Register(name, providertest.Factory(name, langs, func(f *providertest.Fake) {
			e.fakes[name] = f
		}), nil))
		require.NoError(t, e.reg.Start(name))
	}
	e.loop.Drain()
	return e
}

func kinds(ns []providertest.Notification) []provider.Kind {
	out := make([]provider.Kind, len(ns))
	for i, n := range ns {
		out[i] = n.Kind
	}
	return out
}

func TestSendNotificationOnlyToSupporting(t *testing.T) {
	e := newEnv(t, map[string][]string{
		"lsp":      {"python"},
		"gopls":    {"go"},
		"fallback": {"*"},
	})

	n := e.bus.SendNotification("python", provider.KindDidOpen, provider.Payload{Path: "/a.py", Text: "x"})
	assert.Equal(t, 2, n)
	assert.Len(t, e.fakes["lsp"].Notifications(), 1)
	assert.Len(t, e.fakes["fallback"].Notifications(), 1)
	assert.Empty(t, e.fakes["gopls"].Notifications())

	got := e.fakes["lsp"].Notifications()[0]
	assert.Equal(t, "python", got.Language)
	assert.Equal(t, "x", got.Payload.Text)
}

func TestDidCloseReachesEveryProvider(t *testing.T) {
	e := newEnv(t, map[string][]string{
		"lsp":   {"python"},
		"gopls": {"go"},
	})

	n := e.bus.SendNotification("python", provider.KindDidClose, provider.Payload{Path: "/a.py"})
	assert.Equal(t, 2, n)
	assert.Equal(t, []provider.Kind{provider.KindDidClose}, kinds(e.fakes["gopls"].Notifications()))
}

func TestBroadcastOncePerProvider(t *testing.T) {
	e := newEnv(t, map[string][]string{
		"lsp":      {"python", "go"},
		"fallback": {"*"},
	})

	n := e.bus.Broadcast(provider.KindWorkspaceFoldersChange, provider.Payload{Added: []string{"/src"}})
	assert.Equal(t, 2, n)
	for _, f := range e.fakes {
		require.Len(t, f.Notifications(), 1)
		assert.Equal(t, []string{"/src"}, f.Notifications()[0].Payload.Added)
	}
}

func TestBroadcastScopedToLanguage(t *testing.T) {
	e := newEnv(t, map[string][]string{
		"lsp":      {"python"},
		"gopls":    {"go"},
		"fallback": {"*"},
	})

	n := e.bus.Broadcast(provider.KindConfigChange, provider.Payload{Language: "python", Settings: map[string]any{"a": 1}})
	assert.Equal(t, 2, n)
	assert.Len(t, e.fakes["lsp"].Notifications(), 1)
	assert.Len(t, e.fakes["fallback"].Notifications(), 1)
	assert.Empty(t, e.fakes["gopls"].Notifications())
	assert.Equal(t, "python", e.fakes["lsp"].Notifications()[0].Language)
}

func TestRequestKindRejected(t *testing.T) {
	e := newEnv(t, map[string][]string{"lsp": {"python"}})
	assert.Zero(t, e.bus.SendNotification("python", provider.KindCompletion, provider.Payload{}))
	assert.Zero(t, e.bus.Broadcast(provider.KindHover, provider.Payload{}))
	assert.Empty(t, e.fakes["lsp"].Notifications())
	assert.EqualValues(t, 2, e.bus.Stats().Rejected)
}

func TestNoRunningProvidersIsNoop(t *testing.T) {
	e := newEnv(t, map[string][]string{"lsp": {"python"}})
	require.NoError(t, e.reg.Stop("lsp"))
	e.loop.Drain()

	assert.Zero(t, e.bus.SendNotification("python", provider.KindDidSave, provider.Payload{}))
	assert.Empty(t, e.fakes["lsp"].Notifications())
}

func TestRepeatedDidOpenPassesThrough(t *testing.T) {
	e := newEnv(t, map[string][]string{"lsp": {"python"}})
	p := provider.Payload{Path: "/a.py", Text: "x"}
	e.bus.SendNotification("python", provider.KindDidOpen, p)
	e.bus.SendNotification("python", provider.KindDidOpen, p)
	assert.Len(t, e.fakes["lsp"].Notifications(), 2)
}

func TestSendTo(t *testing.T) {
	e := newEnv(t, map[string][]string{"lsp": {"python"}, "fallback": {"*"}})
	assert.True(t, e.bus.SendTo("lsp", provider.KindConfigChange, provider.Payload{Settings: map[string]any{"a": 1}}))
	assert.False(t, e.bus.SendTo("missing", provider.KindConfigChange, provider.Payload{}))
	assert.Len(t, e.fakes["lsp"].Notifications(), 1)
	assert.Empty(t, e.fakes["fallback"].Notifications())
}

func TestPerFileOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	l := loop.New()
	reg := registry.New(l, registry.WithClock(loop.NewFakeClock(time.Unix(0, 0))))
	b := New(reg)

	m := mock_provider.NewMockProvider(ctrl)
	m.EXPECT().Name().Return("lsp").AnyTimes()
	m.EXPECT().Supports(gomock.Any()).Return(true).AnyTimes()
	m.EXPECT().IsAlive().Return(true).AnyTimes()

	var sink provider.Sink
	m.EXPECT().Start().DoAndReturn(func() error {
		sink.Ready("lsp", []string{"python"})
		return nil
	})
	gomock.InOrder(
		m.EXPECT().SendNotification("python", provider.KindDidOpen, gomock.Any()),
		m.EXPECT().SendNotification("python", provider.KindDidChange, gomock.Any()),
		m.EXPECT().SendNotification("python", provider.KindDidSave, gomock.Any()),
		m.EXPECT().SendNotification("python", provider.KindDidClose, gomock.Any()),
	)

	require.NoError(t, reg.Register("lsp", func(_ provider.Config, s provider.Sink) (provider.Provider, error) {
		sink = s
		return m, nil
	}, nil))
	require.NoError(t, reg.Start("lsp"))
	l.Drain()

	p := provider.Payload{Path: "/a.py"}
	for _, k := range []provider.Kind{provider.KindDidOpen, provider.KindDidChange, provider.KindDidSave, provider.KindDidClose} {
		b.SendNotification("python", k, p)
	}
}

func TestPanickingProviderDoesNotStopFanOut(t *testing.T) {
	ctrl := gomock.NewController(t)
	l := loop.New()
	reg := registry.New(l, registry.WithClock(loop.NewFakeClock(time.Unix(0, 0))))
	b := New(reg)

	var sink provider.Sink
	bad := mock_provider.NewMockProvider(ctrl)
	bad.EXPECT().Name().Return("bad").AnyTimes()
	bad.EXPECT().Supports(gomock.Any()).Return(true).AnyTimes()
	bad.EXPECT().IsAlive().Return(true).AnyTimes()
	bad.EXPECT().Start().DoAndReturn(func() error {
		sink.Ready("bad", []string{"*"})
		return nil
	})
	bad.EXPECT().SendNotification(gomock.Any(), gomock.Any(), gomock.Any()).Do(func(string, provider.Kind, provider.Payload) {
		panic("boom")
	})
	require.NoError(t, reg.Register("bad", func(_ provider.Config, s provider.Sink) (provider.Provider, error) {
		sink = s
		return bad, nil
	}, nil))

	var good *providertest.Fake
	require.NoError(t, reg.Register("good", providertest.Factory("good", []string{"*"}, func(f *providertest.Fake) { good = f }), nil))
	require.NoError(t, reg.StartAll())
	l.Drain()

	assert.Equal(t, 1, b.SendNotification("python", provider.KindDidSave, provider.Payload{}))
	assert.Len(t, good.Notifications(), 1)
	assert.EqualValues(t, 1, b.Stats().Failed)
}
