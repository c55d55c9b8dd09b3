package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/dshills/codeintel/internal/loop"
	"github.com/dshills/codeintel/internal/provider"
	mock_provider "github.com/dshills/codeintel/internal/provider/mocks"
	"github.com/dshills/codeintel/internal/provider/providertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type harness struct {
	t      *testing.T
	loop   *loop.Loop
	clock  *loop.FakeClock
	reg    *Registry
	events []Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		loop:  loop.New(),
		clock: loop.NewFakeClock(time.Unix(0, 0)),
	}
	h.reg = New(h.loop, WithClock(h.clock), WithConfig(Config{
		MaxRestartAttempts: 5,
		RestartInterval:    10 * time.Second,
		HeartbeatInterval:  3 * time.Second,
	}))
	h.reg.OnStatus(func(ev Event) { h.events = append(h.events, ev) })
	return h
}

// do runs fn as a loop task and drains everything it caused.
func (h *harness) do(fn func()) {
	h.loop.Post(fn)
	h.loop.Drain()
}

// advance moves the clock forward in small steps so re-armed timers fire.
func (h *harness) advance(d time.Duration) {
	const step = 100 * time.Millisecond
	for elapsed := time.Duration(0); elapsed < d; elapsed += step {
		h.clock.Advance(step)
		h.loop.Drain()
	}
}

func (h *harness) register(name string, langs ...string) *providertest.Fake {
	var fake *providertest.Fake
	h.do(func() {
		require.NoError(h.t, h.reg.Register(name, providertest.Factory(name, langs, func(f *providertest.Fake) {
			fake = f
		}), provider.Config{"command": name}))
	})
	h.do(func() { require.NoError(h.t, h.reg.Start(name)) })
	require.NotNil(h.t, fake)
	return fake
}

func (h *harness) status(name string) provider.Status {
	var s provider.Status
	h.do(func() { s = h.reg.Status(name) })
	return s
}

func (h *harness) path(name string) []provider.Status {
	var out []provider.Status
	for _, ev := range h.events {
		if ev.Name != name {
			continue
		}
		if len(out) == 0 {
			out = append(out, ev.From)
		}
		out = append(out, ev.To)
	}
	return out
}

func (h *harness) downEvents() int {
	n := 0
	for _, ev := range h.events {
		if ev.IsDown() {
			n++
		}
	}
	return n
}

func TestStartReachesRunningOnReady(t *testing.T) {
	h := newHarness(t)
	h.register("lsp", "python", "go")

	assert.Equal(t, provider.StatusRunning, h.status("lsp"))
	assert.Equal(t, []provider.Status{
		provider.StatusStopped, provider.StatusStarting, provider.StatusRunning,
	}, h.path("lsp"))

	h.do(func() {
		assert.Equal(t, []string{"go", "python"}, h.reg.Languages())
		require.Len(t, h.reg.Running("go"), 1)
		assert.Empty(t, h.reg.Running("rust"))
		assert.Len(t, h.reg.Running(""), 1)
	})
}

func TestNotRoutedBeforeReady(t *testing.T) {
	h := newHarness(t)
	var fake *providertest.Fake
	h.do(func() {
		require.NoError(t, h.reg.Register("lsp", providertest.Factory("lsp", []string{"go"}, func(f *providertest.Fake) {
			f.SetReadyOnStart(false)
			fake = f
		}), nil))
		require.NoError(t, h.reg.Start("lsp"))
	})
	assert.Equal(t, provider.StatusStarting, h.status("lsp"))
	h.do(func() { assert.Empty(t, h.reg.Running("go")) })

	fake.Ready()
	h.loop.Drain()
	assert.Equal(t, provider.StatusRunning, h.status("lsp"))
}

func TestHeartbeatRestartSuccess(t *testing.T) {
	h := newHarness(t)
	fake := h.register("lsp", "python")

	fake.SetAlive(false)
	h.advance(3 * time.Second)
	assert.Equal(t, provider.StatusRestarting, h.status("lsp"))

	fake.SetAlive(true)
	h.advance(10 * time.Second)
	assert.Equal(t, provider.StatusRunning, h.status("lsp"))

	assert.Equal(t, []provider.Status{
		provider.StatusStopped, provider.StatusStarting, provider.StatusRunning,
		provider.StatusRestarting, provider.StatusRunning,
	}, h.path("lsp"))
	assert.Zero(t, h.downEvents())
	assert.Equal(t, []string{"start", "shutdown", "start"}, fake.Calls())

	// Heartbeat resumes after recovery.
	h.advance(3 * time.Second)
	assert.Equal(t, provider.StatusRunning, h.status("lsp"))
}

func TestRestartAttemptsExhausted(t *testing.T) {
	h := newHarness(t)
	fake := h.register("lsp", "python")

	fake.SetAlive(false)
	fake.SetReadyOnStart(false)
	h.advance(3 * time.Second)
	require.Equal(t, provider.StatusRestarting, h.status("lsp"))

	h.advance(50 * time.Second)
	assert.Equal(t, provider.StatusRestarting, h.status("lsp"), "five attempts still pending")
	assert.Equal(t, 6, fake.Starts())

	h.advance(10 * time.Second)
	assert.Equal(t, provider.StatusDown, h.status("lsp"))
	assert.Equal(t, 1, h.downEvents())
	assert.Equal(t, 6, fake.Starts())
	assert.Zero(t, h.clock.PendingTimers())

	// Manual restart always moves to Starting.
	fake.SetAlive(true)
	fake.SetReadyOnStart(true)
	h.do(func() { require.NoError(t, h.reg.Restart("lsp")) })
	assert.Equal(t, provider.StatusRunning, h.status("lsp"))
}

func TestProviderDownSignalRestarts(t *testing.T) {
	h := newHarness(t)
	fake := h.register("lsp", "go")

	fake.Down(errors.New("process exited"))
	h.loop.Drain()
	assert.Equal(t, provider.StatusRestarting, h.status("lsp"))

	h.advance(10 * time.Second)
	assert.Equal(t, provider.StatusRunning, h.status("lsp"))
}

func TestStartErrorMovesToDown(t *testing.T) {
	h := newHarness(t)
	var fake *providertest.Fake
	h.do(func() {
		require.NoError(t, h.reg.Register("lsp", providertest.Factory("lsp", []string{"go"}, func(f *providertest.Fake) {
			f.SetStartError(errors.New("exec: not found"))
			fake = f
		}), nil))
		require.Error(t, h.reg.Start("lsp"))
	})
	assert.Equal(t, provider.StatusDown, h.status("lsp"))
	assert.Equal(t, 1, h.downEvents())

	fake.SetStartError(nil)
	h.do(func() { require.NoError(t, h.reg.Start("lsp")) })
	assert.Equal(t, provider.StatusRunning, h.status("lsp"))
}

func TestFactoryErrorMovesToDown(t *testing.T) {
	h := newHarness(t)
	h.do(func() {
		require.NoError(t, h.reg.Register("engine", func(provider.Config, provider.Sink) (provider.Provider, error) {
			return nil, provider.ErrInvalidConfig
		}, nil))
		require.ErrorIs(t, h.reg.Start("engine"), provider.ErrInvalidConfig)
	})
	assert.Equal(t, provider.StatusDown, h.status("engine"))
}

func TestDuplicateReadyIsIdempotent(t *testing.T) {
	h := newHarness(t)
	fake := h.register("lsp", "go")
	before := len(h.events)

	fake.Ready()
	h.loop.Drain()
	assert.Equal(t, provider.StatusRunning, h.status("lsp"))
	assert.Len(t, h.events, before)
}

func TestStopCancelsTimers(t *testing.T) {
	h := newHarness(t)
	fake := h.register("lsp", "go")
	require.Equal(t, 1, h.clock.PendingTimers())

	h.do(func() { require.NoError(t, h.reg.Stop("lsp")) })
	assert.Equal(t, provider.StatusStopped, h.status("lsp"))
	assert.Zero(t, h.clock.PendingTimers())
	assert.Equal(t, 1, fake.Shutdowns())

	fake.Ready()
	h.loop.Drain()
	assert.Equal(t, provider.StatusStopped, h.status("lsp"))

	h.do(func() { require.NoError(t, h.reg.Stop("lsp")) })
	assert.Equal(t, 1, fake.Shutdowns())
}

func TestStopAllReturnsInstances(t *testing.T) {
	h := newHarness(t)
	a := h.register("lsp", "go")
	b := h.register("fallback", "*")

	var insts []provider.Provider
	h.do(func() { insts = h.reg.StopAll() })
	require.Len(t, insts, 2)
	assert.Same(t, a, insts[0])
	assert.Same(t, b, insts[1])
	assert.Zero(t, a.Shutdowns(), "caller shuts instances down")
	assert.Equal(t, provider.StatusStopped, h.status("fallback"))
}

func TestResponsesForwarded(t *testing.T) {
	h := newHarness(t)
	fake := h.register("lsp", "go")

	type got struct {
		name string
		id   int64
		body any
	}
	var responses []got
	h.do(func() {
		h.reg.OnResponse(func(name string, id int64, body any) {
			responses = append(responses, got{name, id, body})
		})
	})

	fake.Respond(7, "hover text")
	h.loop.Drain()
	require.Len(t, responses, 1)
	assert.Equal(t, got{"lsp", 7, "hover text"}, responses[0])
}

func TestReconfigureRestartSensitive(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newHarness(t)

	first := mock_provider.NewMockProvider(ctrl)
	second := mock_provider.NewMockProvider(ctrl)
	instances := []*mock_provider.MockProvider{first, second}
	var sinks []provider.Sink
	factory := func(cfg provider.Config, sink provider.Sink) (provider.Provider, error) {
		sinks = append(sinks, sink)
		return instances[len(sinks)-1], nil
	}

	first.EXPECT().Start().Return(nil)
	h.do(func() {
		require.NoError(t, h.reg.Register("lsp", factory, provider.Config{"command": "a", "args": []any{}}))
		require.NoError(t, h.reg.Start("lsp"))
	})
	sinks[0].Ready("lsp", []string{"python"})
	h.loop.Drain()
	require.Equal(t, provider.StatusRunning, h.status("lsp"))

	gomock.InOrder(
		first.EXPECT().Shutdown().Return(nil),
		second.EXPECT().Start().Return(nil),
	)
	var restarted bool
	h.do(func() {
		var err error
		restarted, err = h.reg.Reconfigure("lsp", provider.Config{"command": "b", "args": []any{}})
		require.NoError(t, err)
	})
	assert.True(t, restarted)
	require.Len(t, sinks, 2)

	// A late ready from the old instance is ignored.
	sinks[0].Ready("lsp", []string{"python"})
	h.loop.Drain()
	assert.Equal(t, provider.StatusStarting, h.status("lsp"))

	sinks[1].Ready("lsp", []string{"python"})
	h.loop.Drain()

	second.EXPECT().Supports("python").Return(true)
	h.do(func() {
		running := h.reg.Running("python")
		require.Len(t, running, 1)
		assert.Same(t, second, running[0].Provider)
		assert.Equal(t, "b", h.reg.Config("lsp").String("command", ""))
	})
}

func TestReconfigurePushesNonSensitive(t *testing.T) {
	h := newHarness(t)
	fake := h.register("lsp", "go")

	var restarted bool
	h.do(func() {
		var err error
		restarted, err = h.reg.Reconfigure("lsp", provider.Config{"command": "lsp", "trace": "verbose"})
		require.NoError(t, err)
	})
	assert.False(t, restarted)
	assert.Equal(t, 1, fake.Starts())

	notes := fake.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, provider.KindConfigChange, notes[0].Kind)
	assert.Equal(t, "verbose", notes[0].Payload.Settings["trace"])
}

func TestReconfigureStoppedDoesNotStart(t *testing.T) {
	h := newHarness(t)
	builds := 0
	h.do(func() {
		require.NoError(t, h.reg.Register("lsp", providertest.Factory("lsp", []string{"go"}, func(*providertest.Fake) {
			builds++
		}), provider.Config{"command": "a"}))
		restarted, err := h.reg.Reconfigure("lsp", provider.Config{"command": "b"})
		require.NoError(t, err)
		assert.False(t, restarted)
	})
	assert.Zero(t, builds)
	assert.Equal(t, provider.StatusStopped, h.status("lsp"))
}

func TestRegistrationErrors(t *testing.T) {
	h := newHarness(t)
	h.do(func() {
		f := providertest.Factory("lsp", nil, nil)
		require.NoError(t, h.reg.Register("lsp", f, nil))
		require.ErrorIs(t, h.reg.Register("lsp", f, nil), ErrDuplicateProvider)
		require.ErrorIs(t, h.reg.Register("x", nil, nil), ErrNoFactory)
		require.ErrorIs(t, h.reg.Start("nope"), ErrUnknownProvider)
		_, err := h.reg.Reconfigure("nope", nil)
		require.ErrorIs(t, err, ErrUnknownProvider)
	})
}

func TestPanickingHeartbeatCountsAsFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newHarness(t)
	m := mock_provider.NewMockProvider(ctrl)
	var sink provider.Sink

	m.EXPECT().Start().Return(nil).AnyTimes()
	m.EXPECT().Shutdown().Return(nil).AnyTimes()
	m.EXPECT().IsAlive().DoAndReturn(func() bool { panic("probe crashed") })

	h.do(func() {
		require.NoError(t, h.reg.Register("engine", func(_ provider.Config, s provider.Sink) (provider.Provider, error) {
			sink = s
			return m, nil
		}, nil))
		require.NoError(t, h.reg.Start("engine"))
	})
	sink.Ready("engine", []string{"python"})
	h.loop.Drain()

	h.advance(3 * time.Second)
	assert.Equal(t, provider.StatusRestarting, h.status("engine"))
}

func TestTransitionsFormValidPaths(t *testing.T) {
	h := newHarness(t)
	fake := h.register("lsp", "go")

	fake.SetAlive(false)
	h.advance(3 * time.Second)
	fake.SetAlive(true)
	h.advance(10 * time.Second)
	fake.Down(errors.New("eof"))
	h.loop.Drain()
	fake.SetReadyOnStart(false)
	h.advance(70 * time.Second)
	fake.SetReadyOnStart(true)
	h.do(func() { _ = h.reg.Restart("lsp") })
	h.do(func() { _ = h.reg.Stop("lsp") })

	require.NotEmpty(t, h.events)
	prev := provider.StatusStopped
	for _, ev := range h.events {
		assert.Equal(t, prev, ev.From)
		assert.True(t, ValidTransition(ev.From, ev.To), "%s -> %s", ev.From, ev.To)
		prev = ev.To
	}
	assert.Equal(t, provider.StatusStopped, prev)
}

func TestValidTransition(t *testing.T) {
	assert.True(t, ValidTransition(provider.StatusStopped, provider.StatusStarting))
	assert.True(t, ValidTransition(provider.StatusRestarting, provider.StatusDown))
	assert.False(t, ValidTransition(provider.StatusStopped, provider.StatusRunning))
	assert.False(t, ValidTransition(provider.StatusDown, provider.StatusRunning))

	err := &TransitionError{Name: "lsp", From: provider.StatusDown, To: provider.StatusRunning}
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "down -> running")
}
