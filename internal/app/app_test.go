package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dshills/codeintel/internal/config"
	"github.com/dshills/codeintel/internal/provider"
	"github.com/dshills/codeintel/internal/provider/providertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakes collects the instances built by the test factories.
type fakes struct {
	mu sync.Mutex
	m  map[string][]*providertest.Fake
}

func (f *fakes) spec(name string, enabled bool, setup func(*providertest.Fake), languages ...string) ProviderSpec {
	return ProviderSpec{
		Name: name,
		Factory: providertest.Factory(name, languages, func(fk *providertest.Fake) {
			if setup != nil {
				setup(fk)
			}
			f.mu.Lock()
			f.m[name] = append(f.m[name], fk)
			f.mu.Unlock()
		}),
		Defaults: config.Declared{
			Version: config.MustParseVersion("1.0.0"),
			Values:  map[string]any{provider.KeyEnabled: enabled, provider.KeyCommand: name},
		},
	}
}

func (f *fakes) get(t *testing.T, name string) *providertest.Fake {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.m[name]
	require.NotEmpty(t, list, "no instance of %s", name)
	return list[len(list)-1]
}

func (f *fakes) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.m[name])
}

func respondItems(labels ...string) func(providertest.Request) (any, bool) {
	return func(r providertest.Request) (any, bool) {
		if r.Kind != provider.KindCompletion {
			return nil, true
		}
		items := make([]provider.CompletionItem, len(labels))
		for i, l := range labels {
			items[i] = provider.CompletionItem{Label: l}
		}
		return items, true
	}
}

func testSettings(t *testing.T) config.Settings {
	t.Helper()
	return config.Settings{
		StateDir:  t.TempDir(),
		WaitForMS: 200,
		WaitFor:   map[string][]string{"completion": {"lsp"}, "hover": {"lsp"}},
	}
}

func startCore(t *testing.T, opts Options) *Core {
	t.Helper()
	if opts.Settings.StateDir == "" {
		opts.Settings = testSettings(t)
	}
	c, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })
	return c
}

func labels(t *testing.T, body any) []string {
	t.Helper()
	items, ok := body.([]provider.CompletionItem)
	require.True(t, ok, "body is %T", body)
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Label
	}
	return out
}

func ctxTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRequestMergesCompletions(t *testing.T) {
	f := &fakes{m: map[string][]*providertest.Fake{}}
	c := startCore(t, Options{Providers: []ProviderSpec{
		f.spec("fallback", true, func(fk *providertest.Fake) { fk.RespondWith(respondItems("beta", "alpha")) }, "*"),
		f.spec("lsp", true, func(fk *providertest.Fake) { fk.RespondWith(respondItems("alpha", "gamma")) }, "go"),
	}})

	body, err := c.Request(ctxTimeout(t), "go", provider.KindCompletion, provider.Payload{Path: "/a.go"})
	require.NoError(t, err)
	got := labels(t, body)
	// lsp items come first by priority; the duplicate "alpha" is dropped.
	assert.Equal(t, "alpha", got[0])
	assert.Equal(t, "gamma", got[1])
	assert.ElementsMatch(t, []string{"alpha", "gamma", "beta"}, got)

	m := c.Metrics().Snapshot()
	assert.EqualValues(t, 1, m.Requests)
	assert.EqualValues(t, 1, m.Answered)
}

func TestRequestWithoutSupportingProviderIsNil(t *testing.T) {
	f := &fakes{m: map[string][]*providertest.Fake{}}
	c := startCore(t, Options{Providers: []ProviderSpec{
		f.spec("lsp", true, nil, "python"),
	}})

	body, err := c.Request(ctxTimeout(t), "go", provider.KindHover, provider.Payload{})
	require.NoError(t, err)
	assert.Nil(t, body)
	assert.Empty(t, f.get(t, "lsp").Requests())
}

func TestRequestCancelledDetaches(t *testing.T) {
	f := &fakes{m: map[string][]*providertest.Fake{}}
	s := testSettings(t)
	s.WaitForMS = 60000
	c := startCore(t, Options{Settings: s, Providers: []ProviderSpec{
		f.spec("lsp", true, nil, "go"),
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Request(ctx, "go", provider.KindHover, provider.Payload{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	st, err := c.Stats(ctxTimeout(t))
	require.NoError(t, err)
	assert.Zero(t, st.Router.Live)
	assert.EqualValues(t, 1, st.Metrics.Abandoned)
}

func TestDisabledProviderIsNotStarted(t *testing.T) {
	f := &fakes{m: map[string][]*providertest.Fake{}}
	c := startCore(t, Options{Providers: []ProviderSpec{
		f.spec("lsp", true, nil, "go"),
		f.spec("script", false, nil, "go"),
	}})

	infos, err := c.Providers(ctxTimeout(t))
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, provider.StatusRunning, infos[0].Status)
	assert.Equal(t, provider.StatusStopped, infos[1].Status)
	assert.Zero(t, f.count("script"))
}

func TestToggleEnabledStartsAndStops(t *testing.T) {
	f := &fakes{m: map[string][]*providertest.Fake{}}
	c := startCore(t, Options{Providers: []ProviderSpec{
		f.spec("script", false, nil, "go"),
	}})
	ctx := ctxTimeout(t)

	cfgs, err := c.ProviderConfigs(ctx)
	require.NoError(t, err)
	cfg := cfgs["script"]
	cfg[provider.KeyEnabled] = true
	require.NoError(t, c.SetProviderConfig(ctx, "script", cfg))

	infos, err := c.Providers(ctx)
	require.NoError(t, err)
	assert.Equal(t, provider.StatusRunning, infos[0].Status)
	assert.Equal(t, 1, f.get(t, "script").Starts())

	cfg = cfg.Clone()
	cfg[provider.KeyEnabled] = false
	require.NoError(t, c.SetProviderConfig(ctx, "script", cfg))
	infos, err = c.Providers(ctx)
	require.NoError(t, err)
	assert.Equal(t, provider.StatusStopped, infos[0].Status)
	assert.Equal(t, 1, f.get(t, "script").Shutdowns())
}

func TestUnknownProviderConfig(t *testing.T) {
	f := &fakes{m: map[string][]*providertest.Fake{}}
	c := startCore(t, Options{Providers: []ProviderSpec{f.spec("lsp", true, nil, "go")}})
	err := c.SetProviderConfig(ctxTimeout(t), "nope", provider.Config{})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestNotificationsReachSupportingProviders(t *testing.T) {
	f := &fakes{m: map[string][]*providertest.Fake{}}
	c := startCore(t, Options{Providers: []ProviderSpec{
		f.spec("lsp", true, nil, "go"),
		f.spec("fallback", true, nil, "python"),
	}})

	c.SendNotification("go", provider.KindDidOpen, provider.Payload{Path: "/a.go", Text: "package a"})
	c.Broadcast(provider.KindWatchedFilesChange, provider.Payload{})
	_, err := c.Stats(ctxTimeout(t))
	require.NoError(t, err)

	lsp := f.get(t, "lsp").Notifications()
	require.Len(t, lsp, 2)
	assert.Equal(t, provider.KindDidOpen, lsp[0].Kind)
	assert.Equal(t, provider.KindWatchedFilesChange, lsp[1].Kind)

	other := f.get(t, "fallback").Notifications()
	require.Len(t, other, 1)
	assert.Equal(t, provider.KindWatchedFilesChange, other[0].Kind)
}

func TestSetRootNotifiesProviders(t *testing.T) {
	f := &fakes{m: map[string][]*providertest.Fake{}}
	base := t.TempDir()
	c := startCore(t, Options{Root: base, Providers: []ProviderSpec{f.spec("lsp", true, nil, "go")}})
	ctx := ctxTimeout(t)

	root, err := c.Root(ctx, "go")
	require.NoError(t, err)
	assert.Equal(t, base, root)

	other := t.TempDir()
	c.SetRoot("go", other)
	root, err = c.Root(ctx, "go")
	require.NoError(t, err)
	assert.Equal(t, other, root)

	ns := f.get(t, "lsp").Notifications()
	require.Len(t, ns, 1)
	assert.Equal(t, provider.KindWorkspaceFoldersChange, ns[0].Kind)
	assert.Equal(t, []string{other}, ns[0].Payload.Added)
	assert.Equal(t, []string{base}, ns[0].Payload.Removed)
}

func TestRootPathInjectedIntoConfig(t *testing.T) {
	f := &fakes{m: map[string][]*providertest.Fake{}}
	root := t.TempDir()
	c := startCore(t, Options{Root: root, Providers: []ProviderSpec{f.spec("lsp", true, nil, "go")}})

	cfgs, err := c.ProviderConfigs(ctxTimeout(t))
	require.NoError(t, err)
	assert.Equal(t, root, cfgs["lsp"].String(keyRootPath, ""))
}

func TestProviderDownIsReported(t *testing.T) {
	f := &fakes{m: map[string][]*providertest.Fake{}}
	boom := errors.New("boom")
	s := testSettings(t)
	c, err := New(Options{Settings: s, Providers: []ProviderSpec{
		f.spec("lsp", true, func(fk *providertest.Fake) { fk.SetStartError(boom) }, "go"),
	}})
	require.NoError(t, err)

	downs := make(chan string, 1)
	c.OnProviderDown(func(name string, err error) {
		assert.ErrorIs(t, err, boom)
		downs <- name
	})
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })

	select {
	case name := <-downs:
		assert.Equal(t, "lsp", name)
	case <-time.After(2 * time.Second):
		t.Fatal("no down signal")
	}
}

func TestStoreWrittenOnFirstRun(t *testing.T) {
	f := &fakes{m: map[string][]*providertest.Fake{}}
	s := testSettings(t)
	_, err := New(Options{Settings: s, Providers: []ProviderSpec{f.spec("lsp", true, nil, "go")}})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(s.StateDir, config.StoreFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[lsp]")
	assert.Contains(t, string(data), "1.0.0")
}

func TestBrokenStoreFallsBackToDefaults(t *testing.T) {
	f := &fakes{m: map[string][]*providertest.Fake{}}
	s := testSettings(t)
	path := filepath.Join(s.StateDir, config.StoreFileName)
	require.NoError(t, os.WriteFile(path, []byte("[[[ not toml"), 0o644))

	c := startCore(t, Options{Settings: s, Providers: []ProviderSpec{f.spec("lsp", true, nil, "go")}})
	cfgs, err := c.ProviderConfigs(ctxTimeout(t))
	require.NoError(t, err)
	assert.Equal(t, "lsp", cfgs["lsp"].String(provider.KeyCommand, ""))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[[[ not toml", string(data))
}

func TestZeroSettingsUseDefaults(t *testing.T) {
	f := &fakes{m: map[string][]*providertest.Fake{}}
	c, err := New(Options{
		Store:     config.NewStore(filepath.Join(t.TempDir(), config.StoreFileName)),
		Providers: []ProviderSpec{f.spec("lsp", true, nil, "go")},
	})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultWaitForMS, c.Settings().WaitForMS)
	assert.Equal(t, config.DefaultWaitFor()["completion"], c.Settings().WaitFor["completion"])
}

func TestDuplicateSpecRejected(t *testing.T) {
	f := &fakes{m: map[string][]*providertest.Fake{}}
	_, err := New(Options{Settings: testSettings(t), Providers: []ProviderSpec{
		f.spec("lsp", true, nil, "go"),
		f.spec("lsp", true, nil, "go"),
	}})
	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "providers", initErr.Component)
}

func TestShutdownStopsProviders(t *testing.T) {
	f := &fakes{m: map[string][]*providertest.Fake{}}
	c, err := New(Options{Settings: testSettings(t), Providers: []ProviderSpec{
		f.spec("lsp", true, nil, "go"),
		f.spec("fallback", true, nil, "*"),
	}})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyRunning)

	require.NoError(t, c.Shutdown(context.Background()))
	require.NoError(t, c.Shutdown(context.Background()))
	assert.Equal(t, 1, f.get(t, "lsp").Shutdowns())
	assert.Equal(t, 1, f.get(t, "fallback").Shutdowns())

	_, err = c.Request(context.Background(), "go", provider.KindHover, provider.Payload{})
	assert.ErrorIs(t, err, ErrNotRunning)
	_, err = c.Stats(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestApplySettingsChangesMergeOrder(t *testing.T) {
	f := &fakes{m: map[string][]*providertest.Fake{}}
	c := startCore(t, Options{Providers: []ProviderSpec{
		f.spec("lsp", true, func(fk *providertest.Fake) { fk.RespondWith(respondItems("one")) }, "go"),
		f.spec("fallback", true, func(fk *providertest.Fake) { fk.RespondWith(respondItems("two")) }, "go"),
	}})

	s := c.Settings()
	s.Priority = map[string][]string{"completion": {"fallback", "lsp"}}
	c.ApplySettings(s)

	body, err := c.Request(ctxTimeout(t), "go", provider.KindCompletion, provider.Payload{})
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "one"}, labels(t, body))
	assert.Equal(t, []string{"fallback", "lsp"}, c.Settings().Priority["completion"])
}
