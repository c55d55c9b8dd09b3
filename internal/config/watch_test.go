package config

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dshills/codeintel/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreWatcherReloadsOnWrite(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), StoreFileName))

	var (
		mu   sync.Mutex
		seen []map[string]provider.Config
	)
	w, err := WatchStore(s, func(values map[string]provider.Config) {
		mu.Lock()
		seen = append(seen, values)
		mu.Unlock()
	}, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, s.Save(map[string]Stored{
		"lsp": {Version: MustParseVersion("1.0.0"), Values: map[string]any{"command": "b"}},
	}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, values := range seen {
			if values["lsp"].String("command", "") == "b" {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStoreWatcherCloseIdempotent(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), StoreFileName))
	w, err := WatchStore(s, func(map[string]provider.Config) {})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
