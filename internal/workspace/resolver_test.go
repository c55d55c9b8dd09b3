package workspace

import (
	"path/filepath"
	"testing"

	"github.com/dshills/codeintel/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	language string
	kind     provider.Kind
	payload  provider.Payload
}

type recordingNotifier struct {
	sent []sent
}

func (n *recordingNotifier) SendNotification(language string, kind provider.Kind, payload provider.Payload) int {
	n.sent = append(n.sent, sent{language, kind, payload})
	return 1
}

func TestResolverDefaultsToWorkingDirectory(t *testing.T) {
	r := NewResolver(nil)
	assert.Equal(t, DefaultRoot(), r.Root("python"))
	assert.Equal(t, []string{DefaultRoot()}, r.Folders())
}

func TestResolverSetNotifies(t *testing.T) {
	base := t.TempDir()
	n := &recordingNotifier{}
	r := NewResolver(n, WithDefaultRoot(base))

	proj := filepath.Join(base, "proj")
	assert.True(t, r.Set("python", proj))
	assert.Equal(t, proj, r.Root("python"))
	assert.Equal(t, base, r.Root("go"))

	require.Len(t, n.sent, 1)
	got := n.sent[0]
	assert.Equal(t, "python", got.language)
	assert.Equal(t, provider.KindWorkspaceFoldersChange, got.kind)
	assert.Equal(t, []string{proj}, got.payload.Added)
	assert.Equal(t, []string{base}, got.payload.Removed)
	assert.Equal(t, proj, got.payload.Path)
}

func TestResolverSetSameRootIsSilent(t *testing.T) {
	base := t.TempDir()
	n := &recordingNotifier{}
	r := NewResolver(n, WithDefaultRoot(base))

	assert.False(t, r.Set("python", base))
	assert.False(t, r.Set("python", ""))
	assert.Empty(t, n.sent)
	assert.Equal(t, map[string]string{"python": base}, r.Roots())
}

func TestResolverReset(t *testing.T) {
	base := t.TempDir()
	n := &recordingNotifier{}
	r := NewResolver(n, WithDefaultRoot(base))
	other := filepath.Join(base, "other")

	r.Set("go", other)
	assert.True(t, r.Reset("go"))
	assert.False(t, r.Reset("go"))
	assert.Equal(t, base, r.Root("go"))

	require.Len(t, n.sent, 2)
	assert.Equal(t, []string{other}, n.sent[1].payload.Removed)
	assert.Equal(t, []string{base}, n.sent[1].payload.Added)
}

func TestResolverFolders(t *testing.T) {
	base := t.TempDir()
	r := NewResolver(nil, WithDefaultRoot(base))
	r.Set("go", filepath.Join(base, "b"))
	r.Set("python", filepath.Join(base, "a"))
	r.Set("rust", filepath.Join(base, "a"))

	assert.Equal(t, []string{base, filepath.Join(base, "a"), filepath.Join(base, "b")}, r.Folders())
}
