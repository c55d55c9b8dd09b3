package mcpserver

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/codeintel/internal/provider"
	"github.com/dshills/codeintel/internal/registry"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/mcptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	path     string
	language string
	kind     provider.Kind
	payload  provider.Payload
}

type fakeBackend struct {
	calls  []call
	body   any
	err    error
	closed []string
	infos  []registry.Info
}

func (b *fakeBackend) Request(_ context.Context, path, language string, kind provider.Kind, p provider.Payload) (any, error) {
	b.calls = append(b.calls, call{path, language, kind, p})
	return b.body, b.err
}

func (b *fakeBackend) Close(path string) bool {
	b.closed = append(b.closed, path)
	return path == "/open.go"
}

func (b *fakeBackend) Providers(context.Context) ([]registry.Info, error) {
	return b.infos, nil
}

func callTool(t *testing.T, b *fakeBackend, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	srv, err := mcptest.NewServer(t, New(b, nil).Tools()...)
	require.NoError(t, err)
	defer srv.Close()

	result, err := srv.Client().CallTool(context.Background(), mcp.CallToolRequest{
		Request: mcp.Request{Method: "tools/call"},
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	require.NoError(t, err)
	return result
}

func text(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, r.Content)
	tc, ok := r.Content[0].(mcp.TextContent)
	require.True(t, ok, "content is %T", r.Content[0])
	return tc.Text
}

func TestCompleteTool(t *testing.T) {
	b := &fakeBackend{body: []provider.CompletionItem{{Label: "Println", Kind: provider.CompletionFunction}}}
	r := callTool(t, b, "complete", map[string]any{
		"path":     "/src/main.go",
		"line":     4,
		"column":   9,
		"language": "go",
	})
	assert.False(t, r.IsError)
	assert.Contains(t, text(t, r), `"label": "Println"`)

	require.Len(t, b.calls, 1)
	c := b.calls[0]
	assert.Equal(t, "/src/main.go", c.path)
	assert.Equal(t, "go", c.language)
	assert.Equal(t, provider.KindCompletion, c.kind)
	assert.Equal(t, 4, c.payload.Line)
	assert.Equal(t, 9, c.payload.Column)
}

func TestEmptyResult(t *testing.T) {
	r := callTool(t, &fakeBackend{}, "hover", map[string]any{"path": "/a.py"})
	assert.False(t, r.IsError)
	assert.Equal(t, noResult, text(t, r))
}

func TestRenameNeedsNewName(t *testing.T) {
	b := &fakeBackend{}
	r := callTool(t, b, "rename", map[string]any{"path": "/a.go", "line": 1, "column": 1, "new_name": ""})
	assert.True(t, r.IsError)
	assert.Empty(t, b.calls)

	r = callTool(t, b, "rename", map[string]any{"path": "/a.go", "new_name": "renamed"})
	assert.False(t, r.IsError)
	require.Len(t, b.calls, 1)
	assert.Equal(t, "renamed", b.calls[0].payload.NewName)
}

func TestReferencesFlags(t *testing.T) {
	b := &fakeBackend{body: []provider.Location{{Path: "/a.go", Line: 3}}}
	r := callTool(t, b, "references", map[string]any{"path": "/a.go", "include_declaration": true})
	assert.Contains(t, text(t, r), `"path": "/a.go"`)
	assert.True(t, b.calls[0].payload.IncludeDeclaration)
}

func TestNegativePositionRejected(t *testing.T) {
	b := &fakeBackend{}
	r := callTool(t, b, "definition", map[string]any{"path": "/a.go", "line": -1})
	assert.True(t, r.IsError)
	assert.Empty(t, b.calls)
}

func TestBackendErrorIsToolError(t *testing.T) {
	b := &fakeBackend{err: errors.New("core not running")}
	r := callTool(t, b, "signature_help", map[string]any{"path": "/a.go"})
	assert.True(t, r.IsError)
	assert.Contains(t, text(t, r), "core not running")
}

func TestProvidersTool(t *testing.T) {
	b := &fakeBackend{infos: []registry.Info{
		{Name: "lsp", Status: provider.StatusRunning, Languages: []string{"go", "python"}},
		{Name: "script", Status: provider.StatusStopped},
	}}
	r := callTool(t, b, "providers", nil)
	got := text(t, r)
	assert.Contains(t, got, "lsp\t"+provider.StatusRunning.String()+"\tgo,python\n")
	assert.Contains(t, got, "script\t"+provider.StatusStopped.String()+"\n")
}

func TestCloseTool(t *testing.T) {
	b := &fakeBackend{}
	assert.Equal(t, "closed", text(t, callTool(t, b, "close", map[string]any{"path": "/open.go"})))
	assert.Equal(t, "not open", text(t, callTool(t, b, "close", map[string]any{"path": "/other.go"})))
}

func TestToolsHaveUniqueNames(t *testing.T) {
	seen := map[string]bool{}
	for _, tool := range New(&fakeBackend{}, nil).Tools() {
		assert.False(t, seen[tool.Tool.Name], tool.Tool.Name)
		seen[tool.Tool.Name] = true
	}
	assert.Len(t, seen, 12)
}
