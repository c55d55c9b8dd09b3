package snippets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/codeintel/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFile = `
snippets:
  Go:
    - prefix: iferr
      body: "if err != nil {\n\treturn nil, ${1:err}\n}"
      description: return two values on error
    - prefix: ifok
      body: "if ${1:v}, ok := ${2:m}[${3:k}]; ok {\n\t$0\n}"
  "*":
    - prefix: todo
      body: "TODO: $0"
`

type response struct {
	id   int64
	body any
}

type recordingSink struct {
	ready     [][]string
	responses []response
}

func (s *recordingSink) Ready(_ string, languages []string) { s.ready = append(s.ready, languages) }
func (s *recordingSink) Response(_ string, id int64, body any) {
	s.responses = append(s.responses, response{id, body})
}
func (s *recordingSink) Down(string, error) {}

func (s *recordingSink) last() any {
	return s.responses[len(s.responses)-1].body
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snippets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func labels(body any) []string {
	items, _ := body.([]provider.CompletionItem)
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Label
	}
	return out
}

func TestParse(t *testing.T) {
	set, err := Parse([]byte(sampleFile))
	require.NoError(t, err)
	assert.Len(t, set["go"], 2)
	assert.Len(t, set["*"], 1)
	assert.Equal(t, "return two values on error", set["go"][0].Description)

	_, err = Parse([]byte("snippets:\n  go:\n    - prefix: x\n"))
	assert.ErrorIs(t, err, ErrInvalidSnippet)

	_, err = Parse([]byte("snippets: ["))
	assert.Error(t, err)
}

func TestTableMatch(t *testing.T) {
	set, err := Parse([]byte(sampleFile))
	require.NoError(t, err)
	table := NewTable(Builtins(), set)

	var prefixes []string
	for _, s := range table.Match("go", "if") {
		prefixes = append(prefixes, s.Prefix)
	}
	assert.Equal(t, []string{"iferr", "ifok"}, prefixes)

	// The file overrides the built-in iferr.
	assert.Contains(t, table.Match("go", "iferr")[0].Body, "return nil, ")

	assert.Equal(t, "todo", table.Match("python", "to")[0].Prefix)
	assert.Empty(t, table.Match("python", "zz"))
	assert.Equal(t, []string{"*", "go", "javascript", "python"}, table.Languages())
}

func TestCompletion(t *testing.T) {
	sink := &recordingSink{}
	a := New("snippets", provider.Config{KeyLanguages: []any{"*"}, KeyFile: writeFile(t, sampleFile)}, sink)
	require.NoError(t, a.Start())
	assert.Equal(t, [][]string{{"*"}}, sink.ready)

	a.SendNotification("go", provider.KindDidOpen, provider.Payload{Path: "/a.go", Text: "func f() {\n\tife\n}"})
	a.SendRequest("go", provider.KindCompletion, provider.Payload{Path: "/a.go", Line: 1, Column: 4}, 1)

	items, ok := sink.last().([]provider.CompletionItem)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, "iferr", items[0].Label)
	assert.Equal(t, provider.CompletionSnippet, items[0].Kind)
	assert.Equal(t, provider.FormatSnippet, items[0].InsertTextFormat)

	a.SendRequest("go", provider.KindCompletion, provider.Payload{Prefix: "nothing"}, 2)
	assert.Nil(t, sink.last())

	a.SendRequest("go", provider.KindHover, provider.Payload{Prefix: "if"}, 3)
	assert.Nil(t, sink.last())
	assert.Len(t, sink.responses, 3)
}

func TestMalformedFileFailsStart(t *testing.T) {
	a := New("snippets", provider.Config{KeyFile: writeFile(t, "snippets: [")}, &recordingSink{})
	assert.Error(t, a.Start())
	assert.False(t, a.IsAlive())
}

func TestMissingFileKeepsBuiltins(t *testing.T) {
	sink := &recordingSink{}
	a := New("snippets", provider.Config{KeyLanguages: []any{"go"}, KeyFile: filepath.Join(t.TempDir(), "none.yaml")}, sink)
	require.NoError(t, a.Start())
	a.SendRequest("go", provider.KindCompletion, provider.Payload{Prefix: "for"}, 1)
	assert.Equal(t, []string{"fori", "forr"}, labels(sink.last()))
}

func TestSavingSnippetFileReloads(t *testing.T) {
	path := writeFile(t, sampleFile)
	sink := &recordingSink{}
	a := New("snippets", provider.Config{KeyLanguages: []any{"*"}, KeyFile: path, KeyBuiltins: false}, sink)
	require.NoError(t, a.Start())

	a.SendRequest("rust", provider.KindCompletion, provider.Payload{Prefix: "ma"}, 1)
	assert.Nil(t, sink.last())

	require.NoError(t, os.WriteFile(path, []byte("snippets:\n  rust:\n    - prefix: match\n      body: \"match $1 {}\"\n"), 0o644))
	a.SendNotification("yaml", provider.KindDidSave, provider.Payload{Path: path})

	a.SendRequest("rust", provider.KindCompletion, provider.Payload{Prefix: "ma"}, 2)
	assert.Equal(t, []string{"match"}, labels(sink.last()))

	// A broken save keeps the last good table.
	require.NoError(t, os.WriteFile(path, []byte("snippets: ["), 0o644))
	a.SendNotification("yaml", provider.KindDidSave, provider.Payload{Path: path})
	a.SendRequest("rust", provider.KindCompletion, provider.Payload{Prefix: "ma"}, 3)
	assert.Equal(t, []string{"match"}, labels(sink.last()))
}

func TestConfigChangeSwitchesBuiltins(t *testing.T) {
	sink := &recordingSink{}
	a := New("snippets", provider.Config{KeyLanguages: []any{"*"}}, sink)
	require.NoError(t, a.Start())
	a.SendRequest("python", provider.KindCompletion, provider.Payload{Prefix: "ifm"}, 1)
	assert.Equal(t, []string{"ifmain"}, labels(sink.last()))

	a.SendNotification("", provider.KindConfigChange, provider.Payload{Settings: map[string]any{KeyBuiltins: false}})
	a.SendRequest("python", provider.KindCompletion, provider.Payload{Prefix: "ifm"}, 2)
	assert.Nil(t, sink.last())
}
