package snippets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidSnippet is returned for a snippet without a prefix or body.
var ErrInvalidSnippet = errors.New("invalid snippet")

// Snippet is a single expandable template.
type Snippet struct {
	Prefix      string `yaml:"prefix"`
	Body        string `yaml:"body"`
	Description string `yaml:"description,omitempty"`
}

// File is the on-disk snippet file.
type File struct {
	Snippets map[string][]Snippet `yaml:"snippets"`
}

// Parse decodes a snippet file. Language keys are lowercased.
func Parse(data []byte) (map[string][]Snippet, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse snippets: %w", err)
	}
	out := make(map[string][]Snippet, len(f.Snippets))
	for lang, list := range f.Snippets {
		lang = strings.ToLower(strings.TrimSpace(lang))
		for i, s := range list {
			if strings.TrimSpace(s.Prefix) == "" || s.Body == "" {
				return nil, fmt.Errorf("%w: %s[%d]", ErrInvalidSnippet, lang, i)
			}
			out[lang] = append(out[lang], s)
		}
	}
	return out, nil
}

// Load reads and parses a snippet file.
func Load(path string) (map[string][]Snippet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Builtins returns the snippets shipped with the provider.
func Builtins() map[string][]Snippet {
	return map[string][]Snippet{
		"go": {
			{Prefix: "iferr", Body: "if err != nil {\n\treturn ${1:err}\n}", Description: "return on error"},
			{Prefix: "fori", Body: "for ${1:i} := 0; $1 < ${2:n}; $1++ {\n\t$0\n}", Description: "index loop"},
			{Prefix: "forr", Body: "for ${1:_}, ${2:v} := range ${3:xs} {\n\t$0\n}", Description: "range loop"},
			{Prefix: "func", Body: "func ${1:name}(${2}) ${3}{\n\t$0\n}", Description: "function"},
			{Prefix: "test", Body: "func Test${1:Name}(t *testing.T) {\n\t$0\n}", Description: "test function"},
		},
		"python": {
			{Prefix: "def", Body: "def ${1:name}(${2}):\n    ${0:pass}", Description: "function"},
			{Prefix: "class", Body: "class ${1:Name}:\n    def __init__(self${2}):\n        ${0:pass}", Description: "class"},
			{Prefix: "ifmain", Body: "if __name__ == \"__main__\":\n    ${0:main()}", Description: "main guard"},
		},
		"javascript": {
			{Prefix: "fn", Body: "function ${1:name}(${2}) {\n\t$0\n}", Description: "function"},
			{Prefix: "afn", Body: "(${1}) => {\n\t$0\n}", Description: "arrow function"},
		},
	}
}
