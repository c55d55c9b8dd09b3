package snippets

import (
	"github.com/armon/go-radix"
	"github.com/dshills/codeintel/internal/provider"
)

// Table holds snippets in one radix tree per language.
type Table struct {
	trees map[string]*radix.Tree
	size  int
}

// NewTable builds a table from snippets keyed by language. Later sets win
// for a repeated language and prefix.
func NewTable(sets ...map[string][]Snippet) *Table {
	t := &Table{trees: make(map[string]*radix.Tree)}
	for _, set := range sets {
		for lang, list := range set {
			for _, s := range list {
				t.add(lang, s)
			}
		}
	}
	return t
}

func (t *Table) add(lang string, s Snippet) {
	tree, ok := t.trees[lang]
	if !ok {
		tree = radix.New()
		t.trees[lang] = tree
	}
	if _, updated := tree.Insert(s.Prefix, s); !updated {
		t.size++
	}
}

// Len returns the number of distinct language and prefix pairs.
func (t *Table) Len() int {
	return t.size
}

// Languages returns the languages with snippets, wildcard included.
func (t *Table) Languages() []string {
	set := make(provider.LanguageSet, len(t.trees))
	for lang := range t.trees {
		set[lang] = struct{}{}
	}
	return set.Sorted()
}

// Match returns the snippets of language, then the wildcard ones, whose
// prefix starts with typed. Each group is in prefix order.
func (t *Table) Match(language, typed string) []Snippet {
	var out []Snippet
	seen := make(map[string]bool)
	for _, lang := range []string{language, provider.Wildcard} {
		tree, ok := t.trees[lang]
		if !ok {
			continue
		}
		tree.WalkPrefix(typed, func(key string, v interface{}) bool {
			if !seen[key] {
				seen[key] = true
				out = append(out, v.(Snippet))
			}
			return false
		})
	}
	return out
}
