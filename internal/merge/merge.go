// Package merge combines per-provider responses into the single body that is
// delivered to the originator.
//
// Completion responses are merged: items from every provider are collected
// in provider-priority order, duplicates by trimmed label are dropped, and the
// survivors are ordered by the composite (priority index, sort text) key.
// Every other request kind takes the first non-empty body in priority order.
package merge

import (
	"sort"

	"github.com/dshills/codeintel/internal/provider"
)

// Provider names used by the default priority order.
const (
	ProviderLSP      = "lsp"
	ProviderEngine   = "engine"
	ProviderFallback = "fallback"
	ProviderSnippets = "snippets"
	ProviderScript   = "script"
)

// DefaultOrder is the priority order used for kinds without an explicit one.
var DefaultOrder = []string{ProviderLSP, ProviderEngine, ProviderFallback, ProviderSnippets, ProviderScript}

// Merger applies the merge policy for each request kind. It is immutable
// after construction.
type Merger struct {
	order map[provider.Kind][]string
	def   []string
}

// Option configures a Merger.
type Option func(*Merger)

// WithOrder sets the priority order for a kind.
func WithOrder(kind provider.Kind, order []string) Option {
	return func(m *Merger) {
		m.order[kind] = append([]string(nil), order...)
	}
}

// WithDefaultOrder sets the order used for kinds without an explicit order.
func WithDefaultOrder(order []string) Option {
	return func(m *Merger) {
		m.def = append([]string(nil), order...)
	}
}

// New creates a merger.
func New(opts ...Option) *Merger {
	m := &Merger{
		order: make(map[provider.Kind][]string),
		def:   append([]string(nil), DefaultOrder...),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Order returns the priority order for kind. Configured names come first in
// configured order; sources missing from the configuration follow in name
// order. A name's position in the result is its priority index.
func (m *Merger) Order(kind provider.Kind, sources map[string]any) []string {
	configured, ok := m.order[kind]
	if !ok {
		configured = m.def
	}

	out := make([]string, 0, len(configured)+len(sources))
	listed := make(map[string]bool, len(configured))
	for _, name := range configured {
		if listed[name] {
			continue
		}
		listed[name] = true
		out = append(out, name)
	}

	var rest []string
	for name := range sources {
		if !listed[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// Merge combines sources for kind. The result is nil when nothing useful was
// produced.
func (m *Merger) Merge(kind provider.Kind, sources map[string]any) any {
	order := m.Order(kind, sources)
	if kind == provider.KindCompletion {
		items := Completion(order, sources)
		if len(items) == 0 {
			return nil
		}
		return items
	}
	return FirstNonEmpty(order, sources)
}

// FirstNonEmpty returns the first body in order that is not empty.
func FirstNonEmpty(order []string, sources map[string]any) any {
	for _, name := range order {
		body, ok := sources[name]
		if !ok || provider.IsEmpty(body) {
			continue
		}
		return body
	}
	return nil
}

// Completion merges completion bodies. order[i] gets priority index i.
func Completion(order []string, sources map[string]any) []provider.CompletionItem {
	var (
		result []provider.CompletionItem
		seen   = make(map[string]struct{})
	)
	for idx, name := range order {
		items, ok := Items(sources[name])
		if !ok {
			continue
		}
		for _, item := range items {
			key := item.DedupKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			item = item.Normalize()
			item.Provider = name
			item.SortKey = provider.SortKey{Priority: idx, Text: item.SortText}
			result = append(result, item)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].SortKey.Less(result[j].SortKey)
	})
	return result
}
