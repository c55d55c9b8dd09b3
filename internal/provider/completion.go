package provider

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CompletionKind is the closed set of completion item categories.
type CompletionKind string

// Completion item kinds.
const (
	CompletionText        CompletionKind = "text"
	CompletionMethod      CompletionKind = "method"
	CompletionFunction    CompletionKind = "function"
	CompletionConstructor CompletionKind = "constructor"
	CompletionField       CompletionKind = "field"
	CompletionVariable    CompletionKind = "variable"
	CompletionClass       CompletionKind = "class"
	CompletionInterface   CompletionKind = "interface"
	CompletionModule      CompletionKind = "module"
	CompletionProperty    CompletionKind = "property"
	CompletionUnit        CompletionKind = "unit"
	CompletionValue       CompletionKind = "value"
	CompletionEnum        CompletionKind = "enum"
	CompletionKeyword     CompletionKind = "keyword"
	CompletionSnippet     CompletionKind = "snippet"
	CompletionColor       CompletionKind = "color"
	CompletionFile        CompletionKind = "file"
	CompletionReference   CompletionKind = "reference"
)

var completionKinds = map[CompletionKind]struct{}{
	CompletionText: {}, CompletionMethod: {}, CompletionFunction: {},
	CompletionConstructor: {}, CompletionField: {}, CompletionVariable: {},
	CompletionClass: {}, CompletionInterface: {}, CompletionModule: {},
	CompletionProperty: {}, CompletionUnit: {}, CompletionValue: {},
	CompletionEnum: {}, CompletionKeyword: {}, CompletionSnippet: {},
	CompletionColor: {}, CompletionFile: {}, CompletionReference: {},
}

// Valid reports whether k is a member of the closed set.
func (k CompletionKind) Valid() bool {
	_, ok := completionKinds[k]
	return ok
}

// InsertTextFormat tells the editor how to interpret InsertText.
type InsertTextFormat string

// Insert text formats.
const (
	FormatPlain   InsertTextFormat = "plain"
	FormatSnippet InsertTextFormat = "snippet"
)

// SortKey is the composite ordering key assigned during completion merge:
// provider priority first, then the provider's own sort text.
type SortKey struct {
	Priority int    `json:"priority"`
	Text     string `json:"text"`
}

// Less orders keys lexicographically.
func (k SortKey) Less(o SortKey) bool {
	if k.Priority != o.Priority {
		return k.Priority < o.Priority
	}
	return k.Text < o.Text
}

// String renders the key as a single sortable string.
func (k SortKey) String() string {
	return fmt.Sprintf("%04d:%s", k.Priority, k.Text)
}

// MarshalJSON renders the key as a two-element tuple.
func (k SortKey) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{k.Priority, k.Text})
}

// UnmarshalJSON accepts the tuple form written by MarshalJSON.
func (k *SortKey) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 2 {
		return fmt.Errorf("sort key: expected 2 elements, got %d", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &k.Priority); err != nil {
		return err
	}
	return json.Unmarshal(tuple[1], &k.Text)
}

// CompletionItem is a single completion candidate.
type CompletionItem struct {
	Label            string           `json:"label"`
	InsertText       string           `json:"insert_text"`
	Kind             CompletionKind   `json:"kind"`
	SortText         string           `json:"sort_text"`
	FilterText       string           `json:"filter_text"`
	Detail           string           `json:"detail"`
	Documentation    string           `json:"documentation"`
	InsertTextFormat InsertTextFormat `json:"insert_text_format"`
	Provider         string           `json:"provider"`

	// SortKey is set by the merger. Items are delivered in SortKey order.
	SortKey SortKey `json:"sort_key"`
}

// Normalize fills the fields a provider left out so that every field is
// present after merge.
func (c CompletionItem) Normalize() CompletionItem {
	if c.SortText == "" {
		c.SortText = c.Label
	}
	if c.InsertText == "" {
		c.InsertText = c.Label
	}
	if c.FilterText == "" {
		c.FilterText = c.Label
	}
	if !c.Kind.Valid() {
		c.Kind = CompletionText
	}
	if c.InsertTextFormat != FormatSnippet {
		c.InsertTextFormat = FormatPlain
	}
	return c
}

// DedupKey is the key used to detect duplicate entries.
func (c CompletionItem) DedupKey() string {
	return strings.TrimSpace(c.Label)
}

// CompletionList is the dict-shaped completion body some providers return.
type CompletionList struct {
	IsIncomplete bool             `json:"is_incomplete,omitempty"`
	Items        []CompletionItem `json:"items"`
}

var lspCompletionKinds = map[int]CompletionKind{
	1: CompletionText, 2: CompletionMethod, 3: CompletionFunction,
	4: CompletionConstructor, 5: CompletionField, 6: CompletionVariable,
	7: CompletionClass, 8: CompletionInterface, 9: CompletionModule,
	10: CompletionProperty, 11: CompletionUnit, 12: CompletionValue,
	13: CompletionEnum, 14: CompletionKeyword, 15: CompletionSnippet,
	16: CompletionColor, 17: CompletionFile, 18: CompletionReference,
	// Kinds outside the closed set fold onto their nearest member.
	19: CompletionFile, 20: CompletionEnum, 21: CompletionValue,
	22: CompletionClass, 23: CompletionField, 24: CompletionKeyword,
	25: CompletionClass,
}

// CompletionKindFromLSP maps a numeric language-server completion kind onto
// the closed set. Unknown values map to text.
func CompletionKindFromLSP(n int) CompletionKind {
	if k, ok := lspCompletionKinds[n]; ok {
		return k
	}
	return CompletionText
}
