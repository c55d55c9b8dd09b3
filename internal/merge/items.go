package merge

import (
	"encoding/json"

	"github.com/dshills/codeintel/internal/provider"
	"github.com/tidwall/gjson"
)

// Items flattens a completion body into items. Bodies may be a bare list or
// a dict with an "items" member, either typed or raw JSON. The second result
// is false when the body is not a recognizable completion body.
func Items(body any) ([]provider.CompletionItem, bool) {
	switch v := body.(type) {
	case nil:
		return nil, false
	case []provider.CompletionItem:
		return v, true
	case provider.CompletionList:
		return v.Items, true
	case *provider.CompletionList:
		if v == nil {
			return nil, false
		}
		return v.Items, true
	case json.RawMessage:
		return itemsFromJSON(gjson.ParseBytes(v))
	case []byte:
		return itemsFromJSON(gjson.ParseBytes(v))
	case string:
		if !gjson.Valid(v) {
			return nil, false
		}
		return itemsFromJSON(gjson.Parse(v))
	}

	// Generic decoded JSON ([]any, map[string]any).
	data, err := json.Marshal(body)
	if err != nil {
		return nil, false
	}
	return itemsFromJSON(gjson.ParseBytes(data))
}

func itemsFromJSON(res gjson.Result) ([]provider.CompletionItem, bool) {
	if res.IsObject() {
		res = res.Get("items")
	}
	if !res.IsArray() {
		return nil, false
	}

	var items []provider.CompletionItem
	res.ForEach(func(_, v gjson.Result) bool {
		if !v.IsObject() {
			if v.Type == gjson.String {
				items = append(items, provider.CompletionItem{Label: v.String()})
			}
			return true
		}
		items = append(items, itemFromJSON(v))
		return true
	})
	return items, true
}

// itemFromJSON accepts both snake_case and language-server camelCase field
// names.
func itemFromJSON(v gjson.Result) provider.CompletionItem {
	item := provider.CompletionItem{
		Label:         v.Get("label").String(),
		InsertText:    first(v, "insert_text", "insertText"),
		SortText:      first(v, "sort_text", "sortText"),
		FilterText:    first(v, "filter_text", "filterText"),
		Detail:        v.Get("detail").String(),
		Documentation: documentation(v.Get("documentation")),
		Provider:      v.Get("provider").String(),
	}

	kind := v.Get("kind")
	switch kind.Type {
	case gjson.Number:
		item.Kind = provider.CompletionKindFromLSP(int(kind.Int()))
	case gjson.String:
		item.Kind = provider.CompletionKind(kind.String())
	}

	format := v.Get("insert_text_format")
	if !format.Exists() {
		format = v.Get("insertTextFormat")
	}
	if format.String() == string(provider.FormatSnippet) || format.Int() == 2 {
		item.InsertTextFormat = provider.FormatSnippet
	}
	return item
}

func first(v gjson.Result, keys ...string) string {
	for _, k := range keys {
		if r := v.Get(k); r.Exists() {
			return r.String()
		}
	}
	return ""
}

func documentation(v gjson.Result) string {
	if v.IsObject() {
		return v.Get("value").String()
	}
	return v.String()
}
