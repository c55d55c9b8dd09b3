package lsp

import (
	"encoding/json"
	"strings"

	"github.com/dshills/codeintel/internal/merge"
	"github.com/dshills/codeintel/internal/provider"
	"github.com/tidwall/gjson"
)

// decodeResult turns a raw result into the body handed to the collector.
// A null or empty result becomes nil.
func decodeResult(kind provider.Kind, raw json.RawMessage) any {
	res := gjson.ParseBytes(raw)
	if !res.Exists() || res.Type == gjson.Null {
		return nil
	}

	switch kind {
	case provider.KindCompletion:
		items, ok := merge.Items(raw)
		if !ok || len(items) == 0 {
			return nil
		}
		return items
	case provider.KindHover:
		text := hoverText(res.Get("contents"))
		if text == "" {
			return nil
		}
		return text
	case provider.KindDefinition, provider.KindReferences:
		if locs := locations(res); locs != nil {
			return locs
		}
		return nil
	case provider.KindDocumentHighlight:
		var out []provider.Location
		res.ForEach(func(_, v gjson.Result) bool {
			out = append(out, provider.Location{
				Line:      int(v.Get("range.start.line").Int()),
				Column:    int(v.Get("range.start.character").Int()),
				EndLine:   int(v.Get("range.end.line").Int()),
				EndColumn: int(v.Get("range.end.character").Int()),
			})
			return true
		})
		if len(out) == 0 {
			return nil
		}
		return out
	case provider.KindSignatureHelp:
		if len(res.Get("signatures").Array()) == 0 {
			return nil
		}
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	if provider.IsEmpty(v) {
		return nil
	}
	return v
}

// hoverText flattens MarkedString, MarkupContent and arrays of either.
func hoverText(v gjson.Result) string {
	switch {
	case v.Type == gjson.String:
		return strings.TrimSpace(v.String())
	case v.IsArray():
		var parts []string
		v.ForEach(func(_, item gjson.Result) bool {
			if s := hoverText(item); s != "" {
				parts = append(parts, s)
			}
			return true
		})
		return strings.Join(parts, "\n\n")
	case v.IsObject():
		value := strings.TrimSpace(v.Get("value").String())
		if lang := v.Get("language").String(); lang != "" && value != "" {
			return "```" + lang + "\n" + value + "\n```"
		}
		return value
	}
	return ""
}

// locations decodes Location, Location[] and LocationLink[].
func locations(res gjson.Result) []provider.Location {
	var out []provider.Location
	add := func(v gjson.Result) {
		uri := v.Get("uri")
		rng := v.Get("range")
		if !uri.Exists() {
			uri = v.Get("targetUri")
			rng = v.Get("targetSelectionRange")
			if !rng.Exists() {
				rng = v.Get("targetRange")
			}
		}
		if !uri.Exists() {
			return
		}
		out = append(out, provider.Location{
			Path:      URIToFilePath(DocumentURI(uri.String())),
			Line:      int(rng.Get("start.line").Int()),
			Column:    int(rng.Get("start.character").Int()),
			EndLine:   int(rng.Get("end.line").Int()),
			EndColumn: int(rng.Get("end.character").Int()),
		})
	}
	if res.IsArray() {
		res.ForEach(func(_, v gjson.Result) bool {
			add(v)
			return true
		})
	} else {
		add(res)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
