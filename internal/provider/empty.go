package provider

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
)

// IsEmpty reports whether a response body carries no useful content.
// Nil, blank strings, empty collections, empty completion lists and the JSON
// literals null, "", [] and {} are all empty.
func IsEmpty(body any) bool {
	switch v := body.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []CompletionItem:
		return len(v) == 0
	case CompletionList:
		return len(v.Items) == 0
	case *CompletionList:
		return v == nil || len(v.Items) == 0
	case json.RawMessage:
		return rawEmpty(v)
	case []byte:
		return rawEmpty(v)
	}

	rv := reflect.ValueOf(body)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return true
		}
		return IsEmpty(rv.Elem().Interface())
	}
	return false
}

func rawEmpty(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null", `""`, "[]", "{}":
		return true
	}
	return false
}
