package config

import (
	"encoding/json"
	"reflect"

	"github.com/dshills/codeintel/internal/provider"
)

// asMap views a nested table as a plain map.
func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case provider.Config:
		return map[string]any(t), true
	}
	return nil, false
}

// equalValues compares decoded configuration values. Numbers compare by
// value regardless of the integer or float type the decoder produced.
func equalValues(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ja) == string(jb)
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return map[string]any(provider.Config(m).Clone())
}

func cloneAny(v any) any {
	if m, ok := asMap(v); ok {
		return cloneMap(m)
	}
	return provider.Config{"v": v}.Clone()["v"]
}
