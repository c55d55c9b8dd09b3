package provider

import (
	"fmt"
	"sort"
)

// Config is an opaque, provider-specific configuration map.
type Config map[string]any

// Restart-sensitive configuration keys. A change to any of these requires the
// provider to be torn down and started again.
const (
	KeyCommand  = "command"
	KeyArgs     = "args"
	KeyHost     = "host"
	KeyPort     = "port"
	KeyExternal = "external"
	KeyStdio    = "stdio"
)

// KeyEnabled turns a configured provider on or off. It is not
// restart-sensitive: toggling it starts or stops the provider.
const KeyEnabled = "enabled"

// RestartKeys lists the restart-sensitive keys.
var RestartKeys = []string{KeyCommand, KeyArgs, KeyHost, KeyPort, KeyExternal, KeyStdio}

// String returns a string value or def.
func (c Config) String(key, def string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return def
}

// Bool returns a boolean value or def.
func (c Config) Bool(key string, def bool) bool {
	if v, ok := c[key].(bool); ok {
		return v
	}
	return def
}

// Int returns an integer value or def. Numbers decoded from TOML, YAML or
// JSON arrive as int64 or float64 and are accepted.
func (c Config) Int(key string, def int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case uint64:
		return int(v)
	}
	return def
}

// Strings returns a string list value. Lists of any are converted
// element-wise with fmt.
func (c Config) Strings(key string) []string {
	switch v := c[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			out = append(out, fmt.Sprint(e))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// Map returns a nested configuration table, or nil.
func (c Config) Map(key string) Config {
	switch v := c[key].(type) {
	case Config:
		return v
	case map[string]any:
		return Config(v)
	}
	return nil
}

// Keys returns the top-level keys in lexical order.
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of the configuration.
func (c Config) Clone() Config {
	if c == nil {
		return nil
	}
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Config:
		return t.Clone()
	case map[string]any:
		return map[string]any(Config(t).Clone())
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
