package config

import (
	"sort"

	"github.com/dshills/codeintel/internal/provider"
)

var restartKeys = func() map[string]bool {
	m := make(map[string]bool, len(provider.RestartKeys))
	for _, k := range provider.RestartKeys {
		m[k] = true
	}
	return m
}()

// RestartRequired reports whether moving from old to updated changes any
// restart-sensitive key at any nesting depth.
func RestartRequired(old, updated provider.Config) bool {
	return len(RestartChanges(old, updated)) > 0
}

// RestartChanges returns the dotted paths of restart-sensitive keys whose
// values differ between old and updated, in lexical order.
func RestartChanges(old, updated provider.Config) []string {
	var changed []string
	diffRestartKeys("", old, updated, &changed)
	sort.Strings(changed)
	return changed
}

func diffRestartKeys(prefix string, a, b map[string]any, out *[]string) {
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}

	for k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		av, aok := a[k]
		bv, bok := b[k]

		if restartKeys[k] {
			if aok != bok || !equalValues(av, bv) {
				*out = append(*out, path)
			}
			continue
		}

		am, aIsMap := asMap(av)
		bm, bIsMap := asMap(bv)
		if aIsMap || bIsMap {
			diffRestartKeys(path, am, bm, out)
		}
	}
}
