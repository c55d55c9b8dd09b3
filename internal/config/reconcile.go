package config

import "sort"

// Declared is a provider's code-side default configuration.
type Declared struct {
	Version Version
	Values  map[string]any
}

// Stored is the persisted copy of a provider's configuration. Defaults
// records the code defaults the values were last reconciled against, so a
// later version bump can tell which defaults changed.
type Stored struct {
	Version  Version        `toml:"version"`
	Values   map[string]any `toml:"values"`
	Defaults map[string]any `toml:"defaults"`
}

// Outcome describes what a reconcile changed. Paths are dotted.
type Outcome struct {
	Bump     Bump
	Fresh    bool
	Added    []string
	Replaced []string
	Removed  []string
}

// Changed reports whether the stored copy needs to be rewritten.
func (o Outcome) Changed() bool {
	return o.Fresh || o.Bump != BumpNone || len(o.Added)+len(o.Replaced)+len(o.Removed) > 0
}

// Reconcile merges a stored configuration with the current code defaults.
//
//   - no stored copy: defaults verbatim.
//   - same version, patch bump or downgrade: stored values kept, new keys added.
//     A patch bump records the new version but keeps the recorded defaults.
//   - minor bump: values whose default changed are replaced, the rest kept,
//     new keys added.
//   - major bump: keys absent from the defaults are removed, then as minor.
//
// A default that changed or disappeared without the matching version bump is
// ignored; user data is never dropped for it.
func Reconcile(stored *Stored, declared Declared) (Stored, Outcome) {
	if stored == nil {
		return Stored{
			Version:  declared.Version,
			Values:   cloneMap(declared.Values),
			Defaults: cloneMap(declared.Values),
		}, Outcome{Fresh: true}
	}

	bump := declared.Version.BumpFrom(stored.Version)
	out := Outcome{Bump: bump}
	values := mergeLevel("", stored.Values, stored.Defaults, declared.Values, bump, &out)

	result := Stored{Values: values}
	switch bump {
	case BumpMinor, BumpMajor:
		result.Version = declared.Version
		result.Defaults = cloneMap(declared.Values)
	case BumpPatch:
		// Defaults changed at a patch level stay unapplied until a minor bump.
		result.Version = declared.Version
		result.Defaults = addMissing(stored.Defaults, declared.Values)
	default:
		result.Version = stored.Version
		result.Defaults = addMissing(stored.Defaults, declared.Values)
	}

	sort.Strings(out.Added)
	sort.Strings(out.Replaced)
	sort.Strings(out.Removed)
	return result, out
}

func mergeLevel(prefix string, values, previous, defaults map[string]any, bump Bump, out *Outcome) map[string]any {
	result := cloneMap(values)
	if result == nil {
		result = make(map[string]any)
	}
	join := func(k string) string {
		if prefix == "" {
			return k
		}
		return prefix + "." + k
	}

	if bump == BumpMajor {
		for k := range result {
			if _, ok := defaults[k]; !ok {
				delete(result, k)
				out.Removed = append(out.Removed, join(k))
			}
		}
	}

	for k, def := range defaults {
		cur, exists := result[k]
		if !exists {
			result[k] = cloneAny(def)
			out.Added = append(out.Added, join(k))
			continue
		}

		curMap, curIsMap := asMap(cur)
		defMap, defIsMap := asMap(def)
		if curIsMap && defIsMap {
			prevMap, _ := asMap(previous[k])
			result[k] = mergeLevel(join(k), curMap, prevMap, defMap, bump, out)
			continue
		}

		if bump != BumpMinor && bump != BumpMajor {
			continue
		}
		prev, known := previous[k]
		if known && !equalValues(prev, def) && !equalValues(cur, def) {
			result[k] = cloneAny(def)
			out.Replaced = append(out.Replaced, join(k))
		}
	}
	return result
}

func addMissing(previous, defaults map[string]any) map[string]any {
	result := cloneMap(previous)
	if result == nil {
		result = make(map[string]any)
	}
	for k, def := range defaults {
		if _, ok := result[k]; !ok {
			result[k] = cloneAny(def)
			continue
		}
		prevMap, prevIsMap := asMap(result[k])
		defMap, defIsMap := asMap(def)
		if prevIsMap && defIsMap {
			result[k] = addMissing(prevMap, defMap)
		}
	}
	return result
}
