package snippets

import (
	"github.com/dshills/codeintel/internal/config"
	"github.com/dshills/codeintel/internal/provider"
)

// Name is the provider name the adapter registers under by default.
const Name = "snippets"

// Configuration keys.
const (
	KeyLanguages = "languages"
	// KeyFile is the snippet file. Empty means built-ins only.
	KeyFile = "file"
	// KeyBuiltins enables the built-in snippets.
	KeyBuiltins = "builtins"
)

// Version of the declared defaults.
var Version = config.MustParseVersion("1.0.0")

// Defaults returns the declared default configuration.
func Defaults() config.Declared {
	return config.Declared{
		Version: Version,
		Values: map[string]any{
			provider.KeyEnabled: true,
			KeyLanguages:        []any{"*"},
			KeyFile:             "",
			KeyBuiltins:         true,
		},
	}
}
