package lsp

import (
	"github.com/dshills/codeintel/internal/config"
	"github.com/dshills/codeintel/internal/provider"
)

// Name is the provider name the adapter registers under by default.
const Name = "lsp"

// Configuration keys beyond the restart-sensitive ones.
const (
	KeyLanguages   = "languages"
	KeyRootPath    = "root_path"
	KeySettings    = "settings"
	KeyInitOptions = "initialization_options"
)

// Version of the declared defaults. Bump MINOR when a default value changes
// and MAJOR when a key is removed.
var Version = config.MustParseVersion("1.0.0")

// Defaults returns the declared default configuration.
func Defaults() config.Declared {
	return config.Declared{
		Version: Version,
		Values: map[string]any{
			provider.KeyEnabled:  true,
			provider.KeyCommand:  "pylsp",
			provider.KeyArgs:     []any{},
			provider.KeyHost:     "127.0.0.1",
			provider.KeyPort:     int64(0),
			provider.KeyExternal: false,
			provider.KeyStdio:    true,
			KeyLanguages:         []any{"python"},
			KeyRootPath:          "",
			KeySettings:          map[string]any{},
			KeyInitOptions:       map[string]any{},
		},
	}
}
