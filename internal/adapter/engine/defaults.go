package engine

import (
	"github.com/dshills/codeintel/internal/config"
	"github.com/dshills/codeintel/internal/provider"
)

// Name is the provider name the adapter registers under by default.
const Name = "engine"

// Configuration keys beyond the restart-sensitive ones.
const (
	KeyLanguages = "languages"
	KeyRootPath  = "root_path"
)

// Version of the declared defaults.
var Version = config.MustParseVersion("1.0.0")

// Defaults returns the declared default configuration. The engine is off
// until a daemon is configured.
func Defaults() config.Declared {
	return config.Declared{
		Version: Version,
		Values: map[string]any{
			provider.KeyEnabled:  false,
			provider.KeyCommand:  "",
			provider.KeyArgs:     []any{},
			provider.KeyHost:     "127.0.0.1",
			provider.KeyPort:     int64(0),
			provider.KeyExternal: true,
			KeyLanguages:         []any{"*"},
			KeyRootPath:          "",
		},
	}
}
