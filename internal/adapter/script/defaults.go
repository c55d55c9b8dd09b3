package script

import (
	"github.com/dshills/codeintel/internal/config"
	"github.com/dshills/codeintel/internal/provider"
)

// Name is the provider name the adapter registers under by default.
const Name = "script"

// Configuration keys.
const (
	KeyLanguages = "languages"
	// KeyFile is the Lua script. It is restart-sensitive for this provider
	// because the state is built from it.
	KeyFile = "file"
	// KeyMaxCallMillis bounds a single script call. A call that runs past
	// it is abandoned and the request gets no answer.
	KeyMaxCallMillis = "max_call_ms"
)

// Version of the declared defaults.
var Version = config.MustParseVersion("1.0.0")

// Defaults returns the declared default configuration.
func Defaults() config.Declared {
	return config.Declared{
		Version: Version,
		Values: map[string]any{
			provider.KeyEnabled: false,
			KeyLanguages:        []any{"*"},
			KeyFile:             "",
			KeyMaxCallMillis:    int64(1000),
		},
	}
}
