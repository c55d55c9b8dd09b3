package fallback

import (
	"github.com/dshills/codeintel/internal/config"
	"github.com/dshills/codeintel/internal/provider"
)

// Name is the provider name the adapter registers under by default.
const Name = "fallback"

// Configuration keys.
const (
	KeyLanguages     = "languages"
	KeyMinWordLength = "min_word_length"
	KeyMaxItems      = "max_items"
	KeyVocabulary    = "vocabulary"
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
			KeyMinWordLength:    int64(3),
			KeyMaxItems:         int64(100),
			KeyVocabulary:       true,
		},
	}
}
