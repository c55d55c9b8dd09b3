package workspace

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/dshills/codeintel/internal/logging"
	"github.com/dshills/codeintel/internal/provider"
)

// Notifier delivers notifications to providers.
type Notifier interface {
	SendNotification(language string, kind provider.Kind, payload provider.Payload) int
}

// Resolver holds the root path per language. It is confined to the core
// loop.
type Resolver struct {
	roots    map[string]string
	fallback string
	notifier Notifier
	logger   *logging.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithDefaultRoot overrides the root used for languages without one.
func WithDefaultRoot(path string) ResolverOption {
	return func(r *Resolver) {
		if path != "" {
			r.fallback = filepath.Clean(path)
		}
	}
}

// WithResolverLogger sets the logger.
func WithResolverLogger(l *logging.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = l
	}
}

// NewResolver creates a resolver that announces changes through notifier.
// A nil notifier makes updates silent.
func NewResolver(notifier Notifier, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		roots:    make(map[string]string),
		fallback: DefaultRoot(),
		notifier: notifier,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("workspace")
	return r
}

// DefaultRoot returns the working directory, or the home directory if the
// working directory cannot be determined.
func DefaultRoot() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return string(filepath.Separator)
}

// Root returns the root path for language.
func (r *Resolver) Root(language string) string {
	if root, ok := r.roots[language]; ok {
		return root
	}
	return r.fallback
}

// Set changes the root for language and notifies providers of the folder
// swap. It reports whether the root changed.
func (r *Resolver) Set(language, path string) bool {
	if path == "" {
		return false
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	path = filepath.Clean(path)

	old := r.Root(language)
	if old == path {
		if _, ok := r.roots[language]; !ok {
			r.roots[language] = path
		}
		return false
	}
	r.roots[language] = path

	r.logger.WithFields(map[string]any{
		"language": language,
		"root":     path,
	}).Info("workspace root changed")

	if r.notifier != nil {
		r.notifier.SendNotification(language, provider.KindWorkspaceFoldersChange, provider.Payload{
			Language: language,
			Path:     path,
			Added:    []string{path},
			Removed:  []string{old},
		})
	}
	return true
}

// Reset forgets the root for language so it falls back to the default.
func (r *Resolver) Reset(language string) bool {
	root, ok := r.roots[language]
	if !ok {
		return false
	}
	delete(r.roots, language)
	if root == r.fallback {
		return true
	}
	if r.notifier != nil {
		r.notifier.SendNotification(language, provider.KindWorkspaceFoldersChange, provider.Payload{
			Language: language,
			Path:     r.fallback,
			Added:    []string{r.fallback},
			Removed:  []string{root},
		})
	}
	return true
}

// Roots returns a copy of the explicitly set roots.
func (r *Resolver) Roots() map[string]string {
	out := make(map[string]string, len(r.roots))
	for k, v := range r.roots {
		out[k] = v
	}
	return out
}

// Folders returns the distinct roots in use, including the default, sorted.
func (r *Resolver) Folders() []string {
	set := map[string]struct{}{r.fallback: {}}
	for _, root := range r.roots {
		set[root] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for root := range set {
		out = append(out, root)
	}
	sort.Strings(out)
	return out
}
