package fallback

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dshills/codeintel/internal/document"
	"github.com/dshills/codeintel/internal/logging"
	"github.com/dshills/codeintel/internal/provider"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Adapter is the in-process fallback provider.
type Adapter struct {
	name      string
	sink      provider.Sink
	logger    *logging.Logger
	languages provider.LanguageSet
	docs      *document.Store

	mu         sync.Mutex
	running    bool
	minLen     int
	maxItems   int
	vocabulary bool
	words      map[string]map[string]int
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Adapter) {
		a.logger = l
	}
}

// New creates a fallback provider.
func New(name string, cfg provider.Config, sink provider.Sink, opts ...Option) *Adapter {
	a := &Adapter{
		name:      name,
		sink:      sink,
		logger:    logging.Nop(),
		languages: provider.NewLanguageSet(cfg.Strings(KeyLanguages)...),
		docs:      document.NewStore(),
		words:     make(map[string]map[string]int),
	}
	a.configure(cfg)
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.WithComponent("fallback").WithField("provider", name)
	return a
}

// Factory returns a provider.Factory building fallback providers.
func Factory(name string, opts ...Option) provider.Factory {
	return func(cfg provider.Config, sink provider.Sink) (provider.Provider, error) {
		if len(cfg.Strings(KeyLanguages)) == 0 {
			return nil, fmt.Errorf("%w: %s serves no languages", provider.ErrInvalidConfig, name)
		}
		return New(name, cfg, sink, opts...), nil
	}
}

func (a *Adapter) configure(cfg provider.Config) {
	a.minLen = cfg.Int(KeyMinWordLength, 3)
	if a.minLen < 1 {
		a.minLen = 1
	}
	a.maxItems = cfg.Int(KeyMaxItems, 100)
	a.vocabulary = cfg.Bool(KeyVocabulary, true)
}

// Name implements provider.Provider.
func (a *Adapter) Name() string { return a.name }

// Supports implements provider.Provider.
func (a *Adapter) Supports(language string) bool {
	return a.languages.Has(language)
}

// Start implements provider.Provider. The provider is ready at once.
func (a *Adapter) Start() error {
	a.mu.Lock()
	already := a.running
	a.running = true
	a.mu.Unlock()
	if !already {
		a.sink.Ready(a.name, a.languages.Sorted())
	}
	return nil
}

// Shutdown implements provider.Provider. The buffer mirror survives so a
// restart keeps its words.
func (a *Adapter) Shutdown() error {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	return nil
}

// IsAlive implements provider.Provider.
func (a *Adapter) IsAlive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// SendNotification implements provider.Provider.
func (a *Adapter) SendNotification(language string, kind provider.Kind, payload provider.Payload) {
	switch kind {
	case provider.KindConfigChange:
		a.mu.Lock()
		a.configure(provider.Config(payload.Settings))
		a.mu.Unlock()
		return
	case provider.KindDidOpen, provider.KindDidChange, provider.KindDidSave, provider.KindDidClose:
	default:
		return
	}

	doc, open, err := a.docs.Apply(language, kind, payload)
	if err != nil {
		a.logger.WithField("path", payload.Path).Debug("mirror: %v", err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if kind == provider.KindDidClose || !open {
		delete(a.words, payload.Path)
		return
	}
	a.words[payload.Path] = Words(doc.Text, a.minLen)
}

// SendRequest implements provider.Provider. Every request is answered
// synchronously; kinds other than completion and document_highlight are
// answered with nil.
func (a *Adapter) SendRequest(language string, kind provider.Kind, payload provider.Payload, id int64) {
	if !a.IsAlive() {
		return
	}
	var body any
	switch kind {
	case provider.KindCompletion:
		if items := a.complete(language, payload); len(items) > 0 {
			body = items
		}
	case provider.KindDocumentHighlight:
		if locs := a.highlight(payload); len(locs) > 0 {
			body = locs
		}
	}
	a.sink.Response(a.name, id, body)
}

func (a *Adapter) text(p provider.Payload) string {
	if doc, ok := a.docs.Get(p.Path); ok {
		return doc.Text
	}
	return p.Text
}

type candidate struct {
	word string
	kind provider.CompletionKind
}

func (a *Adapter) complete(language string, p provider.Payload) []provider.CompletionItem {
	prefix := p.Prefix
	if prefix == "" {
		prefix = document.WordBefore(a.text(p), p.Line, p.Column)
	}
	if prefix == "" {
		return nil
	}

	a.mu.Lock()
	candidates := a.candidates(language, p.Path, prefix)
	maxItems := a.maxItems
	a.mu.Unlock()

	targets := make([]string, len(candidates))
	for i, c := range candidates {
		targets[i] = c.word
	}
	ranks := fuzzy.RankFindFold(prefix, targets)
	sort.SliceStable(ranks, func(i, j int) bool {
		pi := strings.HasPrefix(ranks[i].Target, prefix)
		pj := strings.HasPrefix(ranks[j].Target, prefix)
		if pi != pj {
			return pi
		}
		if ranks[i].Distance != ranks[j].Distance {
			return ranks[i].Distance < ranks[j].Distance
		}
		return ranks[i].Target < ranks[j].Target
	})
	if maxItems > 0 && len(ranks) > maxItems {
		ranks = ranks[:maxItems]
	}

	items := make([]provider.CompletionItem, 0, len(ranks))
	for i, r := range ranks {
		c := candidates[r.OriginalIndex]
		detail := "word"
		if c.kind != provider.CompletionText {
			detail = string(c.kind)
		}
		items = append(items, provider.CompletionItem{
			Label:    c.word,
			Kind:     c.kind,
			SortText: fmt.Sprintf("%05d", i),
			Detail:   detail,
		})
	}
	return items
}

// candidates gathers the vocabulary and the words of every mirrored buffer
// of the same language. The word being typed is left out unless it also
// appears elsewhere. Called with mu held.
func (a *Adapter) candidates(language, path, prefix string) []candidate {
	seen := make(map[string]provider.CompletionKind)
	if a.vocabulary {
		for w, k := range Vocabulary(language) {
			seen[w] = k
		}
	}
	for p, words := range a.words {
		doc, ok := a.docs.Get(p)
		if !ok || (language != "" && doc.Language != language) {
			continue
		}
		for w, n := range words {
			if p == path && w == prefix && n == 1 {
				continue
			}
			if _, ok := seen[w]; !ok {
				seen[w] = provider.CompletionText
			}
		}
	}
	out := make([]candidate, 0, len(seen))
	for w, k := range seen {
		out = append(out, candidate{word: w, kind: k})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].word < out[j].word })
	return out
}

func (a *Adapter) highlight(p provider.Payload) []provider.Location {
	text := a.text(p)
	word := document.WordAt(text, p.Line, p.Column)
	if word == "" {
		return nil
	}
	var out []provider.Location
	for _, r := range occurrences(text, word) {
		line, col := position(text, r[0])
		endLine, endCol := position(text, r[1])
		out = append(out, provider.Location{Path: p.Path, Line: line, Column: col, EndLine: endLine, EndColumn: endCol})
	}
	return out
}

// Documents returns the paths the provider mirrors.
func (a *Adapter) Documents() []string {
	return a.docs.Paths()
}
