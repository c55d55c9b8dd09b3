// Package document mirrors the text of files the editor has open.
//
// Adapters that need buffer contents (the language-server adapter for
// full-text sync, the tokenizer fallback for word harvesting) keep a Store
// and feed it the did_open, did_change, did_save and did_close
// notifications they receive. A did_change carries either a full text
// replacement or a patch of byte-offset edits.
package document

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/aymanbagabas/go-udiff"
	"github.com/dshills/codeintel/internal/provider"
)

// Errors returned by Store operations.
var (
	ErrNotOpen   = errors.New("document not open")
	ErrBadPatch  = errors.New("patch does not apply")
	ErrEmptyPath = errors.New("empty document path")
)

// Document is a snapshot of one mirrored file.
type Document struct {
	Path       string
	Language   string
	Version    int
	Text       string
	OpenedAt   time.Time
	ModifiedAt time.Time
}

// Store holds open documents by path. It is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	docs map[string]*Document
	now  func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		docs: make(map[string]*Document),
		now:  time.Now,
	}
}

// Open records path with its full text. Reopening replaces the text.
func (s *Store) Open(path, language string, version int, text string) (Document, error) {
	if path == "" {
		return Document{}, ErrEmptyPath
	}
	if version <= 0 {
		version = 1
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	doc := &Document{
		Path:       path,
		Language:   language,
		Version:    version,
		Text:       text,
		OpenedAt:   now,
		ModifiedAt: now,
	}
	if prev, ok := s.docs[path]; ok {
		doc.OpenedAt = prev.OpenedAt
		if doc.Language == "" {
			doc.Language = prev.Language
		}
	}
	s.docs[path] = doc
	return *doc, nil
}

// Change applies a did_change. When edits are present they patch the
// current text; otherwise text replaces it. A non-positive version
// increments the stored one.
func (s *Store) Change(path string, version int, text string, edits []udiff.Edit) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[path]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrNotOpen, path)
	}

	next := text
	if len(edits) > 0 {
		patched, err := udiff.Apply(doc.Text, edits)
		if err != nil {
			return Document{}, fmt.Errorf("%w: %s: %v", ErrBadPatch, path, err)
		}
		next = patched
	}

	doc.Text = next
	if version > 0 {
		doc.Version = version
	} else {
		doc.Version++
	}
	doc.ModifiedAt = s.now()
	return *doc, nil
}

// Close forgets path and reports whether it was open.
func (s *Store) Close(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[path]
	delete(s.docs, path)
	return ok
}

// Get returns the snapshot for path.
func (s *Store) Get(path string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[path]
	if !ok {
		return Document{}, false
	}
	return *doc, true
}

// Paths returns the open paths in lexical order.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.docs))
	for p := range s.docs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of open documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Apply feeds a text-sync notification into the store. It returns the
// resulting snapshot and whether the notification touched a document.
// did_save with text replaces the mirror; without text it is a no-op.
func (s *Store) Apply(language string, kind provider.Kind, p provider.Payload) (Document, bool, error) {
	switch kind {
	case provider.KindDidOpen:
		doc, err := s.Open(p.Path, language, p.Version, p.Text)
		return doc, err == nil, err
	case provider.KindDidChange:
		doc, err := s.Change(p.Path, p.Version, p.Text, p.Edits)
		return doc, err == nil, err
	case provider.KindDidSave:
		if p.Text == "" {
			doc, ok := s.Get(p.Path)
			return doc, ok, nil
		}
		doc, err := s.Change(p.Path, p.Version, p.Text, nil)
		return doc, err == nil, err
	case provider.KindDidClose:
		doc, _ := s.Get(p.Path)
		return doc, s.Close(p.Path), nil
	default:
		return Document{}, false, nil
	}
}

// Line returns line n (zero-based) of text without its terminator.
func Line(text string, n int) string {
	if n < 0 {
		return ""
	}
	for i := 0; i < n; i++ {
		idx := strings.IndexByte(text, '\n')
		if idx < 0 {
			return ""
		}
		text = text[idx+1:]
	}
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSuffix(text, "\r")
}

// Offset converts a zero-based line and UTF-16 column to a byte offset into
// text. Positions past the end clamp to the end of the line or text.
func Offset(text string, line, column int) int {
	off := 0
	for i := 0; i < line; i++ {
		idx := strings.IndexByte(text[off:], '\n')
		if idx < 0 {
			return len(text)
		}
		off += idx + 1
	}
	units := 0
	for off < len(text) && units < column {
		r, size := utf8.DecodeRuneInString(text[off:])
		if r == '\n' {
			break
		}
		units += len(utf16.Encode([]rune{r}))
		off += size
	}
	return off
}

// ByteColumn converts a zero-based UTF-16 column on line to a zero-based
// byte column.
func ByteColumn(text string, line, column int) int {
	return Offset(text, line, column) - Offset(text, line, 0)
}

// UTF16Column converts a zero-based byte column on line to UTF-16 code
// units. Byte columns inside a rune round down to its start.
func UTF16Column(text string, line, byteColumn int) int {
	s := Line(text, line)
	if byteColumn > len(s) {
		byteColumn = len(s)
	}
	units := 0
	for i, r := range s {
		if i >= byteColumn {
			break
		}
		if i+utf8.RuneLen(r) > byteColumn {
			break
		}
		units += len(utf16.Encode([]rune{r}))
	}
	return units
}

// IsWordRune reports whether r can be part of an identifier.
func IsWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// WordBefore returns the identifier fragment ending at the position.
func WordBefore(text string, line, column int) string {
	end := Offset(text, line, column)
	start := end
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:start])
		if !IsWordRune(r) {
			break
		}
		start -= size
	}
	return text[start:end]
}

// WordAt returns the identifier surrounding the position.
func WordAt(text string, line, column int) string {
	pos := Offset(text, line, column)
	start, end := pos, pos
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:start])
		if !IsWordRune(r) {
			break
		}
		start -= size
	}
	for end < len(text) {
		r, size := utf8.DecodeRuneInString(text[end:])
		if !IsWordRune(r) {
			break
		}
		end += size
	}
	return text[start:end]
}
