package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/aymanbagabas/go-udiff"
	"github.com/dshills/codeintel/internal/document"
	"github.com/dshills/codeintel/internal/provider"
	"github.com/dshills/codeintel/internal/registry"
)

// Session keeps providers' view of a set of files in step with a front end
// that only knows paths, such as the CLI or an MCP client. The first sync of
// a path sends did_open; later syncs with different content send did_change
// carrying a diff patch.
type Session struct {
	core *Core
	docs *document.Store

	mu sync.Mutex
}

// NewSession creates a session over core.
func NewSession(core *Core) *Session {
	return &Session{core: core, docs: document.NewStore()}
}

// Sync makes the providers' copy of path match text, reading the file when
// text is empty. It returns the language the file was opened with.
func (s *Session) Sync(path, language, text string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if text == "" {
		data, err := os.ReadFile(abs)
		if err != nil {
			return "", err
		}
		text = string(data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if doc, ok := s.docs.Get(abs); ok {
		if language == "" {
			language = doc.Language
		}
		if doc.Text == text {
			return language, nil
		}
		edits := udiff.Strings(doc.Text, text)
		next, err := s.docs.Change(abs, 0, "", edits)
		if err != nil {
			return "", err
		}
		s.core.SendNotification(language, provider.KindDidChange, provider.Payload{
			Path:    abs,
			Version: next.Version,
			Edits:   edits,
		})
		return language, nil
	}

	if language == "" {
		language = provider.DetectLanguage(abs)
	}
	doc, err := s.docs.Open(abs, language, 1, text)
	if err != nil {
		return "", err
	}
	s.core.SendNotification(language, provider.KindDidOpen, provider.Payload{
		Path:    abs,
		Version: doc.Version,
		Text:    text,
	})
	return language, nil
}

// Request syncs path and sends a request about it. Payload.Path is filled
// in.
func (s *Session) Request(ctx context.Context, path, language string, kind provider.Kind, p provider.Payload) (any, error) {
	language, err := s.Sync(path, language, p.Text)
	if err != nil {
		return nil, err
	}
	abs, _ := filepath.Abs(path)
	p.Path = abs
	p.Text = ""
	return s.core.Request(ctx, language, kind, p)
}

// Save sends did_save for an open path.
func (s *Session) Save(path string) bool {
	abs, _ := filepath.Abs(path)
	doc, ok := s.docs.Get(abs)
	if !ok {
		return false
	}
	s.core.SendNotification(doc.Language, provider.KindDidSave, provider.Payload{Path: abs, Version: doc.Version})
	return true
}

// Close sends did_close and forgets path.
func (s *Session) Close(path string) bool {
	abs, _ := filepath.Abs(path)
	s.mu.Lock()
	doc, ok := s.docs.Get(abs)
	if ok {
		s.docs.Close(abs)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.core.SendNotification(doc.Language, provider.KindDidClose, provider.Payload{Path: abs})
	return true
}

// CloseAll closes every open path.
func (s *Session) CloseAll() {
	for _, path := range s.docs.Paths() {
		s.Close(path)
	}
}

// Paths returns the open paths.
func (s *Session) Paths() []string {
	return s.docs.Paths()
}

// Providers returns the provider snapshot of the underlying core.
func (s *Session) Providers(ctx context.Context) ([]registry.Info, error) {
	return s.core.Providers(ctx)
}
