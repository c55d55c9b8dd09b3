package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dshills/codeintel/internal/provider"
	"github.com/pelletier/go-toml/v2"
)

// StoreFileName is the provider configuration file inside the state directory.
const StoreFileName = "providers.toml"

// Store persists per-provider configuration as a TOML document with one
// table per provider:
//
//	[lsp]
//	version = "1.0.0"
//	[lsp.values]
//	...
//	[lsp.defaults]
//	...
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads every stored provider configuration. A missing file is an empty
// store.
func (s *Store) Load() (map[string]Stored, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (map[string]Stored, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]Stored{}, nil
		}
		return nil, fmt.Errorf("reading provider store %s: %w", s.path, err)
	}
	return parseStore(s.path, data)
}

func parseStore(source string, data []byte) (map[string]Stored, error) {
	stored := make(map[string]Stored)
	if err := toml.Unmarshal(data, &stored); err != nil {
		perr := &ParseError{Path: source, Message: err.Error(), Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
		}
		return nil, perr
	}
	return stored, nil
}

// Save replaces the store contents. The file is written atomically.
func (s *Store) Save(stored map[string]Stored) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(stored)
}

func (s *Store) saveLocked(stored map[string]Stored) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(stored); err != nil {
		return fmt.Errorf("encoding provider store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".providers-*.toml")
	if err != nil {
		return fmt.Errorf("writing provider store: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing provider store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing provider store: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

// Reconcile loads the store, merges every declared provider against its
// stored copy, writes back the result when anything changed and returns the
// effective configuration per provider. Stored providers without a
// declaration are kept untouched.
func (s *Store) Reconcile(declared map[string]Declared) (map[string]provider.Config, map[string]Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.loadLocked()
	if err != nil {
		return nil, nil, err
	}

	names := make([]string, 0, len(declared))
	for name := range declared {
		names = append(names, name)
	}
	sort.Strings(names)

	effective := make(map[string]provider.Config, len(declared))
	outcomes := make(map[string]Outcome, len(declared))
	dirty := false
	for _, name := range names {
		var prev *Stored
		if st, ok := stored[name]; ok {
			prev = &st
		}
		merged, outcome := Reconcile(prev, declared[name])
		stored[name] = merged
		effective[name] = provider.Config(cloneMap(merged.Values))
		outcomes[name] = outcome
		dirty = dirty || outcome.Changed()
	}

	if dirty {
		if err := s.saveLocked(stored); err != nil {
			return nil, nil, err
		}
	}
	return effective, outcomes, nil
}

// Values reads the current stored values per provider.
func (s *Store) Values() (map[string]provider.Config, error) {
	stored, err := s.Load()
	if err != nil {
		return nil, err
	}
	out := make(map[string]provider.Config, len(stored))
	for name, st := range stored {
		out[name] = provider.Config(cloneMap(st.Values))
	}
	return out, nil
}
