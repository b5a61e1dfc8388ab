// Package file is a storage.Store persisted as a TOML document on disk,
// by default ~/.config/storefront/state.toml.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/utafrali/storefront/internal/storage"
	pkgconfig "github.com/utafrali/storefront/pkg/config"
)

const defaultPath = "~/.config/storefront/state.toml"

var _ storage.Store = (*Store)(nil)

// document is the on-disk shape.
type document struct {
	Values map[string]string `toml:"values"`
}

// Store reads the whole document on every Get and rewrites it on every
// mutation through a temp file and rename, so a crash never leaves a
// half-written file.
type Store struct {
	mu   sync.Mutex
	path string
}

// DefaultPath returns the default state file path.
func DefaultPath() string {
	return defaultPath
}

// New returns a store at path, "~" expanded. An empty path selects DefaultPath.
func New(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		path = defaultPath
	}
	resolved, err := expandPath(path)
	if err != nil {
		return nil, fmt.Errorf("resolve state path: %w", err)
	}
	return &Store{path: resolved}, nil
}

// Path is the resolved file location.
func (s *Store) Path() string {
	return s.path
}

// Get implements storage.Store.
func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// Set implements storage.Store.
func (s *Store) Set(_ context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read()
	if err != nil {
		return err
	}
	for k, v := range values {
		current[k] = v
	}
	return s.write(current)
}

// Delete implements storage.Store.
func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read()
	if err != nil {
		return err
	}
	changed := false
	for _, k := range keys {
		if _, ok := current[k]; ok {
			delete(current, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.write(current)
}

// Close implements storage.Store.
func (s *Store) Close() error { return nil }

// read returns the stored values. A missing or corrupt file reads as empty.
func (s *Store) read() (map[string]string, error) {
	values := make(map[string]string)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return values, nil
	}
	for k, v := range doc.Values {
		values[k] = v
	}
	return values, nil
}

func (s *Store) write(values map[string]string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := toml.Marshal(document{Values: values})
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.toml")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

func expandPath(path string) (string, error) {
	expanded, err := pkgconfig.ExpandHome(strings.TrimSpace(path))
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}
