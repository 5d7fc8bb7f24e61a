package timeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LoadError means the persisted document could not be read or parsed.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load timeline %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SaveError means the updated document could not be written. The previous
// document is left in place when the failure happens before the final rename.
type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save timeline %s: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// Store reads and writes the timeline document at a fixed path.
type Store struct {
	path string
}

// NewStore returns a store for the document at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

// Load reads the whole document. It never creates or modifies the file.
func (s *Store) Load() (*Timeline, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &LoadError{Path: s.path, Err: err}
	}

	var t Timeline
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, &LoadError{Path: s.path, Err: err}
	}
	return &t, nil
}

// Save replaces the document with t. The content goes to a temporary file in
// the same directory which is synced and then renamed over the target.
func (s *Store) Save(t *Timeline) error {
	data, err := Encode(t)
	if err != nil {
		return &SaveError{Path: s.path, Err: err}
	}

	mode := fs.FileMode(0o644)
	if info, err := os.Stat(s.path); err == nil {
		mode = info.Mode().Perm()
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &SaveError{Path: s.path, Err: err}
	}
	tmpPath := tmp.Name()
	cleanup := func(cause error) error {
		tmp.Close()
		os.Remove(tmpPath)
		return &SaveError{Path: s.path, Err: cause}
	}

	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Chmod(mode); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &SaveError{Path: s.path, Err: err}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return &SaveError{Path: s.path, Err: err}
	}
	return nil
}

// Encode renders t the way Save writes it: two-space indentation, HTML
// characters and non-ASCII text left unescaped, trailing newline.
func Encode(t *Timeline) ([]byte, error) {
	if t == nil {
		return nil, errors.New("nil timeline")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return nil, fmt.Errorf("encode timeline: %w", err)
	}
	return buf.Bytes(), nil
}
