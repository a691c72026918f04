// Package state persists the small amount of local state Inkwell keeps
// between runs: the cached diary database id and its hosting document id.
//
// A missing file is zero state, never an error. A cached id is allowed
// to go stale; the provisioning engine repairs it instead of the store
// clearing it.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// State holds the cached diary database identifiers.
type State struct {
	DiaryAvID  string `json:"diary_av_id"`
	DiaryDocID string `json:"diary_doc_id"`
}

// Store reads and writes the state file.
type Store struct {
	mu   sync.Mutex
	path string
	cur  State
}

// NewStore loads the state file at path if it exists.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.cur); err != nil {
		return nil, fmt.Errorf("state: parse %s: %w", path, err)
	}
	return s, nil
}

// Get returns the current state.
func (s *Store) Get() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Put replaces the state and writes it to disk atomically.
func (s *Store) Put(st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("state: create dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("state: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("state: rename: %w", err)
	}
	s.cur = st
	return nil
}
