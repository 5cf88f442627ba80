package allowlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"designlab.org/internal/identity"
)

// FileStore persists both lists as a single JSON object
// {"operators":[...],"community":[...]}. Every mutation is an atomic
// whole-file read-modify-write (temp file + rename), and every read loads the
// file fresh. Concurrent writers race on the read-modify-write and the last
// write wins; writes are rare operator actions, so no lock spans processes.
type FileStore struct {
	path   string
	pinned string

	mu sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store over path. The pinned operator identifier is
// enforced at write time and injected into every read.
func NewFileStore(path, pinned string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("allowlist file path is required")
	}
	pinned = identity.Normalize(pinned)
	if pinned == "" {
		return nil, errors.New("pinned operator identifier is required")
	}
	return &FileStore{path: path, pinned: pinned}, nil
}

// Lists loads the file fresh. A missing file is an empty allowlist, not an
// error.
func (s *FileStore) Lists(ctx context.Context) (Lists, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lists, err := s.load()
	if err != nil {
		return Lists{}, err
	}
	lists.Operators = withPinned(lists.Operators, s.pinned)
	return lists, nil
}

// Add inserts identifier into the named list, idempotently.
func (s *FileStore) Add(ctx context.Context, identifier, list string) error {
	identifier, err := normalizeInput(identifier, list)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	lists, err := s.load()
	if err != nil {
		return err
	}
	target := &lists.Operators
	if list == ListCommunity {
		target = &lists.Community
	}
	if slices.Contains(*target, identifier) {
		return nil
	}
	*target = append(*target, identifier)
	return s.save(lists)
}

// Remove deletes identifier from the named list. Absent identifiers are a
// silent no-op; the pinned operator is refused.
func (s *FileStore) Remove(ctx context.Context, identifier, list string) error {
	identifier, err := normalizeInput(identifier, list)
	if err != nil {
		return err
	}
	if list == ListOperator && identifier == s.pinned {
		return ErrPinnedOperator
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	lists, err := s.load()
	if err != nil {
		return err
	}
	target := &lists.Operators
	if list == ListCommunity {
		target = &lists.Community
	}
	idx := slices.Index(*target, identifier)
	if idx < 0 {
		return nil
	}
	*target = slices.Delete(*target, idx, idx+1)
	return s.save(lists)
}

func (s *FileStore) load() (Lists, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Lists{}, nil
		}
		return Lists{}, fmt.Errorf("read allowlist: %w", err)
	}
	var lists Lists
	if err := json.Unmarshal(data, &lists); err != nil {
		return Lists{}, fmt.Errorf("parse allowlist: %w", err)
	}
	for i, v := range lists.Operators {
		lists.Operators[i] = identity.Normalize(v)
	}
	for i, v := range lists.Community {
		lists.Community[i] = identity.Normalize(v)
	}
	return lists, nil
}

func (s *FileStore) save(lists Lists) error {
	if lists.Operators == nil {
		lists.Operators = []string{}
	}
	if lists.Community == nil {
		lists.Community = []string{}
	}
	data, err := json.MarshalIndent(lists, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".allowlist-*")
	if err != nil {
		return fmt.Errorf("write allowlist: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write allowlist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write allowlist: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write allowlist: %w", err)
	}
	return nil
}
