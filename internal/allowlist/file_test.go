package allowlist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

const pinned = "admin@designlab.org"

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "allowlist.json")
	s, err := NewFileStore(path, pinned)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s
}

func TestFileStorePinnedAlwaysPresent(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	// Fresh store, file does not exist yet.
	lists, err := s.Lists(ctx)
	if err != nil {
		t.Fatalf("Lists: %v", err)
	}
	if !slices.Contains(lists.Operators, pinned) {
		t.Fatalf("pinned operator missing from empty store: %v", lists.Operators)
	}
	if len(lists.Community) != 0 {
		t.Fatalf("expected empty community list, got %v", lists.Community)
	}
}

func TestFileStoreAddIsIdempotentAndNormalizes(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.Add(ctx, "  Ace001@Example.COM ", ListCommunity); err != nil {
			t.Fatalf("Add #%d: %v", i+1, err)
		}
	}

	lists, err := s.Lists(ctx)
	if err != nil {
		t.Fatalf("Lists: %v", err)
	}
	if len(lists.Community) != 1 || lists.Community[0] != "ace001@example.com" {
		t.Fatalf("unexpected community list: %v", lists.Community)
	}
}

func TestFileStoreReadAfterWrite(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	if err := s.Add(ctx, "op@designlab.org", ListOperator); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// A second store over the same file must see the write immediately.
	other, err := NewFileStore(s.path, pinned)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	lists, err := other.Lists(ctx)
	if err != nil {
		t.Fatalf("Lists: %v", err)
	}
	if !slices.Contains(lists.Operators, "op@designlab.org") {
		t.Fatalf("write not visible to fresh reader: %v", lists.Operators)
	}
}

func TestFileStorePinnedRemovalFails(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	if err := s.Add(ctx, pinned, ListOperator); err != nil {
		t.Fatalf("Add: %v", err)
	}
	err := s.Remove(ctx, " Admin@DesignLab.ORG ", ListOperator)
	if !errors.Is(err, ErrPinnedOperator) {
		t.Fatalf("want ErrPinnedOperator, got %v", err)
	}

	lists, err := s.Lists(ctx)
	if err != nil {
		t.Fatalf("Lists: %v", err)
	}
	if !slices.Contains(lists.Operators, pinned) {
		t.Fatalf("pinned operator vanished after refused removal: %v", lists.Operators)
	}
}

func TestFileStoreRemove(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	if err := s.Add(ctx, "ace001@example.com", ListCommunity); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Remove(ctx, "ace001@example.com", ListCommunity); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	// Removing an absent identifier is a silent no-op.
	if err := s.Remove(ctx, "ace001@example.com", ListCommunity); err != nil {
		t.Fatalf("Remove absent: %v", err)
	}

	lists, err := s.Lists(ctx)
	if err != nil {
		t.Fatalf("Lists: %v", err)
	}
	if len(lists.Community) != 0 {
		t.Fatalf("expected empty community list, got %v", lists.Community)
	}
}

func TestFileStoreInputValidation(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	if err := s.Add(ctx, "a@b.c", "moderators"); !errors.Is(err, ErrUnknownList) {
		t.Fatalf("want ErrUnknownList, got %v", err)
	}
	if err := s.Add(ctx, "   ", ListCommunity); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	s := newTestFileStore(t)
	if err := os.WriteFile(s.path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}
	if _, err := s.Lists(context.Background()); err == nil {
		t.Fatalf("expected error for corrupt file")
	}
}
