package allowlist

import (
	"context"
	"errors"
	"slices"

	"designlab.org/internal/identity"
)

// Named lists. The set is closed.
const (
	ListOperator  = "operator"
	ListCommunity = "community"
)

var (
	// ErrPinnedOperator is returned when a removal targets the permanently
	// pinned operator identifier.
	ErrPinnedOperator = errors.New("allowlist: pinned operator cannot be removed")

	// ErrUnknownList is returned for a list name outside the closed set.
	ErrUnknownList = errors.New("allowlist: unknown list")

	// ErrInvalidInput covers malformed identifiers.
	ErrInvalidInput = errors.New("allowlist: invalid input")
)

// Lists is a snapshot of both lists, and also the persisted JSON layout of
// the file store.
type Lists struct {
	Operators []string `json:"operators"`
	Community []string `json:"community"`
}

// Store is the single source of truth for privileged-role membership.
// Implementations read fresh state on every call: an admin edit must be
// visible to the very next permission check.
type Store interface {
	// Lists returns both lists. Operators always includes the pinned
	// identifier, whether or not it was explicitly added.
	Lists(ctx context.Context) (Lists, error)
	// Add inserts a normalized identifier. Adding a present identifier is a
	// no-op, not an error.
	Add(ctx context.Context, identifier, list string) error
	// Remove deletes an identifier. Removing the pinned operator fails with
	// ErrPinnedOperator and leaves the list unchanged; removing an absent
	// identifier succeeds silently.
	Remove(ctx context.Context, identifier, list string) error
}

func validList(list string) bool {
	return list == ListOperator || list == ListCommunity
}

func normalizeInput(identifier, list string) (string, error) {
	if !validList(list) {
		return "", ErrUnknownList
	}
	identifier = identity.Normalize(identifier)
	if identifier == "" {
		return "", ErrInvalidInput
	}
	return identifier, nil
}

// withPinned returns operators with the pinned identifier present exactly
// once, preserving insertion order for the rest.
func withPinned(operators []string, pinned string) []string {
	if pinned == "" || slices.Contains(operators, pinned) {
		return operators
	}
	out := make([]string, 0, len(operators)+1)
	out = append(out, pinned)
	return append(out, operators...)
}
