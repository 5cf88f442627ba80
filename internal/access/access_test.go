package access

import (
	"context"
	"errors"
	"testing"

	"designlab.org/internal/allowlist"
	"designlab.org/internal/identity"
)

const pinned = "admin@designlab.org"

// memStore is a minimal in-memory allowlist for resolver tests.
type memStore struct {
	lists allowlist.Lists
	err   error
	calls int
}

func (m *memStore) Lists(ctx context.Context) (allowlist.Lists, error) {
	m.calls++
	return m.lists, m.err
}
func (m *memStore) Add(ctx context.Context, identifier, list string) error    { return nil }
func (m *memStore) Remove(ctx context.Context, identifier, list string) error { return nil }

func newTestResolver(t *testing.T, store *memStore) *Resolver {
	t.Helper()
	r, err := NewResolver(store, pinned)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func TestResolveAnonymousHasNoRoles(t *testing.T) {
	r := newTestResolver(t, &memStore{})
	roles, err := r.Resolve(context.Background(), identity.Identity{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(roles) != 0 {
		t.Fatalf("anonymous caller must have no roles, got %v", roles)
	}
}

func TestResolveSignedInGetsBaseMember(t *testing.T) {
	r := newTestResolver(t, &memStore{})
	roles, err := r.Resolve(context.Background(), identity.Identity{Subject: "nobody@example.com"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(roles) != 1 || roles[0] != RoleMember {
		t.Fatalf("want exactly base-member, got %v", roles)
	}
}

func TestResolveCommunityMember(t *testing.T) {
	store := &memStore{lists: allowlist.Lists{Community: []string{"ace001@example.com"}}}
	r := newTestResolver(t, store)

	roles, err := r.Resolve(context.Background(), identity.Identity{
		Subject: "ace001@example.com",
		Email:   "ace001@example.com",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !HasRole(roles, RoleMember) || !HasRole(roles, RoleCommunity) {
		t.Fatalf("expected base-member and community-member, got %v", roles)
	}
	if HasRole(roles, RoleOperator) {
		t.Fatalf("community member must not be operator: %v", roles)
	}
}

func TestResolveOperatorImpliesCommunity(t *testing.T) {
	store := &memStore{lists: allowlist.Lists{Operators: []string{"op@designlab.org"}}}
	r := newTestResolver(t, store)

	roles, err := r.Resolve(context.Background(), identity.Identity{Subject: "op@designlab.org"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for _, want := range []Role{RoleMember, RoleCommunity, RoleOperator} {
		if !HasRole(roles, want) {
			t.Fatalf("operator missing %s: %v", want, roles)
		}
	}
}

func TestResolvePinnedOperatorSkipsStore(t *testing.T) {
	store := &memStore{err: errors.New("store down")}
	r := newTestResolver(t, store)

	roles, err := r.Resolve(context.Background(), identity.Identity{Subject: pinned})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !HasRole(roles, RoleOperator) {
		t.Fatalf("pinned identifier must resolve to operator: %v", roles)
	}
	if store.calls != 0 {
		t.Fatalf("pinned resolution must not hit the store, got %d calls", store.calls)
	}
}

func TestResolveReadsFreshOnEveryCall(t *testing.T) {
	store := &memStore{}
	r := newTestResolver(t, store)
	id := identity.Identity{Subject: "ace001@example.com"}

	if roles, _ := r.Resolve(context.Background(), id); HasRole(roles, RoleCommunity) {
		t.Fatalf("unexpected community role before the add")
	}

	// An allowlist edit must be visible to the very next resolution.
	store.lists.Community = []string{"ace001@example.com"}
	roles, err := r.Resolve(context.Background(), id)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !HasRole(roles, RoleCommunity) {
		t.Fatalf("edit not visible to next resolution: %v", roles)
	}
}

func TestResolveStoreErrorPropagates(t *testing.T) {
	store := &memStore{err: errors.New("store down")}
	r := newTestResolver(t, store)

	if _, err := r.Resolve(context.Background(), identity.Identity{Subject: "a@b.c"}); err == nil {
		t.Fatalf("expected store error to propagate")
	}
}

func TestRolesContextRoundTrip(t *testing.T) {
	ctx := ContextWithRoles(context.Background(), []Role{RoleMember, RoleCommunity})
	roles := RolesFromContext(ctx)
	if len(roles) != 2 || !HasRole(roles, RoleCommunity) {
		t.Fatalf("unexpected roles from context: %v", roles)
	}
	if got := RolesFromContext(context.Background()); got != nil {
		t.Fatalf("empty context must yield nil, got %v", got)
	}
}
