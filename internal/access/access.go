// Package access derives the caller's role set from the allowlist store and
// decides what a request may do.
package access

import (
	"context"
	"errors"

	"designlab.org/internal/allowlist"
	"designlab.org/internal/identity"
)

// Role is one of a fixed, closed set of privilege tags. Roles are never
// stored per user; they are derived on every check.
type Role string

const (
	RoleMember    Role = "base-member"
	RoleCommunity Role = "community-member"
	RoleOperator  Role = "operator"
)

// Reason codes carried by not-authorized redirects and 403 responses.
const (
	ReasonAdminOnly        = "admin-only"
	ReasonCommunityOnly    = "community-only"
	ReasonDomainNotAllowed = "domain-not-allowed"
)

// ErrForbidden indicates a valid identity lacking the required role.
var ErrForbidden = errors.New("access: forbidden")

// Resolver maps identities to role sets. It holds no state beyond the store
// reference and the pinned operator, so a resolution is a pure function of a
// fresh allowlist snapshot.
type Resolver struct {
	store  allowlist.Store
	pinned string
}

// NewResolver wires the resolver to the allowlist store.
func NewResolver(store allowlist.Store, pinned string) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("allowlist store is required")
	}
	pinned = identity.Normalize(pinned)
	if pinned == "" {
		return nil, errors.New("pinned operator identifier is required")
	}
	return &Resolver{store: store, pinned: pinned}, nil
}

// Resolve returns the caller's role set. A zero identity resolves to no
// roles at all; any non-zero identity holds at least base-member. The pinned
// identifier and operator-list membership imply community membership.
func (r *Resolver) Resolve(ctx context.Context, id identity.Identity) ([]Role, error) {
	if id.IsZero() {
		return nil, nil
	}
	roles := []Role{RoleMember}

	ident := id.Identifier()
	email := id.NormalizedEmail()

	if ident == r.pinned || email == r.pinned {
		return append(roles, RoleCommunity, RoleOperator), nil
	}

	lists, err := r.store.Lists(ctx)
	if err != nil {
		return nil, err
	}
	if matches(lists.Operators, ident, email) {
		return append(roles, RoleCommunity, RoleOperator), nil
	}
	if matches(lists.Community, ident, email) {
		return append(roles, RoleCommunity), nil
	}
	return roles, nil
}

func matches(list []string, ident, email string) bool {
	for _, entry := range list {
		if entry == "" {
			continue
		}
		if entry == ident || (email != "" && entry == email) {
			return true
		}
	}
	return false
}

// HasRole reports whether the resolved set contains role. Operator also
// satisfies a community-member requirement.
func HasRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

type rolesContextKey struct{}

// ContextWithRoles stores the resolved role set for downstream handlers.
func ContextWithRoles(ctx context.Context, roles []Role) context.Context {
	if len(roles) == 0 {
		return ctx
	}
	out := make([]Role, len(roles))
	copy(out, roles)
	return context.WithValue(ctx, rolesContextKey{}, out)
}

// RolesFromContext returns the role set attached by the route guard.
func RolesFromContext(ctx context.Context) []Role {
	if ctx == nil {
		return nil
	}
	v, ok := ctx.Value(rolesContextKey{}).([]Role)
	if !ok || len(v) == 0 {
		return nil
	}
	out := make([]Role, len(v))
	copy(out, v)
	return out
}
