package httpapi

import (
	"net/http"
	"net/url"
	"strings"

	"designlab.org/internal/access"
	"designlab.org/internal/identity"
	"designlab.org/internal/obs"
)

// SessionCookie carries the session token for browser flows. API clients may
// send the same token as a bearer header instead.
const SessionCookie = "dl_session"

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Paths that must never be blocked, to avoid redirect loops.
var publicPaths = []string{
	"/",
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
	"/not-authorized",
	identity.SignInPath,
}

var publicPrefixes = []string{
	"/assets/",
	"/v1/auth/",
}

// Paths whose handlers decide anonymity themselves (role query answers 200
// with an empty set, client events answer 401 as JSON).
var selfGuardedPaths = []string{
	"/v1/me/roles",
	"/v1/events",
}

// guardRules maps protected prefixes to the role they require. First match
// wins; anything not matched and not public requires plain authentication.
var guardRules = []struct {
	prefix string
	role   access.Role
	reason string
}{
	{"/admin", access.RoleOperator, access.ReasonAdminOnly},
	{"/v1/admin/", access.RoleOperator, access.ReasonAdminOnly},
	{"/community", access.RoleCommunity, access.ReasonCommunityOnly},
	{"/v1/community/", access.RoleCommunity, access.ReasonCommunityOnly},
}

// guard resolves the caller, attaches identity and roles to the context, and
// enforces the per-prefix role requirements. Identity Resolution runs before
// the Role Resolver, which runs before the decision — a strict sequential
// pipeline per request, with no state shared between requests.
func (a *API) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		// A missing or invalid credential is "none", never a server error.
		id := a.resolveIdentity(r)
		ctx := r.Context()
		if !id.IsZero() {
			ctx = identity.ContextWithIdentity(ctx, id)
		}
		public := isPublicPath(r.URL.Path)

		if !id.IsZero() && a.resolver != nil {
			roles, err := a.resolver.Resolve(ctx, id)
			if err != nil {
				obs.LogError("role resolution failed", err, map[string]any{
					"request_id": RequestIDFromContext(ctx),
					"path":       r.URL.Path,
				})
				// Public paths must stay reachable even with the allowlist
				// store down; the caller keeps base membership only.
				if !public {
					writeError(w, r.WithContext(ctx), http.StatusInternalServerError, "internal error")
					return
				}
				roles = []access.Role{access.RoleMember}
			}
			ctx = access.ContextWithRoles(ctx, roles)
		}
		r = r.WithContext(ctx)

		if public || isSelfGuarded(r.URL.Path) {
			obs.CountAuthDecision("allow", "")
			next.ServeHTTP(w, r)
			return
		}

		required, reason := requiredRole(r.URL.Path)

		if id.IsZero() {
			obs.CountAuthDecision("unauthenticated", reason)
			a.denyUnauthenticated(w, r)
			return
		}
		if required != "" && !access.HasRole(access.RolesFromContext(ctx), access.Role(required)) {
			obs.CountAuthDecision("forbidden", reason)
			a.denyForbidden(w, r, reason)
			return
		}

		obs.CountAuthDecision("allow", "")
		next.ServeHTTP(w, r)
	})
}

// resolveIdentity tries the session cookie first, then a bearer header.
// Every failure path degrades to anonymous.
func (a *API) resolveIdentity(r *http.Request) identity.Identity {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		if id, err := identity.ParseSession(c.Value); err == nil {
			return id
		}
	}
	if token := extractBearerToken(r.Header.Get(authHeader)); token != "" {
		if id, err := identity.ParseSession(token); err == nil {
			return id
		}
	}
	return identity.Identity{}
}

func (a *API) denyUnauthenticated(w http.ResponseWriter, r *http.Request) {
	if isAPIPath(r.URL.Path) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	target := identity.SignInPath
	if a.provider != nil {
		target = a.provider.SignInURL(safeCallback(r.URL))
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (a *API) denyForbidden(w http.ResponseWriter, r *http.Request, reason string) {
	if isAPIPath(r.URL.Path) {
		payload := map[string]any{
			"error":  "forbidden",
			"reason": reason,
		}
		if rid := RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusForbidden, payload)
		return
	}
	http.Redirect(w, r, "/not-authorized?reason="+url.QueryEscape(reason), http.StatusFound)
}

func requiredRole(path string) (string, string) {
	for _, rule := range guardRules {
		if matchesSegment(path, rule.prefix) {
			return string(rule.role), rule.reason
		}
	}
	return "", ""
}

// matchesSegment matches on whole path segments, so /admin covers /admin and
// /admin/settings but not /administrators.
func matchesSegment(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isSelfGuarded(path string) bool {
	for _, p := range selfGuardedPaths {
		if path == p {
			return true
		}
	}
	return false
}

func isAPIPath(path string) bool {
	return strings.HasPrefix(path, "/v1/")
}

func extractBearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return ""
	}
	return strings.TrimSpace(header[len(bearer):])
}

// safeCallback keeps the callback target relative so the sign-in flow cannot
// be abused as an open redirect.
func safeCallback(u *url.URL) string {
	path := u.Path
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
		return "/"
	}
	if u.RawQuery != "" {
		return path + "?" + u.RawQuery
	}
	return path
}
