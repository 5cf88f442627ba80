package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"

	"designlab.org/internal/access"
	"designlab.org/internal/audit"
	"designlab.org/internal/identity"
	"designlab.org/internal/obs"
)

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// requireOperator enforces the operator role inside admin handlers. The route
// guard already covers /v1/admin/; this keeps handlers safe standalone.
func (a *API) requireOperator(w http.ResponseWriter, r *http.Request) bool {
	if _, ok := identity.FromContext(r.Context()); !ok {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !access.HasRole(access.RolesFromContext(r.Context()), access.RoleOperator) {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":  "forbidden",
			"reason": access.ReasonAdminOnly,
		})
		return false
	}
	return true
}

// audit records an event for the current request. Storage failures never
// reach the caller's primary operation: they land in the operational log.
func (a *API) audit(r *http.Request, action, path string, meta map[string]string) {
	id, _ := identity.FromContext(r.Context())
	actor := id.Identifier()
	if actor == "" {
		actor = "anonymous"
	}
	event := audit.Event{
		Actor:     actor,
		Action:    action,
		Path:      path,
		Metadata:  meta,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
	if a.recorder != nil {
		if err := a.recorder.Append(r.Context(), &event); err != nil {
			obs.LogError("audit append failed", err, map[string]any{
				"action":     action,
				"request_id": RequestIDFromContext(r.Context()),
			})
			return
		}
	}
	audit.Log(&event)
	if a.stream != nil {
		a.stream.Publish(event)
	}
}

// --- minimal pages ---
// The portal UI renders elsewhere; these pages only terminate redirect flows.

func (a *API) handleSignInPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	msg := "Sign in to the AI Design Lab."
	if r.URL.Query().Get("error") == "invalid-link" {
		msg = "The sign-in link is invalid or expired. Request a new one."
	}
	fmt.Fprintf(w, "<!doctype html><title>Sign in</title><h1>Sign in</h1><p>%s</p>\n", html.EscapeString(msg))
}

func (a *API) handleNotAuthorized(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	reason := r.URL.Query().Get("reason")
	switch reason {
	case access.ReasonAdminOnly, access.ReasonCommunityOnly, access.ReasonDomainNotAllowed:
	default:
		reason = "not-authorized"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!doctype html><title>Not authorized</title><h1>Not authorized</h1><p data-reason=%q>You do not have access to this area.</p>\n", html.EscapeString(reason))
}
