package httpapi

import (
	"errors"
	"net/http"

	"designlab.org/internal/access"
	"designlab.org/internal/allowlist"
	"designlab.org/internal/audit"
	"designlab.org/internal/identity"
)

type allowlistMutation struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// handleMyRoles answers the caller's own role set. Anonymous callers get an
// empty list with 200, never an error.
func (a *API) handleMyRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	roles := access.RolesFromContext(r.Context())
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		out = append(out, string(role))
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": out})
}

// handleAllowlist is the operator-only management API over both lists.
func (a *API) handleAllowlist(w http.ResponseWriter, r *http.Request) {
	if a.allow == nil {
		writeError(w, r, http.StatusServiceUnavailable, "allowlist store unavailable")
		return
	}
	if !a.requireOperator(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.listAllowlist(w, r)
	case http.MethodPost:
		a.addAllowlistEntry(w, r)
	case http.MethodDelete:
		a.removeAllowlistEntry(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) listAllowlist(w http.ResponseWriter, r *http.Request) {
	lists, err := a.allow.Lists(r.Context())
	if err != nil {
		handleAllowlistError(w, r, err)
		return
	}
	if lists.Operators == nil {
		lists.Operators = []string{}
	}
	if lists.Community == nil {
		lists.Community = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"operators": lists.Operators,
		"community": lists.Community,
	})
}

func (a *API) addAllowlistEntry(w http.ResponseWriter, r *http.Request) {
	var req allowlistMutation
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	list, ok := listName(req.Role)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "role must be \"operator\" or \"community\"")
		return
	}
	if !identity.ValidEmail(req.Email) {
		writeError(w, r, http.StatusBadRequest, "valid email is required")
		return
	}
	if err := a.allow.Add(r.Context(), req.Email, list); err != nil {
		handleAllowlistError(w, r, err)
		return
	}
	a.audit(r, audit.ActionPostEdit, r.URL.Path, map[string]string{
		"op":    "allowlist_add",
		"email": identity.Normalize(req.Email),
		"role":  list,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"message": "entry added",
	})
}

// removeAllowlistEntry accepts the target either as a JSON body or as query
// parameters (some HTTP clients refuse DELETE bodies).
func (a *API) removeAllowlistEntry(w http.ResponseWriter, r *http.Request) {
	var req allowlistMutation
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		req.Email = r.URL.Query().Get("email")
		req.Role = r.URL.Query().Get("role")
	}
	list, ok := listName(req.Role)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "role must be \"operator\" or \"community\"")
		return
	}
	if !identity.ValidEmail(req.Email) {
		writeError(w, r, http.StatusBadRequest, "valid email is required")
		return
	}
	if err := a.allow.Remove(r.Context(), req.Email, list); err != nil {
		if errors.Is(err, allowlist.ErrPinnedOperator) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"ok":    false,
				"error": "the pinned operator cannot be removed",
			})
			return
		}
		handleAllowlistError(w, r, err)
		return
	}
	a.audit(r, audit.ActionPostEdit, r.URL.Path, map[string]string{
		"op":    "allowlist_remove",
		"email": identity.Normalize(req.Email),
		"role":  list,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"message": "entry removed",
	})
}

func listName(role string) (string, bool) {
	switch identity.Normalize(role) {
	case allowlist.ListOperator:
		return allowlist.ListOperator, true
	case allowlist.ListCommunity:
		return allowlist.ListCommunity, true
	default:
		return "", false
	}
}

func handleAllowlistError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, allowlist.ErrInvalidInput), errors.Is(err, allowlist.ErrUnknownList):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		// Storage failures stay internal: log happens in middleware, callers
		// see a generic 500.
		writeError(w, r, http.StatusInternalServerError, "allowlist operation failed")
	}
}
