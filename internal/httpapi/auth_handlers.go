package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"designlab.org/internal/access"
	"designlab.org/internal/audit"
	"designlab.org/internal/identity"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type magicLinkRequest struct {
	Email       string `json:"email"`
	CallbackURL string `json:"callbackUrl"`
}

// handleLogin authenticates against the stub credential provider and
// establishes a session. Available only when the stub provider is active.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	stub, ok := a.provider.(*identity.StubProvider)
	if !ok {
		writeError(w, r, http.StatusNotFound, "credential sign-in is not enabled")
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !identity.ValidEmail(req.Email) {
		writeError(w, r, http.StatusBadRequest, "valid email is required")
		return
	}
	if req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "password is required")
		return
	}

	id, err := stub.Authenticate(req.Email, req.Password)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := a.establishSession(w, r, id); err != nil {
		writeError(w, r, http.StatusInternalServerError, "session issuance failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleLogout clears the session cookie and records the sign-out.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := identity.FromContext(r.Context()); ok {
		a.audit(r, audit.ActionLogout, r.URL.Path, nil)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.env == "production",
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleMagicLink validates the email domain and issues a signed sign-in
// link. Outside production the link comes back in the response body instead
// of (only) going through the mail transport.
func (a *API) handleMagicLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	ml, ok := a.provider.(*identity.MagicLinkProvider)
	if !ok {
		writeError(w, r, http.StatusNotFound, "magic-link sign-in is not enabled")
		return
	}

	var req magicLinkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !identity.ValidEmail(req.Email) {
		writeError(w, r, http.StatusBadRequest, "valid email is required")
		return
	}

	link, expires, err := ml.IssueLink(r.Context(), a.baseURL, req.Email, req.CallbackURL)
	switch {
	case err == nil:
	case errors.Is(err, identity.ErrDomainNotAllowed):
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":  "email domain is not allowed",
			"reason": access.ReasonDomainNotAllowed,
		})
		return
	case errors.Is(err, identity.ErrThrottled):
		w.Header().Set("Retry-After", "30")
		writeError(w, r, http.StatusTooManyRequests, "too many link requests, try again later")
		return
	default:
		writeError(w, r, http.StatusInternalServerError, "link issuance failed")
		return
	}

	resp := map[string]any{
		"ok":         true,
		"expires_at": expires.UTC().Format(time.RFC3339),
	}
	if a.env != "production" {
		resp["link"] = link
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleVerify consumes a magic-link token. Valid tokens establish a session
// and redirect to the callback; every failure collapses into the same
// redirect so callers learn nothing about which check rejected the token.
func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ml, ok := a.provider.(*identity.MagicLinkProvider)
	if !ok {
		writeError(w, r, http.StatusNotFound, "magic-link sign-in is not enabled")
		return
	}

	failure := identity.SignInPath + "?error=invalid-link"

	id, err := ml.Verify(r.URL.Query().Get("token"))
	if err != nil {
		http.Redirect(w, r, failure, http.StatusFound)
		return
	}
	if err := a.establishSession(w, r, id); err != nil {
		http.Redirect(w, r, failure, http.StatusFound)
		return
	}

	callback := sanitizeCallback(r.URL.Query().Get("callbackUrl"))
	http.Redirect(w, r, callback, http.StatusFound)
}

// establishSession mints a session token, sets the cookie and records the
// login event.
func (a *API) establishSession(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	token, err := identity.MintSession(id, a.sessionTTL)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.sessionTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.env == "production",
	})

	r = r.WithContext(identity.ContextWithIdentity(r.Context(), id))
	a.audit(r, audit.ActionLogin, r.URL.Path, map[string]string{
		"provider": a.providerName(),
	})
	return nil
}

// sanitizeCallback restricts redirect targets to in-portal paths.
func sanitizeCallback(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	if !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") {
		return "/"
	}
	return u.String()
}
