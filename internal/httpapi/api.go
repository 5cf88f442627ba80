// Package httpapi is the transport layer of the access gateway: middleware,
// the route guard, and every HTTP endpoint.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"designlab.org/internal/access"
	"designlab.org/internal/allowlist"
	"designlab.org/internal/audit"
	"designlab.org/internal/identity"
	"designlab.org/internal/obs"
	"designlab.org/internal/stream"
)

// ReadyProbe reports whether downstream dependencies answer (e.g. DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carries everything the API needs. Provider and stores are selected
// once at process start by cmd/api.
type Options struct {
	Version    string
	Env        string // "production" hardens cookies and hides issued links
	BaseURL    string // absolute base used when composing magic links
	Provider   identity.Provider
	Allowlist  allowlist.Store
	Resolver   *access.Resolver
	Recorder   audit.Recorder
	Stream     *stream.Stream
	ReadyProbe ReadyProbe
	SessionTTL time.Duration
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	env        string
	baseURL    string

	provider   identity.Provider
	allow      allowlist.Store
	resolver   *access.Resolver
	recorder   audit.Recorder
	stream     *stream.Stream
	sessionTTL time.Duration

	rateBurst  int
	ratePerSec int
}

// New wires routes. Nil optional fields degrade: no recorder means audit
// events only hit the operational log, no stream disables the live feed.
func New(opts Options) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: opts.ReadyProbe,
		version:    opts.Version,
		env:        opts.Env,
		baseURL:    opts.BaseURL,
		provider:   opts.Provider,
		allow:      opts.Allowlist,
		resolver:   opts.Resolver,
		recorder:   opts.Recorder,
		stream:     opts.Stream,
		sessionTTL: opts.SessionTTL,
		rateBurst:  20,
		ratePerSec: 10,
	}
	if a.sessionTTL <= 0 {
		a.sessionTTL = identity.DefaultSessionTTL
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// sign-in flow
	a.mux.HandleFunc(identity.SignInPath, a.handleSignInPage)
	a.mux.HandleFunc("/not-authorized", a.handleNotAuthorized)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/magic-link", a.handleMagicLink)
	a.mux.HandleFunc("/v1/auth/verify", a.handleVerify)

	// caller-facing
	a.mux.HandleFunc("/v1/me/roles", a.handleMyRoles)
	a.mux.HandleFunc("/v1/events", a.handleClientEvent)

	// operator console
	a.mux.HandleFunc("/v1/admin/allowlist", a.handleAllowlist)
	a.mux.HandleFunc("/v1/admin/audit", a.handleAuditList)
	a.mux.HandleFunc("/v1/admin/audit/export", a.handleAuditExport)
	a.mux.HandleFunc("/v1/admin/audit/stream", a.handleAuditStream)

	// guarded portal sections (rendering itself lives elsewhere; the gateway
	// answers with a stub so the guard semantics are observable end to end)
	a.mux.HandleFunc("/admin/", a.handlePortalSection("admin console"))
	a.mux.HandleFunc("/community/", a.handlePortalSection("community gallery"))

	a.mux.HandleFunc("/", a.handleRoot)

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	h := a.guard(a.mux)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- basic handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "designlab-access",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     "designlab-access",
		"time":     time.Now().UTC().Format(time.RFC3339),
		"version":  a.version,
		"provider": a.providerName(),
	})
}

func (a *API) providerName() string {
	if a.provider == nil {
		return "none"
	}
	return a.provider.Name()
}

func (a *API) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "designlab-access",
		"status":  "ok",
	})
}

// handlePortalSection is the placeholder behind guarded page prefixes.
func (a *API) handlePortalSection(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identity.FromContext(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{
			"section": name,
			"viewer":  id.Identifier(),
		})
	}
}
