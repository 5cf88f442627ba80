package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"designlab.org/internal/audit"
	"designlab.org/internal/identity"
)

type clientEventRequest struct {
	Action   string            `json:"action"`
	Path     string            `json:"path"`
	Metadata map[string]string `json:"metadata"`
}

type auditListResponse struct {
	Items  []audit.Event `json:"items"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
	AsOf   time.Time     `json:"as_of"`
}

// handleClientEvent ingests page_view/click/download events reported by the
// portal front end. Requires an authenticated caller.
func (a *API) handleClientEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := identity.FromContext(r.Context()); !ok {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req clientEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	action := strings.TrimSpace(req.Action)
	if !audit.ValidAction(action) {
		writeError(w, r, http.StatusBadRequest, "unknown action")
		return
	}
	if len(req.Path) > 2048 {
		writeError(w, r, http.StatusBadRequest, "path too long")
		return
	}

	a.audit(r, action, req.Path, req.Metadata)
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

// handleAuditList is the operator-only paginated query over the audit log.
// Filters: action, email (actor), from, to (RFC 3339 or date-only).
func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireOperator(w, r) {
		return
	}
	if a.recorder == nil {
		writeError(w, r, http.StatusServiceUnavailable, "audit store unavailable")
		return
	}

	f, err := parseAuditFilter(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := a.recorder.List(r.Context(), f)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "audit query failed")
		return
	}
	if items == nil {
		items = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, auditListResponse{
		Items:  items,
		Total:  total,
		Limit:  f.Limit,
		Offset: f.Offset,
		AsOf:   time.Now().UTC(),
	})
}

// handleAuditExport renders the same filtered rows as a downloadable CSV
// grouped by log category.
func (a *API) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireOperator(w, r) {
		return
	}
	if a.recorder == nil {
		writeError(w, r, http.StatusServiceUnavailable, "audit store unavailable")
		return
	}

	f, err := parseAuditFilter(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	// Export ignores pagination: the filter bounds the result instead.
	f.Limit = 0
	f.Offset = 0

	items, _, err := a.recorder.List(r.Context(), f)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "audit query failed")
		return
	}

	filename := "audit-" + time.Now().UTC().Format("20060102-150405") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := audit.WriteCSV(w, items); err != nil {
		// Headers are gone; nothing more to do than log.
		return
	}
	a.audit(r, audit.ActionDownload, r.URL.Path, map[string]string{
		"export": "audit_csv",
		"rows":   strconv.Itoa(len(items)),
	})
}

// handleAuditStream pushes freshly recorded events to operator consoles via
// Server-Sent Events.
func (a *API) handleAuditStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireOperator(w, r) {
		return
	}
	if a.stream == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch := a.stream.Subscribe(r.Context())

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for event := range ch {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}

func parseAuditFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	f := audit.Filter{
		Actor: identity.Normalize(q.Get("email")),
	}

	if action := strings.TrimSpace(q.Get("action")); action != "" {
		if !audit.ValidAction(action) {
			return audit.Filter{}, errors.New("unknown action filter")
		}
		f.Action = action
	}

	var err error
	if f.From, err = parseTimeParam(q.Get("from"), false); err != nil {
		return audit.Filter{}, errors.New("from must be RFC 3339 or YYYY-MM-DD")
	}
	if f.To, err = parseTimeParam(q.Get("to"), true); err != nil {
		return audit.Filter{}, errors.New("to must be RFC 3339 or YYYY-MM-DD")
	}

	if f.Limit, err = parsePositiveInt(q.Get("limit"), 100, 1, 1000); err != nil {
		return audit.Filter{}, err
	}
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return audit.Filter{}, errors.New("offset must be a non-negative integer")
		}
		f.Offset = v
	}
	return f, nil
}

// parseTimeParam accepts RFC 3339 timestamps or bare dates. Bare dates used
// as an upper bound extend to the end of that day.
func parseTimeParam(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t.UTC(), nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit must be between 1 and 1000")
	}
	return val, nil
}
