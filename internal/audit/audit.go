// Package audit records immutable who/what/when events for security- and
// content-relevant actions.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"designlab.org/internal/obs"
)

// Action tags form a closed set.
const (
	ActionPageView      = "page_view"
	ActionLogin         = "login"
	ActionLogout        = "logout"
	ActionDownload      = "download"
	ActionClick         = "click"
	ActionPostDelete    = "post_delete"
	ActionPostEdit      = "post_edit"
	ActionContentDelete = "content_delete"
	ActionContentHide   = "content_hide"
	ActionCommentDelete = "comment_delete"
)

var actionCategories = map[string]string{
	ActionPageView:      "navigation",
	ActionClick:         "navigation",
	ActionDownload:      "navigation",
	ActionLogin:         "auth",
	ActionLogout:        "auth",
	ActionPostDelete:    "moderation",
	ActionPostEdit:      "moderation",
	ActionContentDelete: "moderation",
	ActionContentHide:   "moderation",
	ActionCommentDelete: "moderation",
}

// ValidAction reports whether the tag belongs to the closed set.
func ValidAction(action string) bool {
	_, ok := actionCategories[action]
	return ok
}

// Category groups an action for reporting (auth, navigation, moderation).
func Category(action string) string {
	if c, ok := actionCategories[action]; ok {
		return c
	}
	return "other"
}

// ErrInvalidEvent covers events outside the closed action set or without an
// actor.
var ErrInvalidEvent = errors.New("audit: invalid event")

// Event is one immutable audit record. Never mutated after Append.
type Event struct {
	ID         string            `json:"id"`
	Actor      string            `json:"actor"`
	Action     string            `json:"action"`
	Path       string            `json:"path,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	IP         string            `json:"ip,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	Action string
	Actor  string
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// Recorder appends and queries audit events. Append is at-least-once: the
// caller retries nothing and deduplicates nothing, because events are
// informational.
type Recorder interface {
	Append(ctx context.Context, event *Event) error
	List(ctx context.Context, f Filter) ([]Event, int, error)
}

func validate(event *Event) error {
	if event == nil {
		return ErrInvalidEvent
	}
	if strings.TrimSpace(event.Actor) == "" {
		return ErrInvalidEvent
	}
	if !ValidAction(event.Action) {
		return ErrInvalidEvent
	}
	return nil
}

// Log mirrors an event into the operational log as a single JSON line.
func Log(event *Event) {
	entry := map[string]any{
		"ts":     event.OccurredAt.UTC().Format(time.RFC3339Nano),
		"type":   "audit",
		"event":  event.Action,
		"actor":  event.Actor,
		"fields": event.Metadata,
	}
	if event.Path != "" {
		entry["path"] = event.Path
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	obs.Logger().Println(string(data))
}
