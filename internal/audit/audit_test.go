package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestAppendValidatesAndFillsDefaults(t *testing.T) {
	r := NewMemoryRecorder()
	ctx := context.Background()

	ev := &Event{Actor: "ada@designlab.org", Action: ActionLogin}
	if err := r.Append(ctx, ev); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if ev.ID == "" {
		t.Fatalf("expected generated id")
	}
	if ev.OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be set")
	}

	if err := r.Append(ctx, &Event{Actor: "ada@designlab.org", Action: "made_up"}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("want ErrInvalidEvent for unknown action, got %v", err)
	}
	if err := r.Append(ctx, &Event{Action: ActionLogin}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("want ErrInvalidEvent for missing actor, got %v", err)
	}
	if err := r.Append(ctx, nil); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("want ErrInvalidEvent for nil event, got %v", err)
	}
}

func TestAppendClonesMetadata(t *testing.T) {
	r := NewMemoryRecorder()
	meta := map[string]string{"k": "v"}
	if err := r.Append(context.Background(), &Event{Actor: "a@b.c", Action: ActionClick, Metadata: meta}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	meta["k"] = "mutated"

	events, _, err := r.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if events[0].Metadata["k"] != "v" {
		t.Fatalf("stored event shares caller's metadata map")
	}
}

func seedRecorder(t *testing.T) *MemoryRecorder {
	t.Helper()
	r := NewMemoryRecorder()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	events := []Event{
		{Actor: "ada@designlab.org", Action: ActionLogin, OccurredAt: base},
		{Actor: "ada@designlab.org", Action: ActionPageView, Path: "/community/", OccurredAt: base.Add(time.Hour)},
		{Actor: "bob@example.com", Action: ActionPageView, Path: "/", OccurredAt: base.Add(2 * time.Hour)},
		{Actor: "ada@designlab.org", Action: ActionPostDelete, OccurredAt: base.Add(3 * time.Hour)},
	}
	for i := range events {
		if err := r.Append(context.Background(), &events[i]); err != nil {
			t.Fatalf("seed event %d: %v", i, err)
		}
	}
	return r
}

func TestListFilters(t *testing.T) {
	r := seedRecorder(t)
	ctx := context.Background()

	events, total, err := r.List(ctx, Filter{Action: ActionPageView})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(events) != 2 {
		t.Fatalf("action filter: want 2, got total=%d len=%d", total, len(events))
	}

	events, total, err = r.List(ctx, Filter{Actor: "ada@designlab.org"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 {
		t.Fatalf("actor filter: want 3, got %d", total)
	}
	for _, ev := range events {
		if ev.Actor != "ada@designlab.org" {
			t.Fatalf("unexpected actor %q", ev.Actor)
		}
	}

	from := time.Date(2026, 8, 1, 1, 30, 0, 0, time.UTC)
	to := time.Date(2026, 8, 1, 2, 30, 0, 0, time.UTC)
	_, total, err = r.List(ctx, Filter{From: from, To: to})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 {
		t.Fatalf("time window: want 1, got %d", total)
	}
}

func TestListPagination(t *testing.T) {
	r := seedRecorder(t)
	ctx := context.Background()

	events, total, err := r.List(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 4 || len(events) != 2 {
		t.Fatalf("page 1: total=%d len=%d", total, len(events))
	}

	events, total, err = r.List(ctx, Filter{Limit: 2, Offset: 3})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 4 || len(events) != 1 {
		t.Fatalf("last page: total=%d len=%d", total, len(events))
	}

	events, total, err = r.List(ctx, Filter{Offset: 100})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 4 || len(events) != 0 {
		t.Fatalf("past-end offset: total=%d len=%d", total, len(events))
	}
}

func TestCategories(t *testing.T) {
	cases := map[string]string{
		ActionLogin:         "auth",
		ActionLogout:        "auth",
		ActionPageView:      "navigation",
		ActionClick:         "navigation",
		ActionDownload:      "navigation",
		ActionPostDelete:    "moderation",
		ActionContentHide:   "moderation",
		ActionCommentDelete: "moderation",
		"made_up":           "other",
	}
	for action, want := range cases {
		if got := Category(action); got != want {
			t.Fatalf("Category(%s): want %s, got %s", action, want, got)
		}
	}
	if ValidAction("made_up") {
		t.Fatalf("made_up must not be a valid action")
	}
}

func TestWriteCSVGroupsByCategory(t *testing.T) {
	r := seedRecorder(t)
	events, _, err := r.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	var sb strings.Builder
	if err := WriteCSV(&sb, events); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	out := sb.String()

	for _, section := range []string{"category: auth", "category: navigation", "category: moderation"} {
		if !strings.Contains(out, section) {
			t.Fatalf("missing section %q in:\n%s", section, out)
		}
	}
	// Categories come out sorted: auth, then moderation, then navigation.
	if strings.Index(out, "category: auth") > strings.Index(out, "category: moderation") {
		t.Fatalf("sections out of order:\n%s", out)
	}
	if !strings.Contains(out, "ada@designlab.org,login") {
		t.Fatalf("missing login row:\n%s", out)
	}
}

func TestFlattenMetadata(t *testing.T) {
	if got := flattenMetadata(nil); got != "" {
		t.Fatalf("nil metadata: got %q", got)
	}
	got := flattenMetadata(map[string]string{"b": "2", "a": "1"})
	if got != "a=1; b=2" {
		t.Fatalf("want sorted pairs, got %q", got)
	}
}
