package audit

import (
	"context"
	"sync"
	"time"

	"designlab.org/internal/ids"
)

// MemoryRecorder keeps events in process memory. Used when no database is
// configured, and throughout the tests.
type MemoryRecorder struct {
	mu     sync.RWMutex
	events []Event
	now    func() time.Time
}

var _ Recorder = (*MemoryRecorder)(nil)

// NewMemoryRecorder returns an empty recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{now: time.Now}
}

func (r *MemoryRecorder) Append(ctx context.Context, event *Event) error {
	if err := validate(event); err != nil {
		return err
	}
	if event.ID == "" {
		event.ID = ids.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.now().UTC()
	}
	clone := *event
	if event.Metadata != nil {
		clone.Metadata = make(map[string]string, len(event.Metadata))
		for k, v := range event.Metadata {
			clone.Metadata[k] = v
		}
	}

	r.mu.Lock()
	r.events = append(r.events, clone)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRecorder) List(ctx context.Context, f Filter) ([]Event, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []Event
	for _, ev := range r.events {
		if f.Action != "" && ev.Action != f.Action {
			continue
		}
		if f.Actor != "" && ev.Actor != f.Actor {
			continue
		}
		if !f.From.IsZero() && ev.OccurredAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && ev.OccurredAt.After(f.To) {
			continue
		}
		matched = append(matched, ev)
	}
	total := len(matched)

	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return nil, total, nil
	}
	matched = matched[offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	out := make([]Event, len(matched))
	copy(out, matched)
	return out, total, nil
}
