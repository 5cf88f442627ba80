package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"designlab.org/internal/ids"
)

// PGRecorder appends events to an append-only Postgres table.
type PGRecorder struct {
	db *sql.DB
}

var _ Recorder = (*PGRecorder)(nil)

// NewPGRecorder wraps an open connection pool.
func NewPGRecorder(db *sql.DB) *PGRecorder {
	return &PGRecorder{db: db}
}

func (r *PGRecorder) Append(ctx context.Context, event *Event) error {
	if err := validate(event); err != nil {
		return err
	}
	if event.ID == "" {
		event.ID = ids.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	meta, err := json.Marshal(event.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		insert into audit_events(id, actor, action, path, metadata, ip, user_agent, occurred_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, event.ID, event.Actor, event.Action, event.Path, meta, event.IP, event.UserAgent, event.OccurredAt)
	return err
}

func (r *PGRecorder) List(ctx context.Context, f Filter) ([]Event, int, error) {
	where, args := buildFilter(f)

	var total int
	countQuery := `select count(*) from audit_events` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		select id, actor, action, path, metadata, ip, user_agent, occurred_at
		from audit_events` + where + `
		order by occurred_at asc, id asc`
	// A non-positive limit means "all filtered rows" (the CSV export relies
	// on this); the HTTP listing bounds its limits before they get here.
	if f.Limit > 0 {
		query += fmt.Sprintf(" limit $%d", len(args)+1)
		args = append(args, f.Limit)
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" offset $%d", len(args)+1)
		args = append(args, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var meta []byte
		if err := rows.Scan(&ev.ID, &ev.Actor, &ev.Action, &ev.Path, &meta, &ev.IP, &ev.UserAgent, &ev.OccurredAt); err != nil {
			return nil, 0, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &ev.Metadata)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func buildFilter(f Filter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.Action != "" {
		add("action=$%d", f.Action)
	}
	if f.Actor != "" {
		add("actor=$%d", f.Actor)
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at <= $%d", f.To)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " where " + strings.Join(clauses, " and "), args
}
