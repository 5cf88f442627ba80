package allowlist

import (
	"context"
	"database/sql"
	"errors"

	"designlab.org/internal/identity"
)

// PGStore keeps allowlist entries in a Postgres table, one row per
// (identifier, list) pair. Inserts and deletes are single atomic statements,
// so this store does not exhibit the file store's last-write-wins race.
type PGStore struct {
	db     *sql.DB
	pinned string
}

var _ Store = (*PGStore)(nil)

// NewPGStore wraps an open connection pool.
func NewPGStore(db *sql.DB, pinned string) (*PGStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	pinned = identity.Normalize(pinned)
	if pinned == "" {
		return nil, errors.New("pinned operator identifier is required")
	}
	return &PGStore{db: db, pinned: pinned}, nil
}

func (s *PGStore) Lists(ctx context.Context) (Lists, error) {
	rows, err := s.db.QueryContext(ctx, `
		select identifier, list
		from allowlist_entries
		order by created_at asc
	`)
	if err != nil {
		return Lists{}, err
	}
	defer rows.Close()

	var lists Lists
	for rows.Next() {
		var ident, list string
		if err := rows.Scan(&ident, &list); err != nil {
			return Lists{}, err
		}
		switch list {
		case ListOperator:
			lists.Operators = append(lists.Operators, ident)
		case ListCommunity:
			lists.Community = append(lists.Community, ident)
		}
	}
	if err := rows.Err(); err != nil {
		return Lists{}, err
	}
	lists.Operators = withPinned(lists.Operators, s.pinned)
	return lists, nil
}

func (s *PGStore) Add(ctx context.Context, identifier, list string) error {
	identifier, err := normalizeInput(identifier, list)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into allowlist_entries(identifier, list)
		values ($1, $2)
		on conflict (identifier, list) do nothing
	`, identifier, list)
	return err
}

func (s *PGStore) Remove(ctx context.Context, identifier, list string) error {
	identifier, err := normalizeInput(identifier, list)
	if err != nil {
		return err
	}
	if list == ListOperator && identifier == s.pinned {
		return ErrPinnedOperator
	}
	_, err = s.db.ExecContext(ctx, `
		delete from allowlist_entries where identifier=$1 and list=$2
	`, identifier, list)
	return err
}
