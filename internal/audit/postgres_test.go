package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRecorderAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	r := NewPGRecorder(db)

	mock.ExpectExec("insert into audit_events").
		WithArgs(sqlmock.AnyArg(), "ada@designlab.org", ActionLogin, "/v1/auth/verify", sqlmock.AnyArg(), "203.0.113.7", "smoke/1.0", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = r.Append(context.Background(), &Event{
		Actor:     "ada@designlab.org",
		Action:    ActionLogin,
		Path:      "/v1/auth/verify",
		IP:        "203.0.113.7",
		UserAgent: "smoke/1.0",
		Metadata:  map[string]string{"provider": "magiclink"},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGRecorderList(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	r := NewPGRecorder(db)

	occurred := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`select count\(\*\) from audit_events where action=\$1`).
		WithArgs(ActionPageView).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("select id, actor, action, path, metadata, ip, user_agent, occurred_at").
		WithArgs(ActionPageView, 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "actor", "action", "path", "metadata", "ip", "user_agent", "occurred_at"}).
			AddRow("ev-1", "ada@designlab.org", ActionPageView, "/community/", []byte(`{"ref":"home"}`), "", "", occurred))

	events, total, err := r.List(context.Background(), Filter{Action: ActionPageView, Limit: 100})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(events) != 1 {
		t.Fatalf("unexpected result: total=%d len=%d", total, len(events))
	}
	if events[0].Metadata["ref"] != "home" {
		t.Fatalf("metadata not decoded: %v", events[0].Metadata)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// A zero limit must not be rewritten: the CSV export asks for all filtered
// rows and a silent cap would truncate the sheet.
func TestPGRecorderListZeroLimitIsUnbounded(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	r := NewPGRecorder(db)

	occurred := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`select count\(\*\) from audit_events`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(250))

	rows := sqlmock.NewRows([]string{"id", "actor", "action", "path", "metadata", "ip", "user_agent", "occurred_at"})
	for i := 0; i < 250; i++ {
		rows.AddRow(fmt.Sprintf("ev-%03d", i), "ada@designlab.org", ActionPageView, "/", nil, "", "", occurred)
	}
	// No limit or offset arguments may reach SQL.
	mock.ExpectQuery(`order by occurred_at asc, id asc$`).WillReturnRows(rows)

	events, total, err := r.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 250 || len(events) != 250 {
		t.Fatalf("want all 250 rows, got total=%d len=%d", total, len(events))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
