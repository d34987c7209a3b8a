package cert_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/learnhub/learnhub-lms/internal/cert"
	"github.com/learnhub/learnhub-lms/internal/db"
	"github.com/learnhub/learnhub-lms/internal/events"
)

func newTestIssuer(t *testing.T) (*cert.Issuer, *sql.DB) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "cert.db") +
		"?cache=shared&_pragma=busy_timeout(5000)"
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { dbh.Close() })
	return cert.NewIssuer(dbh), dbh
}

func completedEvent(t *testing.T, userID, courseID string) events.Event {
	t.Helper()
	data, err := json.Marshal(events.CourseCompleted{UserID: userID, CourseID: courseID, CompletedAt: 1700000000})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return events.Event{
		Offset:   1,
		Type:     events.TypeCourseCompleted,
		Key:      userID + "|" + courseID,
		DataJSON: string(data),
	}
}

func TestDeliverIssuesOnce(t *testing.T) {
	issuer, dbh := newTestIssuer(t)
	ctx := context.Background()

	// the aggregate row the issuer backfills with the certificate id
	if _, err := dbh.ExecContext(ctx, `INSERT INTO courses (id,name,created_by,created_at) VALUES ('c1','C1','t1',0)`); err != nil {
		t.Fatalf("seed course: %v", err)
	}
	if _, err := dbh.ExecContext(ctx,
		`INSERT INTO course_progress (user_id,course_id,status,percent) VALUES ('u1','c1','completed',100)`); err != nil {
		t.Fatalf("seed progress: %v", err)
	}

	ev := completedEvent(t, "u1", "c1")
	if err := issuer.Deliver(ctx, ev); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	first, err := issuer.Get(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	// at-least-once delivery: a redelivered event must not mint a second cert
	if err := issuer.Deliver(ctx, ev); err != nil {
		t.Fatalf("redeliver: %v", err)
	}
	second, err := issuer.Get(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("get after redeliver: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("certificate replaced: %s -> %s", first.ID, second.ID)
	}

	var n int
	if err := dbh.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM certificates WHERE user_id='u1' AND course_id='c1'`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("certificates: got %d, want 1", n)
	}

	var certID sql.NullString
	if err := dbh.QueryRowContext(ctx,
		`SELECT certificate_id FROM course_progress WHERE user_id='u1' AND course_id='c1'`).Scan(&certID); err != nil {
		t.Fatalf("load progress: %v", err)
	}
	if !certID.Valid || certID.String != first.ID {
		t.Fatalf("certificate_id not backfilled: %+v", certID)
	}
}

func TestDeliverIgnoresOtherEventTypes(t *testing.T) {
	issuer, dbh := newTestIssuer(t)
	ctx := context.Background()

	err := issuer.Deliver(ctx, events.Event{Type: events.TypeComponentProgressChanged, Key: "u1|m1", DataJSON: "{}"})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	var n int
	if err := dbh.QueryRowContext(ctx, `SELECT COUNT(*) FROM certificates`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("certificates issued for wrong event type: %d", n)
	}
}

func TestGetMissingCertificate(t *testing.T) {
	issuer, _ := newTestIssuer(t)
	if _, err := issuer.Get(context.Background(), "nobody", "nothing"); !errors.Is(err, cert.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
