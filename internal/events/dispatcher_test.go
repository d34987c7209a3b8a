package events_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/learnhub/learnhub-lms/internal/db"
	"github.com/learnhub/learnhub-lms/internal/events"
)

type fakeSink struct {
	delivered []events.Event
	failLeft  map[string]int // key -> remaining deliveries to reject
}

func (s *fakeSink) Deliver(_ context.Context, ev events.Event) error {
	if s.failLeft[ev.Key] > 0 {
		s.failLeft[ev.Key]--
		return errors.New("sink unavailable")
	}
	s.delivered = append(s.delivered, ev)
	return nil
}

func newTestDispatch(t *testing.T) (*sql.DB, *events.Log) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "events.db") +
		"?cache=shared&_pragma=busy_timeout(5000)"
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { dbh.Close() })
	return dbh, events.NewLog()
}

func dispatchStatus(t *testing.T, dbh *sql.DB, offset int64) (status string, retries int, lastErr sql.NullString) {
	t.Helper()
	err := dbh.QueryRowContext(context.Background(),
		`SELECT status, retries, last_error FROM event_dispatch WHERE event_offset=$1`, offset).
		Scan(&status, &retries, &lastErr)
	if err != nil {
		t.Fatalf("load dispatch row %d: %v", offset, err)
	}
	return status, retries, lastErr
}

func TestDispatchDeliversInOrder(t *testing.T) {
	dbh, log := newTestDispatch(t)
	ctx := context.Background()

	o1, err := log.AppendForDispatch(ctx, dbh, events.TypeCourseCompleted, "u1|c1",
		events.CourseCompleted{UserID: "u1", CourseID: "c1", CompletedAt: 1})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	o2, err := log.AppendForDispatch(ctx, dbh, events.TypeCourseCompleted, "u2|c1",
		events.CourseCompleted{UserID: "u2", CourseID: "c1", CompletedAt: 2})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if o2 <= o1 {
		t.Fatalf("offsets not increasing: %d then %d", o1, o2)
	}

	sink := &fakeSink{}
	d := events.NewDispatcher(dbh, sink, time.Now)
	if err := d.DispatchPending(ctx); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if len(sink.delivered) != 2 || sink.delivered[0].Offset != o1 || sink.delivered[1].Offset != o2 {
		t.Fatalf("deliveries: %+v", sink.delivered)
	}
	for _, off := range []int64{o1, o2} {
		if st, _, _ := dispatchStatus(t, dbh, off); st != "ok" {
			t.Fatalf("offset %d status %q, want ok", off, st)
		}
	}

	// a second drain has nothing to do
	if err := d.DispatchPending(ctx); err != nil {
		t.Fatalf("re-dispatch: %v", err)
	}
	if len(sink.delivered) != 2 {
		t.Fatalf("redelivered settled events: %d", len(sink.delivered))
	}
}

func TestDispatchRetriesFailedDelivery(t *testing.T) {
	dbh, log := newTestDispatch(t)
	ctx := context.Background()

	off, err := log.AppendForDispatch(ctx, dbh, events.TypeCourseCompleted, "u1|c1",
		events.CourseCompleted{UserID: "u1", CourseID: "c1", CompletedAt: 1})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	sink := &fakeSink{failLeft: map[string]int{"u1|c1": 1}}
	d := events.NewDispatcher(dbh, sink, time.Now)

	// first drain fails, the entry is parked as failed with the error recorded
	if err := d.DispatchPending(ctx); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	st, retries, lastErr := dispatchStatus(t, dbh, off)
	if st != "failed" || retries != 1 {
		t.Fatalf("after failure: status=%q retries=%d", st, retries)
	}
	if !lastErr.Valid || lastErr.String == "" {
		t.Fatalf("last_error not recorded")
	}

	// next drain picks the failed entry back up
	if err := d.DispatchPending(ctx); err != nil {
		t.Fatalf("retry dispatch: %v", err)
	}
	st, _, _ = dispatchStatus(t, dbh, off)
	if st != "ok" {
		t.Fatalf("after retry: status=%q, want ok", st)
	}
	if len(sink.delivered) != 1 || sink.delivered[0].Offset != off {
		t.Fatalf("deliveries: %+v", sink.delivered)
	}
}

func TestDispatchIgnoresPlainAppends(t *testing.T) {
	dbh, log := newTestDispatch(t)
	ctx := context.Background()

	// progress-changed events are recorded but not routed to the sink
	if _, err := log.Append(ctx, dbh, events.TypeComponentProgressChanged, "u1|m1",
		events.ComponentProgressChanged{UserID: "u1", ComponentID: "m1", CourseID: "c1", Status: "in_progress"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	sink := &fakeSink{}
	d := events.NewDispatcher(dbh, sink, time.Now)
	if err := d.DispatchPending(ctx); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(sink.delivered) != 0 {
		t.Fatalf("undispatchable event delivered: %+v", sink.delivered)
	}
}
