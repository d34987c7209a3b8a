package events

import (
	"context"
	"database/sql"
	"time"
)

// Sink consumes dispatched events. Delivery is at-least-once; sinks must be
// idempotent per event key.
type Sink interface {
	Deliver(ctx context.Context, ev Event) error
}

type Clock func() time.Time

// Dispatcher drains pending entries in event_dispatch and hands the
// underlying events to the Sink, recording ok/failed per event.
type Dispatcher struct {
	DB   *sql.DB
	Sink Sink
	Now  Clock
}

func NewDispatcher(db *sql.DB, sink Sink, now Clock) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{DB: db, Sink: sink, Now: now}
}

// DispatchPending delivers every pending or previously failed event, oldest
// first. A failed delivery marks the entry failed with the error and moves
// on; it will be retried on the next invocation.
func (d *Dispatcher) DispatchPending(ctx context.Context) error {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT e.seq, e.typ, e.key, e.data, e.created_at
		  FROM event_log e
		  JOIN event_dispatch s ON s.event_offset = e.seq
		 WHERE s.status IN ('pending','failed')
		 ORDER BY e.seq`)
	if err != nil {
		return err
	}
	var pending []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.Offset, &ev.Type, &ev.Key, &ev.DataJSON, &ev.CreatedAt); err != nil {
			rows.Close()
			return err
		}
		pending = append(pending, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, ev := range pending {
		if err := d.Sink.Deliver(ctx, ev); err != nil {
			_ = d.markFailed(ctx, ev.Offset, err.Error())
			continue
		}
		if err := d.markOK(ctx, ev.Offset); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) markOK(ctx context.Context, offset int64) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE event_dispatch
		   SET status='ok', last_error=NULL, updated_at=$1
		 WHERE event_offset=$2`, d.Now().Unix(), offset)
	return err
}

func (d *Dispatcher) markFailed(ctx context.Context, offset int64, lastErr string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE event_dispatch
		   SET status='failed', retries=retries+1, last_error=$1, updated_at=$2
		 WHERE event_offset=$3`, lastErr, d.Now().Unix(), offset)
	return err
}
