package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/learnhub/learnhub-lms/internal/db"
)

const (
	TypeComponentProgressChanged = "ComponentProgressChanged"
	TypeCourseCompleted          = "CourseCompleted"
)

type Event struct {
	Offset    int64  `json:"offset"`
	Type      string `json:"type"`
	Key       string `json:"key"`
	DataJSON  string `json:"data"`
	CreatedAt int64  `json:"created_at"`
}

type ComponentProgressChanged struct {
	UserID      string `json:"user_id"`
	ComponentID string `json:"component_id"`
	CourseID    string `json:"course_id"`
	Status      string `json:"status"`
	Score       *int   `json:"score,omitempty"`
}

type CourseCompleted struct {
	UserID      string `json:"user_id"`
	CourseID    string `json:"course_id"`
	CompletedAt int64  `json:"completed_at"`
}

type Log struct{}

func NewLog() *Log { return &Log{} }

// Append writes one event and returns its offset. It runs on the caller's
// Queryer so an event lands in the same transaction as the state change that
// produced it.
func (l *Log) Append(ctx context.Context, q db.Queryer, typ, key string, payload any) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	var offset int64
	err = q.QueryRowContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4) RETURNING seq`,
		typ, key, string(data), time.Now().Unix()).Scan(&offset)
	if err != nil {
		return 0, err
	}
	return offset, nil
}

// AppendForDispatch appends the event and marks it pending for the
// dispatcher.
func (l *Log) AppendForDispatch(ctx context.Context, q db.Queryer, typ, key string, payload any) (int64, error) {
	offset, err := l.Append(ctx, q, typ, key, payload)
	if err != nil {
		return 0, err
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO event_dispatch (event_offset, status, retries, updated_at)
		 VALUES ($1,'pending',0,$2)
		 ON CONFLICT (event_offset) DO NOTHING`,
		offset, time.Now().Unix())
	return offset, err
}
