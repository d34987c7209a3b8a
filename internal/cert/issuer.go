package cert

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/learnhub/learnhub-lms/internal/events"
)

var ErrNotFound = errors.New("certificate not found")

type Certificate struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	CourseID string `json:"course_id"`
	IssuedAt int64  `json:"issued_at"`
}

// Issuer consumes CourseCompleted events and issues one certificate per
// (user, course). Redelivery of the same event is a no-op: the unique
// constraint makes issuance idempotent.
type Issuer struct {
	db *sql.DB
}

func NewIssuer(db *sql.DB) *Issuer { return &Issuer{db: db} }

// Deliver implements events.Sink.
func (i *Issuer) Deliver(ctx context.Context, ev events.Event) error {
	if ev.Type != events.TypeCourseCompleted {
		return nil
	}
	var cc events.CourseCompleted
	if err := json.Unmarshal([]byte(ev.DataJSON), &cc); err != nil {
		return fmt.Errorf("course completed payload: %w", err)
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO certificates (id,user_id,course_id,issued_at)
		 VALUES ($1,$2,$3,$4)
		 ON CONFLICT (user_id,course_id) DO NOTHING`,
		uuid.NewString(), cc.UserID, cc.CourseID, time.Now().Unix()); err != nil {
		return err
	}

	var certID string
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM certificates WHERE user_id=$1 AND course_id=$2`,
		cc.UserID, cc.CourseID).Scan(&certID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE course_progress SET certificate_id=$1
		  WHERE user_id=$2 AND course_id=$3 AND certificate_id IS NULL`,
		certID, cc.UserID, cc.CourseID); err != nil {
		return err
	}
	return tx.Commit()
}

func (i *Issuer) Get(ctx context.Context, userID, courseID string) (Certificate, error) {
	var c Certificate
	err := i.db.QueryRowContext(ctx,
		`SELECT id,user_id,course_id,issued_at FROM certificates WHERE user_id=$1 AND course_id=$2`,
		userID, courseID).Scan(&c.ID, &c.UserID, &c.CourseID, &c.IssuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Certificate{}, ErrNotFound
	}
	return c, err
}
