package progress

import (
	"context"
	"database/sql"
	"errors"

	"github.com/learnhub/learnhub-lms/internal/db"
)

func loadComponent(ctx context.Context, q db.Queryer, userID, componentID string) (ComponentProgress, bool, error) {
	row := q.QueryRowContext(ctx, `SELECT user_id,component_id,course_id,status,percent,score,attempt_count,time_spent_sec,started_at,completed_at,last_accessed_at
		FROM component_progress WHERE user_id=$1 AND component_id=$2`, userID, componentID)
	p, err := scanComponentProgress(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ComponentProgress{}, false, nil
		}
		return ComponentProgress{}, false, err
	}
	return p, true, nil
}

func upsertComponent(ctx context.Context, q db.Queryer, p ComponentProgress) error {
	_, err := q.ExecContext(ctx, `INSERT INTO component_progress
		(user_id,component_id,course_id,status,percent,score,attempt_count,time_spent_sec,started_at,completed_at,last_accessed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (user_id,component_id) DO UPDATE SET
			status=EXCLUDED.status,
			percent=EXCLUDED.percent,
			score=EXCLUDED.score,
			attempt_count=EXCLUDED.attempt_count,
			time_spent_sec=EXCLUDED.time_spent_sec,
			started_at=EXCLUDED.started_at,
			completed_at=EXCLUDED.completed_at,
			last_accessed_at=EXCLUDED.last_accessed_at`,
		p.UserID, p.ComponentID, p.CourseID, string(p.Status), p.Percent, p.Score,
		p.AttemptCount, p.TimeSpentSec, p.StartedAt, p.CompletedAt, p.LastAccessed)
	return err
}

// LoadComponent returns the progress row for (user, component), or a
// not_started zero value when none exists yet.
func LoadComponent(ctx context.Context, q db.Queryer, userID, componentID string) (ComponentProgress, error) {
	p, found, err := loadComponent(ctx, q, userID, componentID)
	if err != nil {
		return ComponentProgress{}, err
	}
	if !found {
		return ComponentProgress{UserID: userID, ComponentID: componentID, Status: StatusNotStarted}, nil
	}
	return p, nil
}

// ListByCourse returns all of a user's component progress rows for a course.
func ListByCourse(ctx context.Context, q db.Queryer, userID, courseID string) ([]ComponentProgress, error) {
	rows, err := q.QueryContext(ctx, `SELECT user_id,component_id,course_id,status,percent,score,attempt_count,time_spent_sec,started_at,completed_at,last_accessed_at
		FROM component_progress WHERE user_id=$1 AND course_id=$2`, userID, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ComponentProgress{}
	for rows.Next() {
		p, err := scanComponentProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LoadCourse returns the aggregate row for (user, course), or a not_started
// zero value when none exists yet.
func LoadCourse(ctx context.Context, q db.Queryer, userID, courseID string) (CourseProgress, error) {
	row := q.QueryRowContext(ctx, `SELECT user_id,course_id,status,percent,enrolled_at,started_at,completed_at,certificate_id
		FROM course_progress WHERE user_id=$1 AND course_id=$2`, userID, courseID)
	var cp CourseProgress
	var status string
	err := row.Scan(&cp.UserID, &cp.CourseID, &status, &cp.Percent,
		&cp.EnrolledAt, &cp.StartedAt, &cp.CompletedAt, &cp.CertificateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CourseProgress{UserID: userID, CourseID: courseID, Status: StatusNotStarted}, nil
		}
		return CourseProgress{}, err
	}
	cp.Status = Status(status)
	return cp, nil
}

func upsertCourse(ctx context.Context, q db.Queryer, cp CourseProgress) error {
	_, err := q.ExecContext(ctx, `INSERT INTO course_progress
		(user_id,course_id,status,percent,enrolled_at,started_at,completed_at,certificate_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (user_id,course_id) DO UPDATE SET
			status=EXCLUDED.status,
			percent=EXCLUDED.percent,
			started_at=EXCLUDED.started_at,
			completed_at=EXCLUDED.completed_at`,
		cp.UserID, cp.CourseID, string(cp.Status), cp.Percent,
		cp.EnrolledAt, cp.StartedAt, cp.CompletedAt, cp.CertificateID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComponentProgress(row rowScanner) (ComponentProgress, error) {
	var p ComponentProgress
	var status string
	err := row.Scan(&p.UserID, &p.ComponentID, &p.CourseID, &status, &p.Percent, &p.Score,
		&p.AttemptCount, &p.TimeSpentSec, &p.StartedAt, &p.CompletedAt, &p.LastAccessed)
	if err != nil {
		return ComponentProgress{}, err
	}
	p.Status = Status(status)
	return p, nil
}
