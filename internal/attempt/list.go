package attempt

import (
	"context"
	"encoding/json"
	"strconv"
)

const attemptCols = `id,component_id,course_id,user_id,attempt_number,status,earned_points,total_points,percentage,passed,answers_json,breakdown_json,started_at,submitted_at`

// List returns attempts with filters for teacher/admin dashboards and the
// student "my attempts" view.
func (l *Ledger) List(ctx context.Context, opts ListOpts) ([]Attempt, error) {
	sqlStr := `SELECT ` + attemptCols + ` FROM attempts WHERE 1=1`
	args := []any{}
	add := func(clause, val string) {
		args = append(args, val)
		sqlStr += clause + "$" + strconv.Itoa(len(args))
	}
	if opts.ComponentID != "" {
		add(` AND component_id=`, opts.ComponentID)
	}
	if opts.CourseID != "" {
		add(` AND course_id=`, opts.CourseID)
	}
	if opts.UserID != "" {
		add(` AND user_id=`, opts.UserID)
	}
	if opts.Status == StatusInProgress || opts.Status == StatusSubmitted {
		add(` AND status=`, opts.Status)
	}

	switch opts.Sort {
	case "submitted_at":
		sqlStr += ` ORDER BY submitted_at DESC`
	default:
		sqlStr += ` ORDER BY started_at DESC`
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	sqlStr += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := l.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (Attempt, error) {
	var a Attempt
	var answersJSON, breakdownJSON string
	err := row.Scan(&a.ID, &a.ComponentID, &a.CourseID, &a.UserID, &a.Number, &a.Status,
		&a.EarnedPoints, &a.TotalPoints, &a.Percentage, &a.Passed,
		&answersJSON, &breakdownJSON, &a.StartedAt, &a.SubmittedAt)
	if err != nil {
		return Attempt{}, err
	}
	_ = json.Unmarshal([]byte(answersJSON), &a.Answers)
	_ = json.Unmarshal([]byte(breakdownJSON), &a.Breakdown)
	return a, nil
}
