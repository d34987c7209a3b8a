package progress

import (
	"context"
	"time"

	"github.com/learnhub/learnhub-lms/internal/db"
	"github.com/learnhub/learnhub-lms/internal/events"
)

// Aggregator derives course-level progress from the user's component rows.
// It is push-driven (invoked by the tracker) and idempotent: recomputing an
// already-completed course never re-emits the completion event.
type Aggregator struct {
	log *events.Log
}

func NewAggregator(log *events.Log) *Aggregator { return &Aggregator{log: log} }

func (a *Aggregator) Recompute(ctx context.Context, q db.Queryer, userID, courseID string) (CourseProgress, error) {
	now := time.Now().Unix()

	// Claim the (user, course) row before reading anything. The write takes a
	// row lock that the surrounding transaction holds until commit, so two
	// recomputes for the same pair run strictly one after the other and the
	// completion check below always sees the other's committed component rows.
	if _, err := q.ExecContext(ctx, `INSERT INTO course_progress (user_id,course_id,status,percent)
		VALUES ($1,$2,'not_started',0)
		ON CONFLICT (user_id,course_id) DO UPDATE SET user_id=EXCLUDED.user_id`,
		userID, courseID); err != nil {
		return CourseProgress{}, err
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, required FROM course_components WHERE course_id=$1`, courseID)
	if err != nil {
		return CourseProgress{}, err
	}
	type compInfo struct {
		id       string
		required bool
	}
	var comps []compInfo
	for rows.Next() {
		var c compInfo
		if err := rows.Scan(&c.id, &c.required); err != nil {
			rows.Close()
			return CourseProgress{}, err
		}
		comps = append(comps, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return CourseProgress{}, err
	}

	statusByComp := map[string]Status{}
	prows, err := ListByCourse(ctx, q, userID, courseID)
	if err != nil {
		return CourseProgress{}, err
	}
	for _, p := range prows {
		statusByComp[p.ComponentID] = p.Status
	}

	cp, err := LoadCourse(ctx, q, userID, courseID)
	if err != nil {
		return CourseProgress{}, err
	}

	if len(comps) == 0 {
		cp.Status = StatusNotStarted
		cp.Percent = 0
		return cp, upsertCourse(ctx, q, cp)
	}

	completed := 0
	anyStarted := false
	allRequiredDone := true
	for _, c := range comps {
		st, ok := statusByComp[c.id]
		if ok && st != StatusNotStarted {
			anyStarted = true
		}
		if st == StatusCompleted {
			completed++
		} else if c.required {
			allRequiredDone = false
		}
	}

	// optional components count in the denominator but not for completion
	cp.Percent = completed * 100 / len(comps)
	switch {
	case !anyStarted:
		cp.Status = StatusNotStarted
	case allRequiredDone:
		cp.Status = StatusCompleted
	default:
		cp.Status = StatusInProgress
	}

	if cp.Status != StatusNotStarted && cp.StartedAt == nil {
		cp.StartedAt = &now
	}
	if cp.Status == StatusCompleted && cp.CompletedAt == nil {
		// first completion only: stamp and emit exactly once
		cp.CompletedAt = &now
		_, err = a.log.AppendForDispatch(ctx, q, events.TypeCourseCompleted, userID+"|"+courseID,
			events.CourseCompleted{UserID: userID, CourseID: courseID, CompletedAt: now})
		if err != nil {
			return CourseProgress{}, err
		}
	}

	if err := upsertCourse(ctx, q, cp); err != nil {
		return CourseProgress{}, err
	}
	return cp, nil
}
