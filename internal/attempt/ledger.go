package attempt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/learnhub/learnhub-lms/internal/course"
	"github.com/learnhub/learnhub-lms/internal/grading"
	"github.com/learnhub/learnhub-lms/internal/progress"
)

// Ledger owns every attempt row and the two invariants around them: attempt
// numbers per (user, component) are gap-free starting at 1, and at most one
// attempt is in progress at a time. Both are enforced under a per-(user,
// component) keyed mutex plus one transaction per logical operation.
type Ledger struct {
	db      *sql.DB
	courses *course.Store
	scorer  *grading.Scorer
	tracker *progress.Tracker
	locks   *keyedMutex
}

func NewLedger(db *sql.DB, courses *course.Store, scorer *grading.Scorer, tracker *progress.Tracker) *Ledger {
	return &Ledger{
		db:      db,
		courses: courses,
		scorer:  scorer,
		tracker: tracker,
		locks:   newKeyedMutex(),
	}
}

// Start allocates the next attempt for (user, component) after the quota and
// in-progress checks, all inside the critical section.
func (l *Ledger) Start(ctx context.Context, userID, componentID string) (Attempt, error) {
	comp, err := l.assessmentComponent(ctx, componentID)
	if err != nil {
		return Attempt{}, err
	}
	def := comp.Assessment

	unlock := l.locks.lock(userID + "|" + componentID)
	defer unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, busyOr(err)
	}
	defer tx.Rollback()

	var submitted int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts WHERE component_id=$1 AND user_id=$2 AND status='submitted'`,
		componentID, userID).Scan(&submitted); err != nil {
		return Attempt{}, busyOr(err)
	}
	if def.MaxAttempts > 0 && submitted >= def.MaxAttempts {
		return Attempt{}, ErrQuotaExceeded
	}

	var inProgress bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM attempts WHERE component_id=$1 AND user_id=$2 AND status='in_progress')`,
		componentID, userID).Scan(&inProgress); err != nil {
		return Attempt{}, busyOr(err)
	}
	if inProgress {
		return Attempt{}, ErrAttemptInProgress
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(attempt_number),0)+1 FROM attempts WHERE component_id=$1 AND user_id=$2`,
		componentID, userID).Scan(&next); err != nil {
		return Attempt{}, busyOr(err)
	}

	a := Attempt{
		ID:          uuid.NewString(),
		ComponentID: componentID,
		CourseID:    comp.CourseID,
		UserID:      userID,
		Number:      next,
		Status:      StatusInProgress,
		TotalPoints: def.TotalPoints(),
		StartedAt:   time.Now().Unix(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO attempts (id,component_id,course_id,user_id,attempt_number,status,total_points,started_at)
		 VALUES ($1,$2,$3,$4,$5,'in_progress',$6,$7)`,
		a.ID, a.ComponentID, a.CourseID, a.UserID, a.Number, a.TotalPoints, a.StartedAt); err != nil {
		return Attempt{}, busyOr(err)
	}

	if err := l.tracker.Touch(ctx, tx, userID, comp); err != nil {
		return Attempt{}, err
	}
	if err := tx.Commit(); err != nil {
		return Attempt{}, busyOr(err)
	}
	return a, nil
}

// Submit scores the in-progress attempt, stamps it, and advances component
// and course progress in the same transaction. accept marks a non-passing
// result as accepted by the caller (completes the component while retakes
// remain).
func (l *Ledger) Submit(ctx context.Context, userID, componentID string, answers map[string]grading.Answer, accept bool) (grading.ScoreResult, error) {
	comp, err := l.assessmentComponent(ctx, componentID)
	if err != nil {
		return grading.ScoreResult{}, err
	}
	def := comp.Assessment
	if err := validateAnswers(def, answers); err != nil {
		return grading.ScoreResult{}, err
	}

	unlock := l.locks.lock(userID + "|" + componentID)
	defer unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return grading.ScoreResult{}, busyOr(err)
	}
	defer tx.Rollback()

	var id string
	var number int
	var startedAt int64
	err = tx.QueryRowContext(ctx,
		`SELECT id, attempt_number, started_at FROM attempts
		  WHERE component_id=$1 AND user_id=$2 AND status='in_progress'`,
		componentID, userID).Scan(&id, &number, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// distinguish a re-submit of a finished attempt from never starting
		var any bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM attempts WHERE component_id=$1 AND user_id=$2)`,
			componentID, userID).Scan(&any); err != nil {
			return grading.ScoreResult{}, busyOr(err)
		}
		if any {
			return grading.ScoreResult{}, ErrAlreadySubmitted
		}
		return grading.ScoreResult{}, ErrNoActiveAttempt
	}
	if err != nil {
		return grading.ScoreResult{}, busyOr(err)
	}

	score := l.scorer.Score(def, answers)
	now := time.Now().Unix()
	timeSpent := now - startedAt
	if timeSpent < 0 {
		timeSpent = 0
	}

	answersJSON, _ := json.Marshal(answers)
	breakdownJSON, _ := json.Marshal(score.Breakdown)
	res, err := tx.ExecContext(ctx,
		`UPDATE attempts SET status='submitted', earned_points=$1, total_points=$2,
		        percentage=$3, passed=$4, answers_json=$5, breakdown_json=$6, submitted_at=$7
		  WHERE id=$8 AND status='in_progress'`,
		score.EarnedPoints, score.TotalPoints, score.Percentage, score.Passed,
		string(answersJSON), string(breakdownJSON), now, id)
	if err != nil {
		return grading.ScoreResult{}, busyOr(err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return grading.ScoreResult{}, ErrAlreadySubmitted
	}

	var submitted int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts WHERE component_id=$1 AND user_id=$2 AND status='submitted'`,
		componentID, userID).Scan(&submitted); err != nil {
		return grading.ScoreResult{}, busyOr(err)
	}
	exhausted := def.MaxAttempts > 0 && submitted >= def.MaxAttempts

	if _, err := l.tracker.Apply(ctx, tx, userID, comp, progress.AssessmentResult{
		Percentage:     score.Percentage,
		Passed:         score.Passed,
		AttemptsUsed:   submitted,
		QuotaExhausted: exhausted,
		AllowRetake:    def.AllowRetake,
		AcceptScore:    accept,
		TimeSpentSec:   timeSpent,
	}); err != nil {
		return grading.ScoreResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return grading.ScoreResult{}, busyOr(err)
	}
	// the stored attempt keeps the full breakdown; the response only carries
	// it when the component is configured to show per-question results
	if !def.ShowResults {
		score.Breakdown = nil
	}
	return score, nil
}

// Active returns the user's in-progress attempt for a component, if any, so
// callers can resume instead of starting a new one.
func (l *Ledger) Active(ctx context.Context, userID, componentID string) (Attempt, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts
		WHERE component_id=$1 AND user_id=$2 AND status='in_progress'`, componentID, userID)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrNoActiveAttempt
	}
	return a, err
}

func (l *Ledger) Get(ctx context.Context, id string) (Attempt, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts WHERE id=$1`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, course.ErrNotFound
	}
	return a, err
}

func (l *Ledger) assessmentComponent(ctx context.Context, componentID string) (course.Component, error) {
	comp, err := l.courses.GetComponent(ctx, componentID)
	if err != nil {
		return course.Component{}, err
	}
	if comp.Kind != course.KindAssessment || comp.Assessment == nil {
		return course.Component{}, fmt.Errorf("%w: %s is not an assessment", ErrComponentMisconfigured, componentID)
	}
	if len(comp.Assessment.Questions) == 0 || comp.Assessment.TotalPoints() <= 0 {
		return course.Component{}, fmt.Errorf("%w: %s has no scoreable questions", ErrComponentMisconfigured, componentID)
	}
	return comp, nil
}

// validateAnswers rejects unknown question ids and ambiguous answer shapes.
// Wrong or missing answers are not payload errors; the scorer handles those.
func validateAnswers(def *course.AssessmentDefinition, answers map[string]grading.Answer) error {
	known := make(map[string]struct{}, len(def.Questions))
	for _, q := range def.Questions {
		known[q.ID] = struct{}{}
	}
	for qid, a := range answers {
		if _, ok := known[qid]; !ok {
			return fmt.Errorf("%w: unknown question %q", ErrInvalidAnswerPayload, qid)
		}
		if len(a.Selected) > 0 && a.Literal != "" {
			return fmt.Errorf("%w: question %q has both selection and literal", ErrInvalidAnswerPayload, qid)
		}
	}
	return nil
}

// busyOr maps driver lock/busy failures onto ErrBusy so callers can retry.
func busyOr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "busy") || // sqlite SQLITE_BUSY
		strings.Contains(msg, "locked") || // sqlite SQLITE_LOCKED (shared cache)
		strings.Contains(msg, "lock timeout") || // postgres lock_timeout
		strings.Contains(msg, "deadlock") {
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	return err
}
