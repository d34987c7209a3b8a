package progress_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/learnhub/learnhub-lms/internal/course"
	"github.com/learnhub/learnhub-lms/internal/db"
	"github.com/learnhub/learnhub-lms/internal/events"
	"github.com/learnhub/learnhub-lms/internal/progress"
)

func newTestTracker(t *testing.T) (*progress.Tracker, *sql.DB, *course.Store) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "progress.db") +
		"?cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { dbh.Close() })

	log := events.NewLog()
	tracker := progress.NewTracker(log, progress.NewAggregator(log))
	return tracker, dbh, course.NewStore(dbh)
}

func seedCourse(t *testing.T, courses *course.Store, id string) {
	t.Helper()
	if err := courses.PutCourse(context.Background(), course.Course{ID: id, Name: id, CreatedBy: "t1"}); err != nil {
		t.Fatalf("put course: %v", err)
	}
}

func seedMaterial(t *testing.T, courses *course.Store, courseID, id string, required bool) course.Component {
	t.Helper()
	comp := course.Component{
		ID:       id,
		CourseID: courseID,
		Kind:     course.KindMaterial,
		Title:    id,
		Required: required,
		Material: &course.MaterialDefinition{ContentType: "video", DurationSec: 300},
	}
	if err := courses.PutComponent(context.Background(), comp); err != nil {
		t.Fatalf("put component %s: %v", id, err)
	}
	return comp
}

func seedQuiz(t *testing.T, courses *course.Store, courseID, id string, required bool) course.Component {
	t.Helper()
	comp := course.Component{
		ID:       id,
		CourseID: courseID,
		Kind:     course.KindAssessment,
		Title:    id,
		Required: required,
		Assessment: &course.AssessmentDefinition{
			PassingScore: 70,
			MaxAttempts:  2,
			Questions: []course.Question{
				{ID: "q1", Type: course.QuestionTrueFalse, AnswerKey: []string{"true"}, Points: 10},
			},
		},
	}
	if err := courses.PutComponent(context.Background(), comp); err != nil {
		t.Fatalf("put component %s: %v", id, err)
	}
	return comp
}

func courseCompletedCount(t *testing.T, dbh *sql.DB) int {
	t.Helper()
	var n int
	err := dbh.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM event_log WHERE typ=$1`, events.TypeCourseCompleted).Scan(&n)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}

func TestMaterialPingProgression(t *testing.T) {
	tracker, dbh, courses := newTestTracker(t)
	seedCourse(t, courses, "course-1")
	comp := seedMaterial(t, courses, "course-1", "video-1", true)
	ctx := context.Background()

	p, err := tracker.Apply(ctx, dbh, "u1", comp, progress.MaterialPing{Percent: 40, TimeSpentSec: 60})
	if err != nil {
		t.Fatalf("ping 40: %v", err)
	}
	if p.Status != progress.StatusInProgress || p.Percent != 40 {
		t.Fatalf("after 40%%: %+v", p)
	}

	// percent never regresses
	p, err = tracker.Apply(ctx, dbh, "u1", comp, progress.MaterialPing{Percent: 25, TimeSpentSec: 30})
	if err != nil {
		t.Fatalf("ping 25: %v", err)
	}
	if p.Percent != 40 {
		t.Fatalf("percent regressed to %d", p.Percent)
	}
	if p.TimeSpentSec != 90 {
		t.Fatalf("time spent: got %d, want 90", p.TimeSpentSec)
	}

	p, err = tracker.Apply(ctx, dbh, "u1", comp, progress.MaterialPing{Percent: 100})
	if err != nil {
		t.Fatalf("ping 100: %v", err)
	}
	if p.Status != progress.StatusCompleted || p.CompletedAt == nil {
		t.Fatalf("after 100%%: %+v", p)
	}
	firstCompleted := *p.CompletedAt

	// completion is sticky
	p, err = tracker.Apply(ctx, dbh, "u1", comp, progress.MaterialPing{Percent: 10, TimeSpentSec: 5})
	if err != nil {
		t.Fatalf("ping after done: %v", err)
	}
	if p.Status != progress.StatusCompleted || p.Percent != 100 {
		t.Fatalf("terminal state moved: %+v", p)
	}
	if p.CompletedAt == nil || *p.CompletedAt != firstCompleted {
		t.Fatalf("completed_at restamped")
	}
}

func TestPingClampsPercent(t *testing.T) {
	tracker, dbh, courses := newTestTracker(t)
	seedCourse(t, courses, "course-1")
	comp := seedMaterial(t, courses, "course-1", "video-1", true)
	ctx := context.Background()

	p, err := tracker.Apply(ctx, dbh, "u1", comp, progress.MaterialPing{Percent: 250})
	if err != nil {
		t.Fatalf("ping 250: %v", err)
	}
	if p.Percent != 100 || p.Status != progress.StatusCompleted {
		t.Fatalf("overshoot not clamped: %+v", p)
	}

	p2, err := tracker.Apply(ctx, dbh, "u2", comp, progress.MaterialPing{Percent: -5})
	if err != nil {
		t.Fatalf("ping -5: %v", err)
	}
	if p2.Percent != 0 {
		t.Fatalf("negative percent not clamped: %+v", p2)
	}
}

func TestQuotaExhaustedRequiredVersusOptional(t *testing.T) {
	tracker, dbh, courses := newTestTracker(t)
	seedCourse(t, courses, "course-1")
	reqQuiz := seedQuiz(t, courses, "course-1", "quiz-req", true)
	optQuiz := seedQuiz(t, courses, "course-1", "quiz-opt", false)
	ctx := context.Background()

	exhausted := progress.AssessmentResult{
		Percentage:     40,
		Passed:         false,
		AttemptsUsed:   2,
		QuotaExhausted: true,
	}

	p, err := tracker.Apply(ctx, dbh, "u1", reqQuiz, exhausted)
	if err != nil {
		t.Fatalf("apply required: %v", err)
	}
	if p.Status != progress.StatusFailed {
		t.Fatalf("required exhausted: got %s, want failed", p.Status)
	}

	p, err = tracker.Apply(ctx, dbh, "u1", optQuiz, exhausted)
	if err != nil {
		t.Fatalf("apply optional: %v", err)
	}
	if p.Status != progress.StatusCompleted {
		t.Fatalf("optional exhausted: got %s, want completed", p.Status)
	}
}

func TestAcceptScoreCompletesWithoutPass(t *testing.T) {
	tracker, dbh, courses := newTestTracker(t)
	seedCourse(t, courses, "course-1")
	quiz := seedQuiz(t, courses, "course-1", "quiz-1", true)

	p, err := tracker.Apply(context.Background(), dbh, "u1", quiz, progress.AssessmentResult{
		Percentage:   55,
		Passed:       false,
		AttemptsUsed: 1,
		AcceptScore:  true,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if p.Status != progress.StatusCompleted {
		t.Fatalf("got %s, want completed", p.Status)
	}
	if p.Score == nil || *p.Score != 55 {
		t.Fatalf("score: %+v", p.Score)
	}
}

func TestScoreReflectsLatestAttempt(t *testing.T) {
	tracker, dbh, courses := newTestTracker(t)
	seedCourse(t, courses, "course-1")
	quiz := seedQuiz(t, courses, "course-1", "quiz-1", true)
	ctx := context.Background()

	if _, err := tracker.Apply(ctx, dbh, "u1", quiz, progress.AssessmentResult{
		Percentage: 80, Passed: true, AttemptsUsed: 1,
	}); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	p, err := tracker.Apply(ctx, dbh, "u1", quiz, progress.AssessmentResult{
		Percentage: 30, Passed: false, AttemptsUsed: 2,
	})
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	// latest score wins even when worse; terminal status stays
	if p.Score == nil || *p.Score != 30 {
		t.Fatalf("score: %+v", p.Score)
	}
	if p.Status != progress.StatusCompleted {
		t.Fatalf("status regressed to %s", p.Status)
	}
	if p.AttemptCount != 2 {
		t.Fatalf("attempt count: got %d, want 2", p.AttemptCount)
	}
}

func TestCourseCompletionEmittedOnce(t *testing.T) {
	tracker, dbh, courses := newTestTracker(t)
	seedCourse(t, courses, "course-1")
	m1 := seedMaterial(t, courses, "course-1", "m1", true)
	m2 := seedMaterial(t, courses, "course-1", "m2", true)
	m3 := seedMaterial(t, courses, "course-1", "m3", true)
	opt := seedMaterial(t, courses, "course-1", "m-extra", false)
	ctx := context.Background()

	for _, comp := range []course.Component{m1, m2} {
		if _, err := tracker.Apply(ctx, dbh, "u1", comp, progress.MaterialPing{Percent: 100}); err != nil {
			t.Fatalf("complete %s: %v", comp.ID, err)
		}
	}
	cp, err := progress.LoadCourse(ctx, dbh, "u1", "course-1")
	if err != nil {
		t.Fatalf("load course: %v", err)
	}
	if cp.Status != progress.StatusInProgress || cp.Percent != 50 {
		t.Fatalf("after 2 of 4: %+v", cp)
	}
	if n := courseCompletedCount(t, dbh); n != 0 {
		t.Fatalf("premature completion events: %d", n)
	}

	// third required component done: course completes at 75% (optional left)
	if _, err := tracker.Apply(ctx, dbh, "u1", m3, progress.MaterialPing{Percent: 100}); err != nil {
		t.Fatalf("complete m3: %v", err)
	}
	cp, err = progress.LoadCourse(ctx, dbh, "u1", "course-1")
	if err != nil {
		t.Fatalf("load course: %v", err)
	}
	if cp.Status != progress.StatusCompleted || cp.Percent != 75 {
		t.Fatalf("after all required: %+v", cp)
	}
	if cp.CompletedAt == nil {
		t.Fatalf("completed_at not stamped")
	}
	if n := courseCompletedCount(t, dbh); n != 1 {
		t.Fatalf("completion events: got %d, want 1", n)
	}

	// finishing the optional component raises percent but never re-emits
	if _, err := tracker.Apply(ctx, dbh, "u1", opt, progress.MaterialPing{Percent: 100}); err != nil {
		t.Fatalf("complete optional: %v", err)
	}
	cp, err = progress.LoadCourse(ctx, dbh, "u1", "course-1")
	if err != nil {
		t.Fatalf("load course: %v", err)
	}
	if cp.Percent != 100 {
		t.Fatalf("final percent: got %d, want 100", cp.Percent)
	}
	if n := courseCompletedCount(t, dbh); n != 1 {
		t.Fatalf("completion events after optional: got %d, want 1", n)
	}
}

func TestCourseWithFailedRequiredNeverCompletes(t *testing.T) {
	tracker, dbh, courses := newTestTracker(t)
	seedCourse(t, courses, "course-1")
	m1 := seedMaterial(t, courses, "course-1", "m1", true)
	quiz := seedQuiz(t, courses, "course-1", "quiz-1", true)
	ctx := context.Background()

	if _, err := tracker.Apply(ctx, dbh, "u1", m1, progress.MaterialPing{Percent: 100}); err != nil {
		t.Fatalf("complete m1: %v", err)
	}
	if _, err := tracker.Apply(ctx, dbh, "u1", quiz, progress.AssessmentResult{
		Percentage: 20, Passed: false, AttemptsUsed: 2, QuotaExhausted: true,
	}); err != nil {
		t.Fatalf("fail quiz: %v", err)
	}

	cp, err := progress.LoadCourse(ctx, dbh, "u1", "course-1")
	if err != nil {
		t.Fatalf("load course: %v", err)
	}
	if cp.Status != progress.StatusInProgress {
		t.Fatalf("course status: got %s, want in_progress", cp.Status)
	}
	if cp.Percent != 50 {
		t.Fatalf("course percent: got %d, want 50", cp.Percent)
	}
	if n := courseCompletedCount(t, dbh); n != 0 {
		t.Fatalf("completion events: %d", n)
	}
}

func TestTouchMovesNotStartedToInProgress(t *testing.T) {
	tracker, dbh, courses := newTestTracker(t)
	seedCourse(t, courses, "course-1")
	m1 := seedMaterial(t, courses, "course-1", "m1", true)
	ctx := context.Background()

	if err := tracker.Touch(ctx, dbh, "u1", m1); err != nil {
		t.Fatalf("touch: %v", err)
	}
	p, err := progress.LoadComponent(ctx, dbh, "u1", "m1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Status != progress.StatusInProgress || p.StartedAt == nil {
		t.Fatalf("after touch: %+v", p)
	}

	cp, err := progress.LoadCourse(ctx, dbh, "u1", "course-1")
	if err != nil {
		t.Fatalf("load course: %v", err)
	}
	if cp.Status != progress.StatusInProgress {
		t.Fatalf("course after touch: %+v", cp)
	}
}

func TestRecomputeEmptyCourse(t *testing.T) {
	_, dbh, courses := newTestTracker(t)
	seedCourse(t, courses, "course-empty")
	ctx := context.Background()

	agg := progress.NewAggregator(events.NewLog())
	cp, err := agg.Recompute(ctx, dbh, "u1", "course-empty")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if cp.Status != progress.StatusNotStarted || cp.Percent != 0 {
		t.Fatalf("empty course: %+v", cp)
	}
}
