package progress

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/learnhub/learnhub-lms/internal/course"
	"github.com/learnhub/learnhub-lms/internal/db"
	"github.com/learnhub/learnhub-lms/internal/events"
)

// CourseNotifier is the aggregator as seen by the tracker.
type CourseNotifier interface {
	Recompute(ctx context.Context, q db.Queryer, userID, courseID string) (CourseProgress, error)
}

// Tracker advances the per-(user,component) state machine:
// not_started -> in_progress -> completed, with failed as a terminal state
// for required assessments whose quota ran out without a pass.
type Tracker struct {
	log     *events.Log
	courses CourseNotifier
}

func NewTracker(log *events.Log, courses CourseNotifier) *Tracker {
	return &Tracker{log: log, courses: courses}
}

// Touch records a first interaction (material view, attempt start). It
// lazily creates the progress row and moves not_started to in_progress.
func (t *Tracker) Touch(ctx context.Context, q db.Queryer, userID string, comp course.Component) error {
	now := time.Now().Unix()
	p, found, err := loadComponent(ctx, q, userID, comp.ID)
	if err != nil {
		return err
	}
	if !found {
		p = ComponentProgress{
			UserID:      userID,
			ComponentID: comp.ID,
			CourseID:    comp.CourseID,
			Status:      StatusNotStarted,
		}
	}
	prev := p.Status
	if p.Status == StatusNotStarted {
		p.Status = StatusInProgress
		p.StartedAt = &now
	}
	p.LastAccessed = &now
	if err := upsertComponent(ctx, q, p); err != nil {
		return err
	}
	if p.Status != prev {
		if err := t.emitChanged(ctx, q, p); err != nil {
			return err
		}
		if _, err := t.courses.Recompute(ctx, q, userID, comp.CourseID); err != nil {
			return err
		}
	}
	return nil
}

// Apply feeds one progress signal through the state machine and persists the
// result. Runs on the caller's Queryer so a submission and its progress
// update commit atomically.
func (t *Tracker) Apply(ctx context.Context, q db.Queryer, userID string, comp course.Component, sig Signal) (ComponentProgress, error) {
	now := time.Now().Unix()
	p, found, err := loadComponent(ctx, q, userID, comp.ID)
	if err != nil {
		return ComponentProgress{}, err
	}
	if !found {
		p = ComponentProgress{
			UserID:      userID,
			ComponentID: comp.ID,
			CourseID:    comp.CourseID,
			Status:      StatusNotStarted,
		}
	}
	prev := p.Status
	if p.Status == StatusNotStarted {
		p.Status = StatusInProgress
		p.StartedAt = &now
	}

	switch s := sig.(type) {
	case AssessmentResult:
		if comp.Kind != course.KindAssessment {
			return ComponentProgress{}, fmt.Errorf("assessment signal for %s component %s", comp.Kind, comp.ID)
		}
		// score reflects the latest attempt, never an accumulation
		sc := s.Percentage
		p.Score = &sc
		p.Percent = s.Percentage
		p.AttemptCount = s.AttemptsUsed
		if s.TimeSpentSec > 0 {
			p.TimeSpentSec += s.TimeSpentSec
		}
		if !p.Status.Terminal() {
			switch {
			case s.Passed:
				p.Status = StatusCompleted
			case s.QuotaExhausted:
				// retake flags are irrelevant once the quota is gone
				if comp.Required {
					p.Status = StatusFailed
				} else {
					p.Status = StatusCompleted
				}
			case s.AcceptScore:
				p.Status = StatusCompleted
			}
		}
	case MaterialPing:
		if comp.Kind != course.KindMaterial {
			return ComponentProgress{}, fmt.Errorf("material signal for %s component %s", comp.Kind, comp.ID)
		}
		pct := s.Percent
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		if !p.Status.Terminal() {
			if pct > p.Percent {
				p.Percent = pct
			}
			if p.Percent >= 100 {
				p.Status = StatusCompleted
			}
		}
		if s.TimeSpentSec > 0 {
			p.TimeSpentSec += s.TimeSpentSec
		}
	default:
		return ComponentProgress{}, fmt.Errorf("unknown progress signal %T", sig)
	}

	p.LastAccessed = &now
	if p.Status.Terminal() && p.CompletedAt == nil {
		p.CompletedAt = &now
	}
	if err := upsertComponent(ctx, q, p); err != nil {
		return ComponentProgress{}, err
	}
	if err := t.emitChanged(ctx, q, p); err != nil {
		return ComponentProgress{}, err
	}
	if p.Status != prev {
		if _, err := t.courses.Recompute(ctx, q, userID, comp.CourseID); err != nil {
			return ComponentProgress{}, err
		}
	}
	return p, nil
}

// ApplyTx wraps Apply in its own transaction, for callers (material pings)
// that are not already inside one.
func (t *Tracker) ApplyTx(ctx context.Context, dbh *sql.DB, userID string, comp course.Component, sig Signal) (ComponentProgress, error) {
	tx, err := dbh.BeginTx(ctx, nil)
	if err != nil {
		return ComponentProgress{}, err
	}
	defer tx.Rollback()
	p, err := t.Apply(ctx, tx, userID, comp, sig)
	if err != nil {
		return ComponentProgress{}, err
	}
	if err := tx.Commit(); err != nil {
		return ComponentProgress{}, err
	}
	return p, nil
}

func (t *Tracker) emitChanged(ctx context.Context, q db.Queryer, p ComponentProgress) error {
	_, err := t.log.Append(ctx, q, events.TypeComponentProgressChanged, p.UserID+"|"+p.ComponentID,
		events.ComponentProgressChanged{
			UserID:      p.UserID,
			ComponentID: p.ComponentID,
			CourseID:    p.CourseID,
			Status:      string(p.Status),
			Score:       p.Score,
		})
	return err
}
