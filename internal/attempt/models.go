package attempt

import "github.com/learnhub/learnhub-lms/internal/grading"

const (
	StatusInProgress = "in_progress"
	StatusSubmitted  = "submitted"
)

type Attempt struct {
	ID           string                     `json:"id"`
	ComponentID  string                     `json:"component_id"`
	CourseID     string                     `json:"course_id"`
	UserID       string                     `json:"user_id"`
	Number       int                        `json:"attempt_number"`
	Status       string                     `json:"status"`
	EarnedPoints float64                    `json:"earned_points"`
	TotalPoints  float64                    `json:"total_points"`
	Percentage   int                        `json:"percentage"`
	Passed       bool                       `json:"passed"`
	Answers      map[string]grading.Answer  `json:"answers,omitempty"`
	Breakdown    []grading.QuestionResult   `json:"breakdown,omitempty"`
	StartedAt    int64                      `json:"started_at"`
	SubmittedAt  *int64                     `json:"submitted_at,omitempty"`
}

type ListOpts struct {
	ComponentID string
	CourseID    string
	UserID      string
	Status      string // in_progress|submitted
	Limit       int
	Offset      int
	Sort        string // started_at|submitted_at (desc)
}
