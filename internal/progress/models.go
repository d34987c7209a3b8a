package progress

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

type ComponentProgress struct {
	UserID       string `json:"user_id"`
	ComponentID  string `json:"component_id"`
	CourseID     string `json:"course_id"`
	Status       Status `json:"status"`
	Percent      int    `json:"percent"`
	Score        *int   `json:"score,omitempty"` // latest assessment percentage
	AttemptCount int    `json:"attempt_count"`
	TimeSpentSec int64  `json:"time_spent_sec"`
	StartedAt    *int64 `json:"started_at,omitempty"`
	CompletedAt  *int64 `json:"completed_at,omitempty"`
	LastAccessed *int64 `json:"last_accessed_at,omitempty"`
}

type CourseProgress struct {
	UserID        string  `json:"user_id"`
	CourseID      string  `json:"course_id"`
	Status        Status  `json:"status"`
	Percent       int     `json:"percent"`
	EnrolledAt    *int64  `json:"enrolled_at,omitempty"`
	StartedAt     *int64  `json:"started_at,omitempty"`
	CompletedAt   *int64  `json:"completed_at,omitempty"`
	CertificateID *string `json:"certificate_id,omitempty"`
}

// Signal is the polymorphic progress input: one variant per component kind.
type Signal interface {
	isSignal()
}

// AssessmentResult is emitted by the attempt ledger after a submission.
type AssessmentResult struct {
	Percentage     int
	Passed         bool
	AttemptsUsed   int // submitted attempts so far, including this one
	QuotaExhausted bool
	AllowRetake    bool
	AcceptScore    bool // caller accepts a non-passing result
	TimeSpentSec   int64
}

func (AssessmentResult) isSignal() {}

// MaterialPing reports viewing progress on a material component.
type MaterialPing struct {
	Percent      int
	TimeSpentSec int64
}

func (MaterialPing) isSignal() {}
