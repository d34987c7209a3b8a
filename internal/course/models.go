package course

import (
	"encoding/json"
	"fmt"
)

type Kind string

const (
	KindAssessment Kind = "assessment"
	KindMaterial   Kind = "material"
)

type Course struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedBy string `json:"created_by"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

type QuestionType string

const (
	QuestionMCQSingle QuestionType = "mcq_single"
	QuestionTrueFalse QuestionType = "true_false"
)

type Choice struct {
	ID        string `json:"id"`
	LabelHTML string `json:"label_html,omitempty"`
}

type Question struct {
	ID         string       `json:"id"`
	Type       QuestionType `json:"type"`
	PromptHTML string       `json:"prompt_html,omitempty"`
	Choices    []Choice     `json:"choices,omitempty"`
	// AnswerKey holds the ids of the correct choices for mcq_single,
	// or "true"/"false" for true_false.
	AnswerKey []string `json:"answer_key,omitempty"`
	Points    float64  `json:"points"`
}

// AssessmentDefinition is the typed payload of an assessment component.
type AssessmentDefinition struct {
	Questions    []Question `json:"questions"`
	PassingScore int        `json:"passing_score"` // percentage threshold
	MaxAttempts  int        `json:"max_attempts"`  // <=0 means unlimited
	TimeLimitSec int        `json:"time_limit_sec,omitempty"`
	Shuffle      bool       `json:"shuffle,omitempty"`
	ShowResults  bool       `json:"show_results,omitempty"`
	AllowRetake  bool       `json:"allow_retake,omitempty"`
}

func (d *AssessmentDefinition) TotalPoints() float64 {
	var sum float64
	for _, q := range d.Questions {
		sum += q.Points
	}
	return sum
}

// MaterialDefinition is the typed payload of a material component
// (video, reading, etc.). Completion is signalled by a 100% progress ping.
type MaterialDefinition struct {
	ContentType string `json:"content_type,omitempty"` // video|document|link
	DurationSec int    `json:"duration_sec,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Component is a tagged variant: exactly one of the definition pointers is
// set, matching Kind.
type Component struct {
	ID        string `json:"id"`
	CourseID  string `json:"course_id"`
	Kind      Kind   `json:"kind"`
	Title     string `json:"title"`
	Position  int    `json:"position"`
	Required  bool   `json:"required"`
	CreatedAt int64  `json:"created_at,omitempty"`

	Assessment *AssessmentDefinition `json:"assessment,omitempty"`
	Material   *MaterialDefinition   `json:"material,omitempty"`
}

func (c *Component) encodeDefinition() (string, error) {
	switch c.Kind {
	case KindAssessment:
		if c.Assessment == nil {
			return "", fmt.Errorf("component %s: missing assessment definition", c.ID)
		}
		b, err := json.Marshal(c.Assessment)
		return string(b), err
	case KindMaterial:
		if c.Material == nil {
			return "", fmt.Errorf("component %s: missing material definition", c.ID)
		}
		b, err := json.Marshal(c.Material)
		return string(b), err
	default:
		return "", fmt.Errorf("component %s: unknown kind %q", c.ID, c.Kind)
	}
}

func (c *Component) decodeDefinition(raw string) error {
	switch c.Kind {
	case KindAssessment:
		var d AssessmentDefinition
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return err
		}
		c.Assessment = &d
	case KindMaterial:
		var d MaterialDefinition
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return err
		}
		c.Material = &d
	default:
		return fmt.Errorf("component %s: unknown kind %q", c.ID, c.Kind)
	}
	return nil
}

// StripAnswerKeys blanks correctness data before serving to students.
func (c *Component) StripAnswerKeys() {
	if c.Assessment == nil {
		return
	}
	for i := range c.Assessment.Questions {
		c.Assessment.Questions[i].AnswerKey = nil
	}
}
