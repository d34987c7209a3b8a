package grading

import (
	"math"
	"strings"

	"github.com/learnhub/learnhub-lms/internal/course"
)

// Answer is a student's response to one question. Selected carries chosen
// choice ids for mcq questions; Literal carries the raw text for true_false.
type Answer struct {
	Selected []string `json:"selected,omitempty"`
	Literal  string   `json:"literal,omitempty"`
}

type QuestionResult struct {
	QuestionID     string  `json:"question_id"`
	Correct        bool    `json:"correct"`
	PointsAwarded  float64 `json:"points_awarded"`
	PointsPossible float64 `json:"points_possible"`
}

type ScoreResult struct {
	EarnedPoints float64          `json:"earned_points"`
	TotalPoints  float64          `json:"total_points"`
	Percentage   int              `json:"percentage"`
	Passed       bool             `json:"passed"`
	Breakdown    []QuestionResult `json:"breakdown"`
}

// Strategy decides correctness for a single question type.
type Strategy interface {
	Correct(q course.Question, a Answer) bool
}

type Scorer struct {
	strategies map[course.QuestionType]Strategy
}

func NewScorer() *Scorer {
	return &Scorer{
		strategies: map[course.QuestionType]Strategy{
			course.QuestionMCQSingle: choiceStrategy{},
			course.QuestionTrueFalse: trueFalseStrategy{},
		},
	}
}

// Score grades the full answer set against the assessment definition. It is
// total over all questions: missing or malformed answers score zero points,
// never an error. A definition with zero total points scores 0% and fails.
func (s *Scorer) Score(def *course.AssessmentDefinition, answers map[string]Answer) ScoreResult {
	res := ScoreResult{
		TotalPoints: def.TotalPoints(),
		Breakdown:   make([]QuestionResult, 0, len(def.Questions)),
	}
	for _, q := range def.Questions {
		qr := QuestionResult{QuestionID: q.ID, PointsPossible: q.Points}
		if strat, ok := s.strategies[q.Type]; ok {
			if a, has := answers[q.ID]; has && strat.Correct(q, a) {
				qr.Correct = true
				qr.PointsAwarded = q.Points
				res.EarnedPoints += q.Points
			}
		}
		res.Breakdown = append(res.Breakdown, qr)
	}
	if res.TotalPoints > 0 {
		// half-up rounding
		res.Percentage = int(math.Floor(res.EarnedPoints/res.TotalPoints*100 + 0.5))
		res.Passed = res.Percentage >= def.PassingScore
	}
	return res
}

// choiceStrategy: correct iff the selected set equals the key set exactly.
type choiceStrategy struct{}

func (choiceStrategy) Correct(q course.Question, a Answer) bool {
	if len(q.AnswerKey) == 0 || len(a.Selected) == 0 {
		return false
	}
	return equalStringSets(a.Selected, q.AnswerKey)
}

// trueFalseStrategy: correct iff the boolean value matches the key.
type trueFalseStrategy struct{}

func (trueFalseStrategy) Correct(q course.Question, a Answer) bool {
	if len(q.AnswerKey) == 0 {
		return false
	}
	got, ok := parseBool(a.Literal)
	if !ok {
		return false
	}
	want, ok := parseBool(q.AnswerKey[0])
	if !ok {
		return false
	}
	return got == want
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "1":
		return true, true
	case "false", "f", "0":
		return false, true
	default:
		return false, false
	}
}

func equalStringSets(a, b []string) bool {
	seen := map[string]int{}
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		seen[s]--
	}
	for _, v := range seen {
		if v != 0 {
			return false
		}
	}
	return true
}
