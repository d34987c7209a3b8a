package grading

import (
	"reflect"
	"testing"

	"github.com/learnhub/learnhub-lms/internal/course"
)

func twoQuestionDef(passing int) *course.AssessmentDefinition {
	return &course.AssessmentDefinition{
		PassingScore: passing,
		Questions: []course.Question{
			{
				ID:   "q1",
				Type: course.QuestionMCQSingle,
				Choices: []course.Choice{
					{ID: "a"}, {ID: "b"}, {ID: "c"},
				},
				AnswerKey: []string{"b"},
				Points:    10,
			},
			{
				ID:        "q2",
				Type:      course.QuestionTrueFalse,
				AnswerKey: []string{"true"},
				Points:    5,
			},
		},
	}
}

func TestScorePartialCredit(t *testing.T) {
	// 10-point question correct, 5-point question wrong: 10/15 = 66.67,
	// half-up rounds to 67, below the 70% threshold.
	res := NewScorer().Score(twoQuestionDef(70), map[string]Answer{
		"q1": {Selected: []string{"b"}},
		"q2": {Literal: "false"},
	})
	if res.EarnedPoints != 10 || res.TotalPoints != 15 {
		t.Fatalf("points: earned=%v total=%v", res.EarnedPoints, res.TotalPoints)
	}
	if res.Percentage != 67 {
		t.Fatalf("percentage: got %d, want 67", res.Percentage)
	}
	if res.Passed {
		t.Fatalf("expected passed=false at 67%% with threshold 70")
	}
}

func TestScoreFullMarks(t *testing.T) {
	res := NewScorer().Score(twoQuestionDef(100), map[string]Answer{
		"q1": {Selected: []string{"b"}},
		"q2": {Literal: "TRUE"},
	})
	if res.Percentage != 100 || !res.Passed {
		t.Fatalf("got percentage=%d passed=%v, want 100/true", res.Percentage, res.Passed)
	}
}

func TestScoreMissingAndMalformedAnswers(t *testing.T) {
	// Unanswered and malformed answers count as incorrect, never error.
	res := NewScorer().Score(twoQuestionDef(50), map[string]Answer{
		"q2": {Literal: "maybe"},
	})
	if res.EarnedPoints != 0 || res.Percentage != 0 || res.Passed {
		t.Fatalf("got earned=%v percentage=%d passed=%v, want all zero",
			res.EarnedPoints, res.Percentage, res.Passed)
	}
	if len(res.Breakdown) != 2 {
		t.Fatalf("breakdown must cover every question, got %d entries", len(res.Breakdown))
	}
	for _, qr := range res.Breakdown {
		if qr.Correct || qr.PointsAwarded != 0 {
			t.Fatalf("question %s should be scored incorrect", qr.QuestionID)
		}
	}
}

func TestScoreChoiceSetMustMatchExactly(t *testing.T) {
	def := &course.AssessmentDefinition{
		PassingScore: 50,
		Questions: []course.Question{
			{ID: "q1", Type: course.QuestionMCQSingle, AnswerKey: []string{"a", "b"}, Points: 4},
		},
	}
	s := NewScorer()
	cases := []struct {
		name     string
		selected []string
		correct  bool
	}{
		{"exact", []string{"b", "a"}, true},
		{"subset", []string{"a"}, false},
		{"superset", []string{"a", "b", "c"}, false},
		{"disjoint", []string{"c"}, false},
		{"empty", nil, false},
	}
	for _, tc := range cases {
		res := s.Score(def, map[string]Answer{"q1": {Selected: tc.selected}})
		if got := res.Breakdown[0].Correct; got != tc.correct {
			t.Errorf("%s: correct=%v, want %v", tc.name, got, tc.correct)
		}
	}
}

func TestScoreZeroTotalPoints(t *testing.T) {
	def := &course.AssessmentDefinition{
		PassingScore: 0,
		Questions:    []course.Question{{ID: "q1", Type: course.QuestionTrueFalse, AnswerKey: []string{"true"}, Points: 0}},
	}
	res := NewScorer().Score(def, map[string]Answer{"q1": {Literal: "true"}})
	if res.Percentage != 0 || res.Passed {
		t.Fatalf("zero-point component must score 0%% and fail, got %d/%v", res.Percentage, res.Passed)
	}
}

func TestScoreDeterministic(t *testing.T) {
	def := twoQuestionDef(70)
	answers := map[string]Answer{
		"q1": {Selected: []string{"b"}},
		"q2": {Literal: "true"},
	}
	s := NewScorer()
	first := s.Score(def, answers)
	for i := 0; i < 5; i++ {
		if got := s.Score(def, answers); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differed: %+v vs %+v", i, got, first)
		}
	}
}
