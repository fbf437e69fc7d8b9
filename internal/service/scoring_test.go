package service

import (
	"exam_coach_backend/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyAnswerStreaks(t *testing.T) {
	scheme := MarkingScheme{}
	tally := NewTally(6)
	for _, correct := range []bool{true, true, false, true, true, true} {
		tally = ApplyAnswer(tally, scheme, correct)
		assert.Equal(t, tally.TotalQuestions, tally.AnsweredCount+tally.SkippedQuestions)
		assert.Equal(t, tally.AnsweredCount, tally.CorrectAnswers+tally.WrongAnswers)
	}
	assert.Equal(t, 3, tally.CurrentStreak)
	assert.Equal(t, 3, tally.BestStreak)
	assert.Equal(t, 5.0, tally.Score)
	assert.Equal(t, 0, tally.SkippedQuestions)
}

func TestComputeScore(t *testing.T) {
	cases := []struct {
		name    string
		correct int
		wrong   int
		scheme  MarkingScheme
		want    float64
	}{
		{"no negative marking", 7, 2, MarkingScheme{}, 7},
		{"quarter penalty", 2, 3, MarkingScheme{NegativeMarking: true, PenaltyPerWrong: 0.25}, 1.25},
		{"clamped at zero", 1, 5, MarkingScheme{NegativeMarking: true, PenaltyPerWrong: 0.5}, 0},
		{"third penalty rounds", 1, 1, MarkingScheme{NegativeMarking: true, PenaltyPerWrong: 1.0 / 3}, 0.67},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ComputeScore(tc.correct, tc.wrong, tc.scheme))
		})
	}
}

func TestReviseAnswerMatchesReplay(t *testing.T) {
	scheme := MarkingScheme{NegativeMarking: true, PenaltyPerWrong: 0.25}
	revised := ReviseAnswer(4, scheme, []bool{true, false, false}, 2, true)
	replayed := RecomputeTally(4, []bool{true, false, true}, scheme)

	assert.Equal(t, replayed, revised)
	assert.Equal(t, 3, revised.AnsweredCount)
	assert.Equal(t, 1, revised.SkippedQuestions)
}

func TestReviseSameQuestionRepeatedly(t *testing.T) {
	scheme := MarkingScheme{}
	tally := RecomputeTally(3, []bool{true}, scheme)
	for i := 0; i < 4; i++ {
		tally = ReviseAnswer(tally.TotalQuestions, scheme, []bool{true}, 0, true)
	}
	assert.Equal(t, 1, tally.CorrectAnswers)
	assert.Equal(t, 1, tally.CurrentStreak)
	assert.Equal(t, 1, tally.BestStreak)

	// 改错后最佳连对随之回落
	tally = ReviseAnswer(3, scheme, []bool{true, true, false}, 0, false)
	assert.Equal(t, 1, tally.CorrectAnswers)
	assert.Equal(t, 0, tally.CurrentStreak)
	assert.Equal(t, 1, tally.BestStreak)
	assert.LessOrEqual(t, tally.BestStreak, tally.CorrectAnswers)
}

func TestMarkingSchemeIgnoresNegativePenalty(t *testing.T) {
	scheme := MarkingSchemeFor(&model.Exam{NegativeMarking: true, NegativeMarkPerWrong: -1})
	assert.Equal(t, 0.0, scheme.PenaltyPerWrong)
}
