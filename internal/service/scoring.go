package service

import (
	"exam_coach_backend/internal/model"
	"exam_coach_backend/internal/util"
)

// MarkingScheme 负分规则
type MarkingScheme struct {
	NegativeMarking bool
	PenaltyPerWrong float64
}

func MarkingSchemeFor(exam *model.Exam) MarkingScheme {
	scheme := MarkingScheme{NegativeMarking: exam.NegativeMarking, PenaltyPerWrong: exam.NegativeMarkPerWrong}
	if scheme.PenaltyPerWrong < 0 {
		scheme.PenaltyPerWrong = 0
	}
	return scheme
}

// Tally 作答计数快照。满足：
// AnsweredCount + SkippedQuestions == TotalQuestions，CorrectAnswers + WrongAnswers == AnsweredCount
type Tally struct {
	TotalQuestions   int
	AnsweredCount    int
	CorrectAnswers   int
	WrongAnswers     int
	SkippedQuestions int
	CurrentStreak    int
	BestStreak       int
	Score            float64
}

func NewTally(total int) Tally {
	return Tally{TotalQuestions: total, SkippedQuestions: total}
}

func TallyOf(a *model.ExamAttempt) Tally {
	return Tally{
		TotalQuestions:   a.TotalQuestions,
		AnsweredCount:    a.AnsweredCount,
		CorrectAnswers:   a.CorrectAnswers,
		WrongAnswers:     a.WrongAnswers,
		SkippedQuestions: a.SkippedQuestions,
		CurrentStreak:    a.CurrentStreak,
		BestStreak:       a.BestStreak,
		Score:            a.Score,
	}
}

func (t Tally) ApplyTo(a *model.ExamAttempt) {
	a.TotalQuestions = t.TotalQuestions
	a.AnsweredCount = t.AnsweredCount
	a.CorrectAnswers = t.CorrectAnswers
	a.WrongAnswers = t.WrongAnswers
	a.SkippedQuestions = t.SkippedQuestions
	a.CurrentStreak = t.CurrentStreak
	a.BestStreak = t.BestStreak
	a.Score = t.Score
}

// ComputeScore 每题 1 分；负分模式下 max(0, 对 - 错*罚分)。每次从计数重新计算，不做增量
func ComputeScore(correct, wrong int, scheme MarkingScheme) float64 {
	if !scheme.NegativeMarking {
		return float64(correct)
	}
	score := float64(correct) - float64(wrong)*scheme.PenaltyPerWrong
	if score < 0 {
		return 0
	}
	return util.RoundScore(score)
}

// ApplyAnswer 计入一道新题
func ApplyAnswer(t Tally, scheme MarkingScheme, isCorrect bool) Tally {
	if isCorrect {
		t.CorrectAnswers++
		t.CurrentStreak++
		if t.CurrentStreak > t.BestStreak {
			t.BestStreak = t.CurrentStreak
		}
	} else {
		t.WrongAnswers++
		t.CurrentStreak = 0
	}
	t.AnsweredCount++
	t.SkippedQuestions = t.TotalQuestions - t.AnsweredCount
	t.Score = ComputeScore(t.CorrectAnswers, t.WrongAnswers, scheme)
	return t
}

// ReviseAnswer 改答：outcomes 为按顺序号排列的答题结果，替换第 index 项后整体重放，
// 连对次数按原作答顺序计算，反复改同一题不会累加
func ReviseAnswer(total int, scheme MarkingScheme, outcomes []bool, index int, isCorrect bool) Tally {
	replay := make([]bool, len(outcomes))
	copy(replay, outcomes)
	if index >= 0 && index < len(replay) {
		replay[index] = isCorrect
	}
	return RecomputeTally(total, replay, scheme)
}

// RecomputeTally 按答题日志顺序重放，用于核对存储的计数
func RecomputeTally(total int, outcomes []bool, scheme MarkingScheme) Tally {
	t := NewTally(total)
	for _, correct := range outcomes {
		t = ApplyAnswer(t, scheme, correct)
	}
	return t
}
