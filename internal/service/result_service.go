package service

import (
	"context"
	"exam_coach_backend/internal/model"
	"exam_coach_backend/internal/util"
	"exam_coach_backend/pkg/logger"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ResultService 终态作答的成绩、逐题回顾与排名
type ResultService struct {
	Engine *AttemptService

	mu     sync.RWMutex
	grades GradeTable
}

func NewResultService(engine *AttemptService, grades GradeTable) *ResultService {
	if len(grades) == 0 {
		grades = DefaultGradeTable()
	}
	return &ResultService{Engine: engine, grades: grades}
}

// SetGradeTable 配置热更新
func (s *ResultService) SetGradeTable(t GradeTable) {
	if len(t) == 0 {
		t = DefaultGradeTable()
	}
	s.mu.Lock()
	s.grades = t
	s.mu.Unlock()
}

func (s *ResultService) gradeTable() GradeTable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grades
}

type QuestionReview struct {
	Position         int               `json:"position"`
	QuestionID       uint              `json:"questionId"`
	QuestionType     string            `json:"questionType"`
	Prompt           string            `json:"prompt"`
	Options          []DeliveredOption `json:"options"`
	CorrectLabel     string            `json:"correctLabel"`
	SelectedLabel    string            `json:"selectedLabel,omitempty"`
	Answered         bool              `json:"answered"`
	IsCorrect        bool              `json:"isCorrect"`
	TimeSpentSeconds int               `json:"timeSpentSeconds"`
	Explanation      string            `json:"explanation,omitempty"`
}

type AttemptResult struct {
	Attempt     *model.ExamAttempt       `json:"attempt"`
	ExamTitle   string                   `json:"examTitle"`
	Percentage  float64                  `json:"percentage"`
	Grade       string                   `json:"grade"`
	Rank        int                      `json:"rank,omitempty"`
	Percentile  float64                  `json:"percentile,omitempty"`
	TotalRanked int                      `json:"totalRanked"`
	Review      []QuestionReview         `json:"review"`
	Violations  []model.AttemptViolation `json:"violations"`
}

type MeritEntry struct {
	Rank            int                  `json:"rank"`
	AttemptID       string               `json:"attemptId"`
	Flow            model.TakerFlow      `json:"flow"`
	StudentID       *uint                `json:"studentId,omitempty"`
	ParticipantID   *string              `json:"participantId,omitempty"`
	Score           float64              `json:"score"`
	Percentage      float64              `json:"percentage"`
	Grade           string               `json:"grade"`
	DurationSeconds int                  `json:"durationSeconds"`
	SubmissionType  model.SubmissionType `json:"submissionType"`
	EndTime         *time.Time           `json:"endTime,omitempty"`
	Percentile      float64              `json:"percentile"`
}

// GetResult 只有作答本人可查看，且作答必须已结束
func (s *ResultService) GetResult(ctx context.Context, attemptID string, taker Taker) (*AttemptResult, error) {
	engine := s.Engine
	attempt, err := engine.loadOwned(ctx, attemptID, taker)
	if err != nil {
		return nil, err
	}
	if engine.expired(attempt, engine.now()) {
		if _, err := engine.ForceTimeUp(ctx, attemptID); err != nil {
			return nil, err
		}
		if attempt, err = engine.Attempts.FindByID(ctx, attemptID); err != nil {
			return nil, err
		}
	}
	if !attempt.Status.IsTerminal() {
		return nil, util.ErrAttemptNotFinished
	}

	exam, set, err := engine.questionSet(ctx, attempt)
	if err != nil {
		return nil, err
	}
	answers, err := engine.Attempts.ListAnswers(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	violations, err := engine.Attempts.ListViolations(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	s.verifyScore(attempt, exam, answers)

	byQuestion := make(map[uint]model.AttemptAnswer, len(answers))
	for _, ans := range answers {
		byQuestion[ans.QuestionID] = ans
	}
	review := make([]QuestionReview, 0, len(set))
	for i, q := range set {
		options := make([]DeliveredOption, len(q.Options))
		for j, text := range q.Options {
			options[j] = DeliveredOption{Label: util.LabelForIndex(j), Text: text}
		}
		item := QuestionReview{
			Position:     i + 1,
			QuestionID:   q.ID,
			QuestionType: q.QuestionType,
			Prompt:       q.Prompt,
			Options:      options,
			CorrectLabel: util.NormalizeOptionLabel(q.CorrectLabel),
			Explanation:  q.Explanation,
		}
		if ans, ok := byQuestion[q.ID]; ok {
			item.Answered = true
			item.SelectedLabel = ans.SelectedLabel
			item.IsCorrect = ans.IsCorrect
			item.TimeSpentSeconds = ans.TimeSpentSeconds
		}
		review = append(review, item)
	}

	percent := util.RoundScore(Percentage(attempt.Score, attempt.TotalQuestions))
	result := &AttemptResult{
		Attempt:    attempt,
		ExamTitle:  exam.Title,
		Percentage: percent,
		Grade:      s.gradeTable().Grade(percent),
		Review:     review,
		Violations: violations,
	}

	policy, err := engine.Policies.For(attempt.Flow)
	if err != nil {
		return nil, err
	}
	if policy.Ranked && attempt.Status != model.AttemptAbandoned {
		entries, err := s.rank(ctx, attempt.ExamID)
		if err != nil {
			return nil, err
		}
		result.TotalRanked = len(entries)
		for _, e := range entries {
			if e.AttemptID == attempt.ID {
				result.Rank = e.Rank
				result.Percentile = e.Percentile
				break
			}
		}
	}
	return result, nil
}

// verifyScore 用答题日志重新计算计数并与存储值核对
func (s *ResultService) verifyScore(attempt *model.ExamAttempt, exam *model.Exam, answers []model.AttemptAnswer) {
	outcomes := make([]bool, 0, len(answers))
	for _, ans := range answers {
		outcomes = append(outcomes, ans.IsCorrect)
	}
	replayed := RecomputeTally(attempt.TotalQuestions, outcomes, MarkingSchemeFor(exam))
	if replayed.Score != attempt.Score ||
		replayed.CorrectAnswers != attempt.CorrectAnswers ||
		replayed.WrongAnswers != attempt.WrongAnswers ||
		replayed.AnsweredCount != attempt.AnsweredCount {
		logger.Log.Warn("Stored tally differs from answers log",
			zap.String("attempt_id", attempt.ID),
			zap.Float64("stored_score", attempt.Score),
			zap.Float64("replayed_score", replayed.Score),
			zap.Int("stored_answered", attempt.AnsweredCount),
			zap.Int("replayed_answered", replayed.AnsweredCount))
	}
}

// MeritList 只排名正式作答（练习除外），按分数降序、用时升序、交卷时间升序
func (s *ResultService) MeritList(ctx context.Context, examID uint) ([]MeritEntry, error) {
	if _, err := s.Engine.Catalog.GetExamConfig(ctx, examID); err != nil {
		return nil, err
	}
	return s.rank(ctx, examID)
}

func (s *ResultService) rank(ctx context.Context, examID uint) ([]MeritEntry, error) {
	attempts, err := s.Engine.Attempts.ListFinishedByExam(ctx, examID, s.Engine.Policies.RankedFlows())
	if err != nil {
		return nil, err
	}
	grades := s.gradeTable()
	n := len(attempts)
	entries := make([]MeritEntry, 0, n)
	for i, a := range attempts {
		rank := i + 1
		if i > 0 && sameStanding(attempts[i-1], a) {
			rank = entries[i-1].Rank
		}
		percent := util.RoundScore(Percentage(a.Score, a.TotalQuestions))
		entries = append(entries, MeritEntry{
			Rank:            rank,
			AttemptID:       a.ID,
			Flow:            a.Flow,
			StudentID:       a.StudentID,
			ParticipantID:   a.ParticipantID,
			Score:           a.Score,
			Percentage:      percent,
			Grade:           grades.Grade(percent),
			DurationSeconds: a.DurationSeconds,
			SubmissionType:  a.SubmissionType,
			EndTime:         a.EndTime,
			Percentile:      util.RoundScore(float64(n-rank) / float64(n) * 100),
		})
	}
	return entries, nil
}

func sameStanding(a, b model.ExamAttempt) bool {
	if a.Score != b.Score || a.DurationSeconds != b.DurationSeconds {
		return false
	}
	if a.EndTime == nil || b.EndTime == nil {
		return a.EndTime == b.EndTime
	}
	return a.EndTime.Equal(*b.EndTime)
}
