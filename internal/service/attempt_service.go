package service

import (
	"context"
	"errors"
	"exam_coach_backend/internal/model"
	"exam_coach_backend/internal/repository"
	"exam_coach_backend/internal/util"
	"exam_coach_backend/pkg/logger"
	"exam_coach_backend/pkg/monitoring"
	"exam_coach_backend/pkg/tracing"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ResultArchiver 终态作答归档，失败只记日志
type ResultArchiver interface {
	ArchiveAttempt(ctx context.Context, attempt *model.ExamAttempt, answers []model.AttemptAnswer) error
}

// AttemptService 作答状态机，三种作答流程共用
type AttemptService struct {
	Attempts  AttemptStore
	Catalog   ExamCatalog
	Policies  *PolicySet
	Archiver  ResultArchiver
	TimeGrace time.Duration
	Now       func() time.Time
}

func NewAttemptService(attempts AttemptStore, catalog ExamCatalog, policies *PolicySet, archiver ResultArchiver, timeGrace time.Duration) *AttemptService {
	return &AttemptService{
		Attempts:  attempts,
		Catalog:   catalog,
		Policies:  policies,
		Archiver:  archiver,
		TimeGrace: timeGrace,
		Now:       time.Now,
	}
}

// AttemptHandle startOrResume 的返回
type AttemptHandle struct {
	Attempt          *model.ExamAttempt `json:"attempt"`
	Resumed          bool               `json:"resumed"`
	RemainingSeconds *int               `json:"remainingSeconds,omitempty"`
}

type AnswerInput struct {
	QuestionID       uint   `json:"questionId" binding:"required"`
	SelectedLabel    string `json:"selectedLabel" binding:"required"`
	TimeSpentSeconds int    `json:"timeSpent"`
}

type AnswerOutcome struct {
	IsCorrect        bool    `json:"isCorrect"`
	RunningScore     float64 `json:"runningScore"`
	Streak           int     `json:"streak"`
	BestStreak       int     `json:"bestStreak"`
	AnsweredCount    int     `json:"answeredCount"`
	SkippedQuestions int     `json:"skippedQuestions"`
	Revised          bool    `json:"revised"`
}

// ParseSubmissionType 客户端只能提交 manual 或 time_up
func ParseSubmissionType(raw string) (model.SubmissionType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(model.SubmissionManual):
		return model.SubmissionManual, nil
	case string(model.SubmissionTimeUp), "timeup":
		return model.SubmissionTimeUp, nil
	}
	return "", util.ErrInvalidSubmissionType
}

func (s *AttemptService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// expired 超过截止时间加宽限仍在进行中
func (s *AttemptService) expired(a *model.ExamAttempt, now time.Time) bool {
	return a.Status == model.AttemptInProgress && a.Deadline != nil && now.After(a.Deadline.Add(s.TimeGrace))
}

func (s *AttemptService) remaining(a *model.ExamAttempt) *int {
	if a.Deadline == nil || a.Status.IsTerminal() {
		return nil
	}
	secs := int(a.Deadline.Sub(s.now()).Seconds())
	if secs < 0 {
		secs = 0
	}
	return &secs
}

// StartOrResume 同一考生同一考试最多一条进行中的作答；已存在时直接返回
func (s *AttemptService) StartOrResume(ctx context.Context, examID uint, taker Taker) (*AttemptHandle, error) {
	ctx, span := tracing.StartAttemptSpan(ctx, "start", "")
	defer span.End()

	policy, err := s.Policies.For(taker.Flow)
	if err != nil {
		return nil, err
	}
	exam, err := s.Catalog.GetExamConfig(ctx, examID)
	if err != nil {
		return nil, err
	}
	if err := policy.CheckAccess(exam, taker); err != nil {
		return nil, err
	}

	live, err := s.Attempts.FindLive(ctx, examID, taker.Key)
	if err != nil {
		return nil, err
	}
	if live != nil {
		resumed, err := s.resume(ctx, live, exam)
		if err != nil {
			return nil, err
		}
		if !resumed.Status.IsTerminal() {
			monitoring.AttemptsStarted.WithLabelValues(string(taker.Flow), "resumed").Inc()
			logger.Log.Info("Attempt resumed",
				zap.String("attempt_id", resumed.ID),
				zap.Uint("exam_id", examID),
				zap.String("flow", string(taker.Flow)))
			return &AttemptHandle{Attempt: resumed, Resumed: true, RemainingSeconds: s.remaining(resumed)}, nil
		}
		// 续答时发现已超时，已按 time_up 交卷
		if policy.SingleAttempt {
			return nil, util.ErrAttemptAlreadyExists
		}
	}

	if policy.SingleAttempt {
		finished, err := s.Attempts.FindFinished(ctx, examID, taker.Key)
		if err != nil {
			return nil, err
		}
		if finished != nil {
			return nil, util.ErrAttemptAlreadyExists
		}
	}

	now := s.now()
	if policy.EnforceWindow {
		if err := checkWindow(exam, now); err != nil {
			return nil, err
		}
	}

	bank, err := s.Catalog.GetQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}
	seed := util.NewShuffleSeed()
	set := selectQuestions(exam, bank, seed)
	if len(set) == 0 {
		return nil, util.ErrExamHasNoQuestions
	}

	attempt := &model.ExamAttempt{
		ExamID:         examID,
		Status:         model.AttemptInProgress,
		ShuffleSeed:    seed,
		StartTime:      &now,
		LastActivityAt: &now,
	}
	taker.applyTo(attempt)
	NewTally(len(set)).ApplyTo(attempt)
	if d := exam.Duration(); d > 0 {
		deadline := now.Add(d)
		attempt.Deadline = &deadline
	}

	stored, created, err := s.Attempts.Create(ctx, attempt)
	if err != nil {
		return nil, err
	}
	outcome := "created"
	if !created {
		outcome = "resumed"
	}
	monitoring.AttemptsStarted.WithLabelValues(string(taker.Flow), outcome).Inc()
	span.SetAttributes(tracing.AttemptIDAttr(stored.ID))
	logger.Log.Info("Attempt started",
		zap.String("attempt_id", stored.ID),
		zap.Uint("exam_id", examID),
		zap.String("flow", string(taker.Flow)),
		zap.Bool("created", created),
		zap.Int("total_questions", stored.TotalQuestions))

	return &AttemptHandle{Attempt: stored, Resumed: !created, RemainingSeconds: s.remaining(stored)}, nil
}

func checkWindow(exam *model.Exam, now time.Time) error {
	if exam.StartDate != nil && now.Before(*exam.StartDate) {
		return util.ErrExamNotYetOpen
	}
	if exam.EndDate != nil && now.After(*exam.EndDate) {
		return util.ErrExamClosed
	}
	return nil
}

// resume 补齐开始时间；已超时则在同一事务内按 time_up 交卷
func (s *AttemptService) resume(ctx context.Context, live *model.ExamAttempt, exam *model.Exam) (*model.ExamAttempt, error) {
	var finalized bool
	updated, err := s.Attempts.UpdateAtomically(ctx, live.ID, func(_ *repository.AttemptTx, a *model.ExamAttempt) error {
		finalized = false
		if a.Status.IsTerminal() {
			return repository.ErrNoChange
		}
		now := s.now()
		if s.expired(a, now) {
			finalize(a, model.SubmissionTimeUp, now)
			finalized = true
			return nil
		}

		changed := false
		if a.StartTime == nil {
			a.StartTime = &now
			if d := exam.Duration(); d > 0 {
				deadline := now.Add(d)
				a.Deadline = &deadline
			}
			changed = true
		}
		if a.Status == model.AttemptNotStarted {
			a.Status = model.AttemptInProgress
			changed = true
		}
		if !changed {
			return repository.ErrNoChange
		}
		a.LastActivityAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if finalized {
		s.afterFinalize(ctx, updated)
	}
	return updated, nil
}

// loadOwned 读取作答并校验归属
func (s *AttemptService) loadOwned(ctx context.Context, attemptID string, taker Taker) (*model.ExamAttempt, error) {
	attempt, err := s.Attempts.FindByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if !taker.Owns(attempt) {
		return nil, util.ErrNotAttemptOwner
	}
	return attempt, nil
}

// questionSet 按作答种子还原本次的题目集合
func (s *AttemptService) questionSet(ctx context.Context, attempt *model.ExamAttempt) (*model.Exam, []model.Question, error) {
	exam, err := s.Catalog.GetExamConfig(ctx, attempt.ExamID)
	if err != nil {
		return nil, nil, err
	}
	bank, err := s.Catalog.GetQuestions(ctx, attempt.ExamID)
	if err != nil {
		return nil, nil, err
	}
	return exam, selectQuestions(exam, bank, attempt.ShuffleSeed), nil
}

// SubmitAnswer 计分与答题日志追加在同一事务内完成
func (s *AttemptService) SubmitAnswer(ctx context.Context, attemptID string, taker Taker, in AnswerInput) (*AnswerOutcome, error) {
	ctx, span := tracing.StartAttemptSpan(ctx, "answer", attemptID)
	defer span.End()

	if in.TimeSpentSeconds < 0 {
		return nil, util.ErrInvalidTimeSpent
	}
	selected := util.NormalizeOptionLabel(in.SelectedLabel)
	if !util.IsCanonicalLabel(selected) {
		return nil, util.ErrInvalidOptionLabel
	}

	attempt, err := s.loadOwned(ctx, attemptID, taker)
	if err != nil {
		return nil, err
	}
	policy, err := s.Policies.For(attempt.Flow)
	if err != nil {
		return nil, err
	}
	exam, set, err := s.questionSet(ctx, attempt)
	if err != nil {
		return nil, err
	}
	question, ok := findQuestion(set, in.QuestionID)
	if !ok {
		return nil, util.ErrQuestionNotFound
	}
	if idx, _ := util.IndexForLabel(selected); idx >= len(question.Options) {
		return nil, util.ErrInvalidOptionLabel
	}

	isCorrect := util.LabelsEqual(selected, question.CorrectLabel)
	scheme := MarkingSchemeFor(exam)

	var (
		outcome  AnswerOutcome
		timedOut bool
	)
	updated, err := s.Attempts.UpdateAtomically(ctx, attemptID, func(tx *repository.AttemptTx, a *model.ExamAttempt) error {
		outcome = AnswerOutcome{IsCorrect: isCorrect}
		timedOut = false

		if a.Status != model.AttemptInProgress {
			return util.ErrAttemptNotInProgress
		}
		now := s.now()
		if s.expired(a, now) {
			finalize(a, model.SubmissionTimeUp, now)
			timedOut = true
			return nil
		}

		existing, err := tx.FindAnswer(question.ID)
		if err != nil {
			return err
		}
		tally := TallyOf(a)
		if existing != nil {
			if !policy.AllowReanswer {
				return util.ErrQuestionAlreadyAnswered
			}
			logged, err := tx.ListAnswers()
			if err != nil {
				return err
			}
			outcomes := make([]bool, len(logged))
			index := -1
			for i, ans := range logged {
				outcomes[i] = ans.IsCorrect
				if ans.ID == existing.ID {
					index = i
				}
			}
			tally = ReviseAnswer(tally.TotalQuestions, scheme, outcomes, index, isCorrect)
			existing.SelectedLabel = selected
			existing.IsCorrect = isCorrect
			existing.AnsweredAt = now
			existing.TimeSpentSeconds = in.TimeSpentSeconds
			existing.Revision++
			if err := tx.ReviseAnswer(existing); err != nil {
				return err
			}
			outcome.Revised = true
		} else {
			tally = ApplyAnswer(tally, scheme, isCorrect)
			err := tx.AppendAnswer(&model.AttemptAnswer{
				QuestionID:       question.ID,
				Sequence:         tally.AnsweredCount,
				SelectedLabel:    selected,
				IsCorrect:        isCorrect,
				AnsweredAt:       now,
				TimeSpentSeconds: in.TimeSpentSeconds,
			})
			if err != nil {
				return err
			}
		}

		tally.ApplyTo(a)
		a.LastActivityAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if timedOut {
		s.afterFinalize(ctx, updated)
		return nil, util.ErrAttemptTimeUp
	}

	monitoring.AnswersRecorded.WithLabelValues(string(updated.Flow), strconv.FormatBool(isCorrect), strconv.FormatBool(outcome.Revised)).Inc()
	logger.Log.Debug("Answer recorded",
		zap.String("attempt_id", updated.ID),
		zap.Uint("exam_id", updated.ExamID),
		zap.String("flow", string(updated.Flow)),
		zap.Uint("question_id", question.ID),
		zap.Bool("correct", isCorrect),
		zap.Bool("revised", outcome.Revised))

	outcome.RunningScore = updated.Score
	outcome.Streak = updated.CurrentStreak
	outcome.BestStreak = updated.BestStreak
	outcome.AnsweredCount = updated.AnsweredCount
	outcome.SkippedQuestions = updated.SkippedQuestions
	return &outcome, nil
}

// Submit 手动交卷或客户端计时到点交卷。终态作答重复提交返回 BadRequest
func (s *AttemptService) Submit(ctx context.Context, attemptID string, taker Taker, submission model.SubmissionType) (*model.ExamAttempt, error) {
	ctx, span := tracing.StartAttemptSpan(ctx, "submit", attemptID)
	defer span.End()

	if submission != model.SubmissionManual && submission != model.SubmissionTimeUp {
		return nil, util.ErrInvalidSubmissionType
	}
	if _, err := s.loadOwned(ctx, attemptID, taker); err != nil {
		return nil, err
	}

	updated, err := s.Attempts.UpdateAtomically(ctx, attemptID, func(_ *repository.AttemptTx, a *model.ExamAttempt) error {
		if a.Status.IsTerminal() {
			return util.ErrAttemptNotInProgress
		}
		now := s.now()
		effective := submission
		if effective == model.SubmissionManual && s.expired(a, now) {
			effective = model.SubmissionTimeUp
		}
		finalize(a, effective, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterFinalize(ctx, updated)
	return updated, nil
}

// Abandon 仅练习模式可放弃
func (s *AttemptService) Abandon(ctx context.Context, attemptID string, taker Taker) (*model.ExamAttempt, error) {
	attempt, err := s.loadOwned(ctx, attemptID, taker)
	if err != nil {
		return nil, err
	}
	policy, err := s.Policies.For(attempt.Flow)
	if err != nil {
		return nil, err
	}
	if !policy.AllowAbandon {
		return nil, util.ErrAbandonNotAllowed
	}

	updated, err := s.Attempts.UpdateAtomically(ctx, attemptID, func(_ *repository.AttemptTx, a *model.ExamAttempt) error {
		if a.Status.IsTerminal() {
			return util.ErrAttemptNotInProgress
		}
		finalize(a, model.SubmissionAbandoned, s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterFinalize(ctx, updated)
	return updated, nil
}

// GetAttemptQuestions 下发题目（不含答案），只在作答进行中可用
func (s *AttemptService) GetAttemptQuestions(ctx context.Context, attemptID string, taker Taker) ([]DeliveredQuestion, error) {
	attempt, err := s.loadOwned(ctx, attemptID, taker)
	if err != nil {
		return nil, err
	}
	if s.expired(attempt, s.now()) {
		if _, err := s.ForceTimeUp(ctx, attemptID); err != nil {
			return nil, err
		}
		return nil, util.ErrAttemptTimeUp
	}
	if attempt.Status != model.AttemptInProgress {
		return nil, util.ErrAttemptNotInProgress
	}

	exam, set, err := s.questionSet(ctx, attempt)
	if err != nil {
		return nil, err
	}
	answers, err := s.Attempts.ListAnswers(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	selected := make(map[uint]string, len(answers))
	for _, ans := range answers {
		selected[ans.QuestionID] = ans.SelectedLabel
	}

	delivered := make([]DeliveredQuestion, 0, len(set))
	for i, q := range set {
		label, answered := selected[q.ID]
		delivered = append(delivered, DeliveredQuestion{
			ID:            q.ID,
			Position:      i + 1,
			QuestionType:  q.QuestionType,
			Prompt:        q.Prompt,
			Context:       q.Context,
			MediaURL:      q.MediaURL,
			Options:       deliverOptions(exam, q, attempt.ShuffleSeed),
			Answered:      answered,
			SelectedLabel: label,
		})
	}
	return delivered, nil
}

// ForceTimeUp 服务端兜底：超时的进行中作答按 time_up 交卷。未超时或已终态时返回 false
func (s *AttemptService) ForceTimeUp(ctx context.Context, attemptID string) (bool, error) {
	return s.forceFinalize(ctx, attemptID, model.SubmissionTimeUp, s.expired)
}

// ForceAbandon 长时间无活动的练习作答标记为放弃
func (s *AttemptService) ForceAbandon(ctx context.Context, attemptID string, idleBefore time.Time) (bool, error) {
	return s.forceFinalize(ctx, attemptID, model.SubmissionAbandoned, func(a *model.ExamAttempt, _ time.Time) bool {
		last := a.LastActivityAt
		if last == nil {
			last = a.StartTime
		}
		return a.Status == model.AttemptInProgress && last != nil && last.Before(idleBefore)
	})
}

func (s *AttemptService) forceFinalize(ctx context.Context, attemptID string, submission model.SubmissionType, eligible func(*model.ExamAttempt, time.Time) bool) (bool, error) {
	ctx, span := tracing.StartAttemptSpan(ctx, "force_"+string(submission), attemptID)
	defer span.End()

	var finalized bool
	updated, err := s.Attempts.UpdateAtomically(ctx, attemptID, func(_ *repository.AttemptTx, a *model.ExamAttempt) error {
		finalized = false
		now := s.now()
		if a.Status.IsTerminal() || !eligible(a, now) {
			return repository.ErrNoChange
		}
		finalize(a, submission, now)
		finalized = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if finalized {
		s.afterFinalize(ctx, updated)
	}
	return finalized, nil
}

// finalize 进入终态，分数冻结为最后一次计算的值
func finalize(a *model.ExamAttempt, submission model.SubmissionType, now time.Time) {
	end := now
	a.EndTime = &end
	a.SubmissionType = submission

	switch submission {
	case model.SubmissionManual:
		a.Status = model.AttemptSubmitted
	case model.SubmissionAbandoned:
		a.Status = model.AttemptAbandoned
	default:
		a.Status = model.AttemptAutoSubmitted
	}

	if a.StartTime != nil {
		stop := now
		// 超时交卷的用时不超过考试时长
		if submission == model.SubmissionTimeUp && a.Deadline != nil && stop.After(*a.Deadline) {
			stop = *a.Deadline
		}
		secs := int(stop.Sub(*a.StartTime).Seconds())
		if secs < 0 {
			secs = 0
		}
		a.DurationSeconds = secs
	}
}

// afterFinalize 终态后的指标、日志与归档，不影响状态转换结果
func (s *AttemptService) afterFinalize(ctx context.Context, a *model.ExamAttempt) {
	monitoring.AttemptsFinalized.WithLabelValues(string(a.Flow), string(a.Status), string(a.SubmissionType)).Inc()
	logger.Log.Info("Attempt finalized",
		zap.String("attempt_id", a.ID),
		zap.Uint("exam_id", a.ExamID),
		zap.String("flow", string(a.Flow)),
		zap.String("status", string(a.Status)),
		zap.String("submission_type", string(a.SubmissionType)),
		zap.Float64("score", a.Score),
		zap.Int("duration_seconds", a.DurationSeconds))

	if s.Archiver == nil || a.Status == model.AttemptAbandoned {
		return
	}
	answers, err := s.Attempts.ListAnswers(ctx, a.ID)
	if err == nil {
		err = s.Archiver.ArchiveAttempt(ctx, a, answers)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Log.Warn("作答归档失败", zap.String("attempt_id", a.ID), zap.Error(err))
	}
}
