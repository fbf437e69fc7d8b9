package service

import (
	"context"
	"exam_coach_backend/internal/model"
	"exam_coach_backend/internal/repository"
	"time"
)

// AttemptStore 作答持久化。UpdateAtomically 与其中的答题日志追加必须同时生效或同时失败
type AttemptStore interface {
	FindByID(ctx context.Context, id string) (*model.ExamAttempt, error)
	FindLive(ctx context.Context, examID uint, takerKey string) (*model.ExamAttempt, error)
	FindFinished(ctx context.Context, examID uint, takerKey string) (*model.ExamAttempt, error)
	Create(ctx context.Context, attempt *model.ExamAttempt) (*model.ExamAttempt, bool, error)
	UpdateAtomically(ctx context.Context, id string, fn repository.AttemptMutation) (*model.ExamAttempt, error)
	ListAnswers(ctx context.Context, attemptID string) ([]model.AttemptAnswer, error)
	ListViolations(ctx context.Context, attemptID string) ([]model.AttemptViolation, error)
	ListExpiredLive(ctx context.Context, before time.Time, limit int) ([]model.ExamAttempt, error)
	ListIdleLive(ctx context.Context, flow model.TakerFlow, before time.Time, limit int) ([]model.ExamAttempt, error)
	ListFinishedByExam(ctx context.Context, examID uint, flows []model.TakerFlow) ([]model.ExamAttempt, error)
}

// ExamCatalog 考试配置与题目，由后台管理模块维护
type ExamCatalog interface {
	GetExamConfig(ctx context.Context, examID uint) (*model.Exam, error)
	GetQuestions(ctx context.Context, examID uint) ([]model.Question, error)
}

var (
	_ AttemptStore = (*repository.AttemptRepository)(nil)
	_ ExamCatalog  = (*repository.ExamRepository)(nil)
)
