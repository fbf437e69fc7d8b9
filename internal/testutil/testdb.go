// Package testutil 测试用的 sqlite 内存库与考试数据构造
package testutil

import (
	"context"
	"exam_coach_backend/internal/model"
	"exam_coach_backend/internal/repository"
	"exam_coach_backend/pkg/database"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq int64

// NewTestDB 每个测试独立的内存库；单连接，保证事务串行
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, atomic.AddInt64(&dbSeq, 1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// SeedExam 创建考试及 n 道四选一题目，第 i 题正确答案为 correct(i)
func SeedExam(t *testing.T, repo *repository.ExamRepository, exam *model.Exam, n int, correct func(i int) string) []model.Question {
	t.Helper()
	if exam.Title == "" {
		exam.Title = "Mock Test"
	}
	if exam.Visibility == "" {
		exam.Visibility = model.ScopePublic
	}
	if exam.TotalQuestions == 0 {
		exam.TotalQuestions = n
	}
	questions := make([]model.Question, n)
	for i := range questions {
		questions[i] = model.Question{
			QuestionType: "mcq",
			Prompt:       fmt.Sprintf("Question %d", i+1),
			Options: []string{
				fmt.Sprintf("q%d-option-1", i+1),
				fmt.Sprintf("q%d-option-2", i+1),
				fmt.Sprintf("q%d-option-3", i+1),
				fmt.Sprintf("q%d-option-4", i+1),
			},
			CorrectLabel: correct(i),
			Order:        i + 1,
		}
	}
	require.NoError(t, repo.CreateExam(context.Background(), exam, questions))
	return questions
}
