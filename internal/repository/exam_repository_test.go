package repository_test

import (
	"context"
	"exam_coach_backend/internal/model"
	"exam_coach_backend/internal/repository"
	"exam_coach_backend/internal/testutil"
	"exam_coach_backend/internal/util"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExamRepositoryWithoutCache(t *testing.T) {
	repo := repository.NewExamRepository(testutil.NewTestDB(t), nil, 0)
	ctx := context.Background()

	exam := &model.Exam{Title: "Physics Model Test"}
	seeded := testutil.SeedExam(t, repo, exam, 3, func(i int) string { return util.LabelForIndex(i) })

	got, err := repo.GetExamConfig(ctx, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, "Physics Model Test", got.Title)

	questions, err := repo.GetQuestions(ctx, exam.ID)
	require.NoError(t, err)
	require.Len(t, questions, 3)
	for i, q := range questions {
		assert.Equal(t, seeded[i].ID, q.ID)
		assert.Equal(t, util.LabelForIndex(i), q.CorrectLabel)
		assert.Len(t, q.Options, 4)
	}

	assert.Equal(t, "Question 2", questions[1].Prompt)

	_, err = repo.GetExamConfig(ctx, 9999)
	assert.ErrorIs(t, err, util.ErrExamNotFound)

	// 未配置 Redis 时清理缓存是空操作
	repo.Invalidate(ctx, exam.ID)
}
