package service

import (
	"context"
	"exam_coach_backend/internal/model"
	"exam_coach_backend/internal/util"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 正式考试默认零容忍：第一次切屏即自动交卷
func TestFirstTabSwitchAutoSubmits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := &model.Exam{}
	questions := f.seedExam(t, exam, 3)
	taker := studentTaker(30)
	attempt := f.start(t, exam.ID, taker)
	f.answer(t, attempt.ID, taker, questions[0].ID, "B")

	first, err := f.integrity.RecordVisibilityLoss(ctx, attempt.ID, taker)
	require.NoError(t, err)
	assert.True(t, first.AutoSubmitted)
	assert.False(t, first.Informational)
	assert.Equal(t, model.AttemptAutoSubmitted, first.Attempt.Status)
	assert.Equal(t, model.SubmissionTabSwitch, first.Attempt.SubmissionType)

	second, err := f.integrity.RecordVisibilityLoss(ctx, attempt.ID, taker)
	require.NoError(t, err)
	assert.True(t, second.Informational)
	assert.False(t, second.AutoSubmitted)
	assert.Equal(t, first.Attempt.Status, second.Attempt.Status)
	assert.Equal(t, first.Attempt.Score, second.Attempt.Score)
	assert.Equal(t, 1, second.Attempt.TabSwitches)

	violations, err := f.attempts.ListViolations(ctx, attempt.ID)
	require.NoError(t, err)
	require.Len(t, violations, 2)
	assert.Equal(t, model.ViolationWarning, violations[0].Kind)
	assert.Equal(t, model.ViolationInformational, violations[1].Kind)
	assert.Len(t, f.archiver.attempts, 1)
}

func TestViolationThresholdFromConfig(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg := defaultExamConfig()
	cfg.ViolationThreshold = 3
	f.policies.Reload(cfg)

	exam := &model.Exam{}
	f.seedExam(t, exam, 2)
	taker := studentTaker(31)
	attempt := f.start(t, exam.ID, taker)

	for i := 1; i <= 2; i++ {
		res, err := f.integrity.RecordVisibilityLoss(ctx, attempt.ID, taker)
		require.NoError(t, err)
		assert.False(t, res.AutoSubmitted)
		assert.Equal(t, i, res.Attempt.TabSwitches)
		assert.Equal(t, model.AttemptInProgress, res.Attempt.Status)
	}

	res, err := f.integrity.RecordVisibilityLoss(ctx, attempt.ID, taker)
	require.NoError(t, err)
	assert.True(t, res.AutoSubmitted)
	assert.Equal(t, 3, res.Attempt.TabSwitches)
}

func TestPracticeTabSwitchOnlyRecorded(t *testing.T) {
	f := newFixture(t)
	exam := &model.Exam{AllowPractice: true}
	f.seedExam(t, exam, 2)
	taker := PracticeTaker("session-tab-1")
	attempt := f.start(t, exam.ID, taker)

	for i := 0; i < 4; i++ {
		res, err := f.integrity.RecordVisibilityLoss(context.Background(), attempt.ID, taker)
		require.NoError(t, err)
		assert.False(t, res.AutoSubmitted)
	}
	stored := f.reload(t, attempt.ID)
	assert.Equal(t, 4, stored.TabSwitches)
	assert.Equal(t, model.AttemptInProgress, stored.Status)
}

func TestTabSwitchAfterDeadlineSubmitsAsTimeUp(t *testing.T) {
	f := newFixture(t)
	exam := &model.Exam{DurationMinutes: 1}
	f.seedExam(t, exam, 2)
	taker := studentTaker(32)
	attempt := f.start(t, exam.ID, taker)

	f.clock.Advance(5 * time.Minute)
	res, err := f.integrity.RecordVisibilityLoss(context.Background(), attempt.ID, taker)
	require.NoError(t, err)
	assert.True(t, res.Informational)
	assert.Equal(t, model.SubmissionTimeUp, res.Attempt.SubmissionType)
	assert.Equal(t, 0, res.Attempt.TabSwitches)
}

func TestTabSwitchRequiresOwner(t *testing.T) {
	f := newFixture(t)
	exam := &model.Exam{}
	f.seedExam(t, exam, 2)
	attempt := f.start(t, exam.ID, studentTaker(33))

	_, err := f.integrity.RecordVisibilityLoss(context.Background(), attempt.ID, studentTaker(34))
	assert.ErrorIs(t, err, util.ErrNotAttemptOwner)
	assert.Equal(t, 0, f.reload(t, attempt.ID).TabSwitches)
}
