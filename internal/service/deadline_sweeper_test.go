package service

import (
	"context"
	"exam_coach_backend/internal/model"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepOnceFinalizesExpiredAndIdle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	timed := &model.Exam{DurationMinutes: 10, AllowPractice: true}
	f.seedExam(t, timed, 2)
	untimed := &model.Exam{AllowPractice: true}
	f.seedExam(t, untimed, 2)

	expiring := f.start(t, timed.ID, studentTaker(60))
	idlePractice := f.start(t, untimed.ID, PracticeTaker("session-idle-1"))
	idleStudent := f.start(t, untimed.ID, studentTaker(61))

	sweeper := NewDeadlineSweeper(f.engine, time.Minute, 2*time.Hour)

	f.clock.Advance(5 * time.Minute)
	report, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, report)

	f.clock.Advance(3 * time.Hour)
	report, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TimedOut)
	assert.Equal(t, 1, report.Abandoned)
	assert.Equal(t, 0, report.Failed)

	assert.Equal(t, model.SubmissionTimeUp, f.reload(t, expiring.ID).SubmissionType)
	assert.Equal(t, model.AttemptAbandoned, f.reload(t, idlePractice.ID).Status)
	// 没有时长限制的正式考试不会被清理
	assert.Equal(t, model.AttemptInProgress, f.reload(t, idleStudent.ID).Status)

	report, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, report)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	sweeper := NewDeadlineSweeper(f.engine, 10*time.Millisecond, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
