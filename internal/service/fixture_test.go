package service

import (
	"context"
	"exam_coach_backend/internal/config"
	"exam_coach_backend/internal/model"
	"exam_coach_backend/internal/repository"
	"exam_coach_backend/internal/testutil"
	"exam_coach_backend/internal/util"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingArchiver struct {
	mu       sync.Mutex
	attempts []string
	answers  map[string]int
}

func (r *recordingArchiver) ArchiveAttempt(_ context.Context, attempt *model.ExamAttempt, answers []model.AttemptAnswer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.answers == nil {
		r.answers = map[string]int{}
	}
	r.attempts = append(r.attempts, attempt.ID)
	r.answers[attempt.ID] = len(answers)
	return nil
}

type fixture struct {
	db        *gorm.DB
	exams     *repository.ExamRepository
	attempts  *repository.AttemptRepository
	policies  *PolicySet
	engine    *AttemptService
	integrity *IntegrityService
	results   *ResultService
	archiver  *recordingArchiver
	clock     *fakeClock
}

func defaultExamConfig() config.ExamConfig {
	return config.ExamConfig{
		ViolationThreshold:         1,
		PracticeViolationThreshold: 0,
		TimeGraceSeconds:           30,
		AbandonAfterMinutes:        120,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	cfg := defaultExamConfig()

	f := &fixture{
		db:       db,
		exams:    repository.NewExamRepository(db, nil, 0),
		attempts: repository.NewAttemptRepository(db),
		policies: NewPolicySet(cfg),
		archiver: &recordingArchiver{},
		clock:    newFakeClock(),
	}
	f.engine = NewAttemptService(f.attempts, f.exams, f.policies, f.archiver, cfg.TimeGrace())
	f.engine.Now = f.clock.Now
	f.integrity = NewIntegrityService(f.engine)
	f.results = NewResultService(f.engine, DefaultGradeTable())
	return f
}

// seedExam 题目正确答案都是 B
func (f *fixture) seedExam(t *testing.T, exam *model.Exam, n int) []model.Question {
	t.Helper()
	return testutil.SeedExam(t, f.exams, exam, n, func(int) string { return "B" })
}

func studentTaker(id uint) Taker {
	return StudentTaker(&util.Claims{UserID: id, Role: model.Student})
}

func (f *fixture) start(t *testing.T, examID uint, taker Taker) *model.ExamAttempt {
	t.Helper()
	handle, err := f.engine.StartOrResume(context.Background(), examID, taker)
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	return handle.Attempt
}

func (f *fixture) answer(t *testing.T, attemptID string, taker Taker, questionID uint, label string) *AnswerOutcome {
	t.Helper()
	outcome, err := f.engine.SubmitAnswer(context.Background(), attemptID, taker, AnswerInput{
		QuestionID:       questionID,
		SelectedLabel:    label,
		TimeSpentSeconds: 12,
	})
	if err != nil {
		t.Fatalf("submit answer for question %d: %v", questionID, err)
	}
	return outcome
}

func (f *fixture) reload(t *testing.T, id string) *model.ExamAttempt {
	t.Helper()
	a, err := f.attempts.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload attempt: %v", err)
	}
	return a
}
