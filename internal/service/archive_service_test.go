package service

import (
	"context"
	"encoding/json"
	"exam_coach_backend/internal/config"
	"exam_coach_backend/internal/model"
	"exam_coach_backend/internal/util"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveAttemptWritesJSON(t *testing.T) {
	root := t.TempDir()
	store := NewArchiveStore(&config.StorageConfig{Type: util.StorageLocal, LocalPath: root})
	svc := NewArchiveService(store)

	end := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	attempt := &model.ExamAttempt{ExamID: 12, Status: model.AttemptSubmitted, Score: 4, EndTime: &end}
	attempt.ID = "attempt-1"
	answers := []model.AttemptAnswer{{AttemptID: "attempt-1", QuestionID: 3, Sequence: 1, SelectedLabel: "B", IsCorrect: true}}

	require.NoError(t, svc.ArchiveAttempt(context.Background(), attempt, answers))

	data, err := os.ReadFile(filepath.Join(root, "attempts", "12", "attempt-1.json"))
	require.NoError(t, err)
	var doc ArchivedAttempt
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 4.0, doc.Attempt.Score)
	require.Len(t, doc.Answers, 1)
	assert.Equal(t, "B", doc.Answers[0].SelectedLabel)
}

func TestArchiveRejectsLiveAttempt(t *testing.T) {
	svc := NewArchiveService(&LocalArchiveStore{Root: t.TempDir()})
	err := svc.ArchiveAttempt(context.Background(), &model.ExamAttempt{Status: model.AttemptInProgress}, nil)
	assert.ErrorIs(t, err, util.ErrAttemptNotFinished)
}

func TestArchiveKey(t *testing.T) {
	assert.Equal(t, "attempts/7/abc.json", ArchiveKey(7, "abc"))
}
