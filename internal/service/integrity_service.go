package service

import (
	"context"
	"exam_coach_backend/internal/model"
	"exam_coach_backend/internal/repository"
	"exam_coach_backend/pkg/logger"
	"exam_coach_backend/pkg/monitoring"
	"exam_coach_backend/pkg/tracing"

	"go.uber.org/zap"
)

// IntegrityService 切屏监控。迟到的上报只记录，不报错
type IntegrityService struct {
	Engine *AttemptService
}

func NewIntegrityService(engine *AttemptService) *IntegrityService {
	return &IntegrityService{Engine: engine}
}

// TabSwitchResult 上报后的作答快照
type TabSwitchResult struct {
	Attempt       *model.ExamAttempt `json:"attempt"`
	AutoSubmitted bool               `json:"autoSubmitted"`
	Informational bool               `json:"informational"`
}

func (s *IntegrityService) RecordVisibilityLoss(ctx context.Context, attemptID string, taker Taker) (*TabSwitchResult, error) {
	ctx, span := tracing.StartAttemptSpan(ctx, "tab_switch", attemptID)
	defer span.End()

	engine := s.Engine
	attempt, err := engine.loadOwned(ctx, attemptID, taker)
	if err != nil {
		return nil, err
	}
	policy, err := engine.Policies.For(attempt.Flow)
	if err != nil {
		return nil, err
	}

	var result TabSwitchResult
	var finalized bool
	updated, err := engine.Attempts.UpdateAtomically(ctx, attemptID, func(tx *repository.AttemptTx, a *model.ExamAttempt) error {
		result = TabSwitchResult{}
		finalized = false
		now := engine.now()

		if a.Status.IsTerminal() {
			result.Informational = true
			if err := tx.AppendViolation(&model.AttemptViolation{
				Kind:       model.ViolationInformational,
				Count:      a.TabSwitches,
				OccurredAt: now,
				Note:       "reported after attempt ended",
			}); err != nil {
				return err
			}
			return repository.ErrNoChange
		}

		if engine.expired(a, now) {
			finalize(a, model.SubmissionTimeUp, now)
			finalized = true
			result.Informational = true
			return tx.AppendViolation(&model.AttemptViolation{
				Kind:       model.ViolationInformational,
				Count:      a.TabSwitches,
				OccurredAt: now,
				Note:       "reported after deadline",
			})
		}

		a.TabSwitches++
		a.LastActivityAt = &now
		if err := tx.AppendViolation(&model.AttemptViolation{
			Kind:       model.ViolationWarning,
			Count:      a.TabSwitches,
			OccurredAt: now,
		}); err != nil {
			return err
		}
		if policy.ShouldAutoSubmit(a.TabSwitches) {
			finalize(a, model.SubmissionTabSwitch, now)
			finalized = true
			result.AutoSubmitted = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	kind := model.ViolationWarning
	if result.Informational {
		kind = model.ViolationInformational
	}
	monitoring.TabSwitches.WithLabelValues(string(updated.Flow), string(kind)).Inc()
	logger.Log.Info("Visibility loss recorded",
		zap.String("attempt_id", updated.ID),
		zap.Uint("exam_id", updated.ExamID),
		zap.String("flow", string(updated.Flow)),
		zap.Int("tab_switches", updated.TabSwitches),
		zap.String("kind", string(kind)),
		zap.Bool("auto_submitted", result.AutoSubmitted))

	if finalized {
		engine.afterFinalize(ctx, updated)
	}
	result.Attempt = updated
	return &result, nil
}
