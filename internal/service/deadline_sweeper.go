package service

import (
	"context"
	"exam_coach_backend/internal/model"
	"exam_coach_backend/pkg/logger"
	"time"

	"go.uber.org/zap"
)

const sweepBatchSize = 200

// DeadlineSweeper 定时处理客户端没有上报的超时作答和长时间闲置的练习
type DeadlineSweeper struct {
	Engine       *AttemptService
	Interval     time.Duration
	AbandonAfter time.Duration
}

func NewDeadlineSweeper(engine *AttemptService, interval, abandonAfter time.Duration) *DeadlineSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &DeadlineSweeper{Engine: engine, Interval: interval, AbandonAfter: abandonAfter}
}

type SweepReport struct {
	TimedOut  int `json:"timedOut" yaml:"timed_out"`
	Abandoned int `json:"abandoned" yaml:"abandoned"`
	Failed    int `json:"failed" yaml:"failed"`
}

// SweepOnce 单条失败不影响其余记录
func (s *DeadlineSweeper) SweepOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	engine := s.Engine
	now := engine.now()

	expired, err := engine.Attempts.ListExpiredLive(ctx, now.Add(-engine.TimeGrace), sweepBatchSize)
	if err != nil {
		return report, err
	}
	for _, a := range expired {
		done, err := engine.ForceTimeUp(ctx, a.ID)
		if err != nil {
			report.Failed++
			logger.Log.Warn("Sweeper time-up failed", zap.String("attempt_id", a.ID), zap.Error(err))
			continue
		}
		if done {
			report.TimedOut++
		}
	}

	if s.AbandonAfter > 0 {
		idleBefore := now.Add(-s.AbandonAfter)
		idle, err := engine.Attempts.ListIdleLive(ctx, model.FlowPractice, idleBefore, sweepBatchSize)
		if err != nil {
			return report, err
		}
		for _, a := range idle {
			done, err := engine.ForceAbandon(ctx, a.ID, idleBefore)
			if err != nil {
				report.Failed++
				logger.Log.Warn("Sweeper abandon failed", zap.String("attempt_id", a.ID), zap.Error(err))
				continue
			}
			if done {
				report.Abandoned++
			}
		}
	}

	if report.TimedOut > 0 || report.Abandoned > 0 || report.Failed > 0 {
		logger.Log.Info("Deadline sweep finished",
			zap.Int("timed_out", report.TimedOut),
			zap.Int("abandoned", report.Abandoned),
			zap.Int("failed", report.Failed))
	}
	return report, nil
}

// Run 阻塞直到 ctx 取消
func (s *DeadlineSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				logger.Log.Error("deadline sweep error", zap.Error(err))
			}
		}
	}
}
