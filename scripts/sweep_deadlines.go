// 手动执行一次超时作答清理
//
// 主应用后台按 exam.sweep_interval_seconds 定时执行。
// 此脚本用于停机维护后补跑，或排查未被自动交卷的作答。
//
// 用法: go run scripts/sweep_deadlines.go

package main

import (
	"context"
	"exam_coach_backend/internal/config"
	"exam_coach_backend/internal/repository"
	"exam_coach_backend/internal/service"
	"exam_coach_backend/pkg/database"
	"exam_coach_backend/pkg/logger"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

func main() {
	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	logger.InitLogger(cfg)

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	engine := service.NewAttemptService(
		repository.NewAttemptRepository(db),
		repository.NewExamRepository(db, nil, 0),
		service.NewPolicySet(cfg.Exam),
		nil,
		cfg.Exam.TimeGrace(),
	)
	sweeper := service.NewDeadlineSweeper(engine, cfg.Exam.SweepInterval(), cfg.Exam.AbandonAfter())

	log.Println("手动执行超时作答清理...")
	report, err := sweeper.SweepOnce(context.Background())
	if err != nil {
		log.Fatalf("清理失败: %v", err)
	}

	out := yaml.NewEncoder(os.Stdout)
	defer out.Close()
	if err := out.Encode(report); err != nil {
		log.Fatalf("输出结果失败: %v", err)
	}
	log.Println("完成！")
}
