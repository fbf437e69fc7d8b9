package repository

import (
	"context"
	"encoding/json"
	"errors"
	"exam_coach_backend/internal/model"
	"exam_coach_backend/internal/util"
	"exam_coach_backend/pkg/logger"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	examCacheKeyPrefix      = "exam:config:"
	questionsCacheKeyPrefix = "exam:questions:"
)

// ExamRepository 考试配置与题目，只读。Redis 可选，未配置时直接查库
type ExamRepository struct {
	DB       *gorm.DB
	Redis    *redis.Client
	CacheTTL time.Duration
}

func NewExamRepository(db *gorm.DB, rdb *redis.Client, cacheTTL time.Duration) *ExamRepository {
	return &ExamRepository{DB: db, Redis: rdb, CacheTTL: cacheTTL}
}

// questionCacheEntry 缓存时需要带上正确答案（对外 JSON 中隐藏）
type questionCacheEntry struct {
	model.Question
	CorrectLabel string `json:"correctLabel"`
}

func (r *ExamRepository) cacheEnabled() bool {
	return r.Redis != nil && r.CacheTTL > 0
}

func (r *ExamRepository) GetExamConfig(ctx context.Context, examID uint) (*model.Exam, error) {
	key := fmt.Sprintf("%s%d", examCacheKeyPrefix, examID)
	if r.cacheEnabled() {
		var cached model.Exam
		if r.readCache(ctx, key, &cached) {
			return &cached, nil
		}
	}

	var exam model.Exam
	if err := r.DB.WithContext(ctx).First(&exam, examID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrExamNotFound
		}
		return nil, err
	}

	if r.cacheEnabled() {
		r.writeCache(ctx, key, &exam)
	}
	return &exam, nil
}

// GetQuestions 按 order、id 排序返回考试的全部题目
func (r *ExamRepository) GetQuestions(ctx context.Context, examID uint) ([]model.Question, error) {
	key := fmt.Sprintf("%s%d", questionsCacheKeyPrefix, examID)
	if r.cacheEnabled() {
		var entries []questionCacheEntry
		if r.readCache(ctx, key, &entries) {
			questions := make([]model.Question, len(entries))
			for i, e := range entries {
				questions[i] = e.Question
				questions[i].CorrectLabel = e.CorrectLabel
			}
			return questions, nil
		}
	}

	var questions []model.Question
	err := r.DB.WithContext(ctx).
		Where("exam_id = ?", examID).
		Order("`order` ASC, id ASC").
		Find(&questions).Error
	if err != nil {
		return nil, err
	}

	if r.cacheEnabled() {
		entries := make([]questionCacheEntry, len(questions))
		for i, q := range questions {
			entries[i] = questionCacheEntry{Question: q, CorrectLabel: q.CorrectLabel}
		}
		r.writeCache(ctx, key, entries)
	}
	return questions, nil
}

// CreateExam 写入考试及题目，供后台导入与种子脚本使用
func (r *ExamRepository) CreateExam(ctx context.Context, exam *model.Exam, questions []model.Question) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(exam).Error; err != nil {
			return err
		}
		if len(questions) == 0 {
			return nil
		}
		for i := range questions {
			questions[i].ExamID = exam.ID
		}
		return tx.Create(&questions).Error
	})
}

// Invalidate 后台修改考试后清理缓存
func (r *ExamRepository) Invalidate(ctx context.Context, examID uint) {
	if r.Redis == nil {
		return
	}
	r.Redis.Del(ctx,
		fmt.Sprintf("%s%d", examCacheKeyPrefix, examID),
		fmt.Sprintf("%s%d", questionsCacheKeyPrefix, examID),
	)
}

func (r *ExamRepository) readCache(ctx context.Context, key string, dst interface{}) bool {
	val, err := r.Redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		logger.Log.Warn("exam cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal([]byte(val), dst); err != nil {
		logger.Log.Warn("exam cache entry corrupted", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (r *ExamRepository) writeCache(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := r.Redis.Set(ctx, key, data, r.CacheTTL).Err(); err != nil {
		logger.Log.Warn("exam cache write failed", zap.String("key", key), zap.Error(err))
	}
}
