package repository

import (
	"context"
	"errors"
	"exam_coach_backend/internal/model"
	"exam_coach_backend/internal/util"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 乐观锁冲突最多重试次数
const maxAtomicRetries = 3

var errStaleAttempt = errors.New("attempt modified concurrently")

// ErrAttemptContention 重试后仍有并发冲突
var ErrAttemptContention = errors.New("attempt is being modified concurrently, retry later")

// ErrNoChange 由 mutation 返回：提交子记录写入，但不更新作答记录本身
var ErrNoChange = errors.New("attempt unchanged")

// AttemptTx 原子更新期间可用的子记录操作，与作答记录在同一事务内提交
type AttemptTx struct {
	tx        *gorm.DB
	attemptID string
}

// FindAnswer 未作答返回 nil, nil
func (t *AttemptTx) FindAnswer(questionID uint) (*model.AttemptAnswer, error) {
	var answer model.AttemptAnswer
	err := t.tx.Where("attempt_id = ? AND question_id = ?", t.attemptID, questionID).First(&answer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &answer, nil
}

// AppendAnswer 唯一索引 (attempt_id, question_id) 兜底防止重复作答
func (t *AttemptTx) AppendAnswer(answer *model.AttemptAnswer) error {
	answer.AttemptID = t.attemptID
	if err := t.tx.Create(answer).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return util.ErrQuestionAlreadyAnswered
		}
		return err
	}
	return nil
}

// ReviseAnswer 练习模式改答，覆盖原记录并保留其顺序号
func (t *AttemptTx) ReviseAnswer(answer *model.AttemptAnswer) error {
	return t.tx.Save(answer).Error
}

// ListAnswers 事务内按作答顺序读取答题日志
func (t *AttemptTx) ListAnswers() ([]model.AttemptAnswer, error) {
	var answers []model.AttemptAnswer
	err := t.tx.Where("attempt_id = ?", t.attemptID).Order("sequence ASC").Find(&answers).Error
	return answers, err
}

func (t *AttemptTx) AppendViolation(v *model.AttemptViolation) error {
	v.AttemptID = t.attemptID
	return t.tx.Create(v).Error
}

// AttemptMutation 在锁定的作答记录上执行修改；返回错误则整个事务回滚
type AttemptMutation func(tx *AttemptTx, attempt *model.ExamAttempt) error

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) FindByID(ctx context.Context, id string) (*model.ExamAttempt, error) {
	var a model.ExamAttempt
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}
	return &a, nil
}

// FindLive 查找进行中的作答，没有时返回 nil, nil
func (r *AttemptRepository) FindLive(ctx context.Context, examID uint, takerKey string) (*model.ExamAttempt, error) {
	var a model.ExamAttempt
	err := r.DB.WithContext(ctx).
		Where("live_key = ?", model.LiveKeyFor(examID, takerKey)).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindFinished 最近一次终态作答，没有时返回 nil, nil
func (r *AttemptRepository) FindFinished(ctx context.Context, examID uint, takerKey string) (*model.ExamAttempt, error) {
	var a model.ExamAttempt
	err := r.DB.WithContext(ctx).
		Where("exam_id = ? AND taker_key = ? AND status IN ?", examID, takerKey, terminalStatuses()).
		Order("end_time DESC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create 创建作答。并发创建时唯一键冲突，返回已存在的进行中记录，created=false
func (r *AttemptRepository) Create(ctx context.Context, attempt *model.ExamAttempt) (*model.ExamAttempt, bool, error) {
	liveKey := model.LiveKeyFor(attempt.ExamID, attempt.TakerKey)
	attempt.LiveKey = &liveKey

	err := r.DB.WithContext(ctx).Create(attempt).Error
	if err == nil {
		return attempt, true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, false, err
	}

	existing, findErr := r.FindLive(ctx, attempt.ExamID, attempt.TakerKey)
	if findErr != nil {
		return nil, false, findErr
	}
	if existing == nil {
		// 对方刚好在这之间交卷
		return nil, false, util.ErrAttemptAlreadyExists
	}
	return existing, false, nil
}

// UpdateAtomically 读-改-写在一个事务内完成：行锁 + 版本号校验，
// 状态判断必须放在 fn 内部，保证与写入处于同一原子单元
func (r *AttemptRepository) UpdateAtomically(ctx context.Context, id string, fn AttemptMutation) (*model.ExamAttempt, error) {
	var result model.ExamAttempt
	for i := 0; i < maxAtomicRetries; i++ {
		err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var current model.ExamAttempt
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id = ?", id).
				First(&current).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return util.ErrAttemptNotFound
				}
				return err
			}

			version := current.Version
			if err := fn(&AttemptTx{tx: tx, attemptID: current.ID}, &current); err != nil {
				if errors.Is(err, ErrNoChange) {
					result = current
					return nil
				}
				return err
			}

			if current.Status.IsTerminal() {
				current.LiveKey = nil
			}
			current.Version = version + 1

			res := tx.Model(&current).
				Where("version = ?", version).
				Select("*").
				Omit("created_at").
				Updates(&current)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errStaleAttempt
			}
			result = current
			return nil
		})
		if errors.Is(err, errStaleAttempt) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &result, nil
	}
	return nil, ErrAttemptContention
}

func (r *AttemptRepository) ListAnswers(ctx context.Context, attemptID string) ([]model.AttemptAnswer, error) {
	var answers []model.AttemptAnswer
	err := r.DB.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("sequence ASC").
		Find(&answers).Error
	return answers, err
}

func (r *AttemptRepository) ListViolations(ctx context.Context, attemptID string) ([]model.AttemptViolation, error) {
	var violations []model.AttemptViolation
	err := r.DB.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("occurred_at ASC, id ASC").
		Find(&violations).Error
	return violations, err
}

// ListExpiredLive 截止时间早于 before 的进行中作答
func (r *AttemptRepository) ListExpiredLive(ctx context.Context, before time.Time, limit int) ([]model.ExamAttempt, error) {
	var attempts []model.ExamAttempt
	err := r.DB.WithContext(ctx).
		Where("status = ? AND deadline IS NOT NULL AND deadline < ?", model.AttemptInProgress, before).
		Order("deadline ASC").
		Limit(limit).
		Find(&attempts).Error
	return attempts, err
}

// ListIdleLive 指定流程下长时间无活动的进行中作答
func (r *AttemptRepository) ListIdleLive(ctx context.Context, flow model.TakerFlow, before time.Time, limit int) ([]model.ExamAttempt, error) {
	var attempts []model.ExamAttempt
	err := r.DB.WithContext(ctx).
		Where("status = ? AND flow = ? AND COALESCE(last_activity_at, start_time) < ?", model.AttemptInProgress, flow, before).
		Limit(limit).
		Find(&attempts).Error
	return attempts, err
}

// ListFinishedByExam 指定流程下参与排名的终态作答（不含放弃）
func (r *AttemptRepository) ListFinishedByExam(ctx context.Context, examID uint, flows []model.TakerFlow) ([]model.ExamAttempt, error) {
	var attempts []model.ExamAttempt
	if len(flows) == 0 {
		return attempts, nil
	}
	err := r.DB.WithContext(ctx).
		Where("exam_id = ? AND status IN ? AND flow IN ?", examID, []model.AttemptStatus{model.AttemptSubmitted, model.AttemptAutoSubmitted}, flows).
		Order("score DESC, duration_seconds ASC, end_time ASC").
		Find(&attempts).Error
	return attempts, err
}

func (r *AttemptRepository) CountByExamAndTaker(ctx context.Context, examID uint, takerKey string) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.ExamAttempt{}).
		Where("exam_id = ? AND taker_key = ?", examID, takerKey).
		Count(&count).Error
	return count, err
}

func terminalStatuses() []model.AttemptStatus {
	return []model.AttemptStatus{model.AttemptSubmitted, model.AttemptAutoSubmitted, model.AttemptAbandoned}
}
