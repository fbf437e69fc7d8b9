package repository

import (
	"context"
	"errors"
	"exam_coach_backend/internal/model"

	"gorm.io/gorm"
)

type ParticipantRepository struct {
	DB *gorm.DB
}

func NewParticipantRepository(db *gorm.DB) *ParticipantRepository {
	return &ParticipantRepository{DB: db}
}

// FindByToken 令牌不存在返回 nil, nil
func (r *ParticipantRepository) FindByToken(ctx context.Context, token string) (*model.PublicParticipant, error) {
	var p model.PublicParticipant
	err := r.DB.WithContext(ctx).Where("token = ?", token).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ParticipantRepository) FindByExamAndPhone(ctx context.Context, examID uint, phoneHash string) (*model.PublicParticipant, error) {
	var p model.PublicParticipant
	err := r.DB.WithContext(ctx).Where("exam_id = ? AND phone_hash = ?", examID, phoneHash).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create 同一考试同一手机号已登记时返回已有记录且 created 为 false
func (r *ParticipantRepository) Create(ctx context.Context, p *model.PublicParticipant) (*model.PublicParticipant, bool, error) {
	err := r.DB.WithContext(ctx).Create(p).Error
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, false, err
	}
	existing, findErr := r.FindByExamAndPhone(ctx, p.ExamID, p.PhoneHash)
	if findErr != nil {
		return nil, false, findErr
	}
	if existing == nil {
		return nil, false, err
	}
	return existing, false, nil
}
