package service

import (
	"context"
	"encoding/hex"
	"exam_coach_backend/internal/model"
	"exam_coach_backend/internal/repository"
	"exam_coach_backend/internal/util"
	"exam_coach_backend/pkg/logger"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// ParticipantService 公开考试的匿名考生登记
type ParticipantService struct {
	Participants *repository.ParticipantRepository
	Catalog      ExamCatalog
}

func NewParticipantService(participants *repository.ParticipantRepository, catalog ExamCatalog) *ParticipantService {
	return &ParticipantService{Participants: participants, Catalog: catalog}
}

type RegisterParticipantRequest struct {
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone" binding:"required"`
}

type ParticipantRegistration struct {
	ParticipantID string `json:"participantId"`
	Token         string `json:"token"`
	Name          string `json:"name"`
	ExamID        uint   `json:"examId"`
}

// Register 同一考试同一手机号只能登记一次。令牌只在首次登记时下发，
// 重复登记返回 Conflict，不会把已有令牌交给未认证的调用方
func (s *ParticipantService) Register(ctx context.Context, examID uint, req RegisterParticipantRequest) (*ParticipantRegistration, error) {
	name := strings.TrimSpace(req.Name)
	phone := normalizePhone(req.Phone)
	if name == "" || phone == "" {
		return nil, util.ErrInvalidParticipant
	}

	exam, err := s.Catalog.GetExamConfig(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Visibility != model.ScopePublic {
		return nil, util.ErrExamNotAccessible
	}

	phoneHash := HashPhone(phone)
	existing, err := s.Participants.FindByExamAndPhone(ctx, examID, phoneHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logger.Log.Warn("Duplicate participant registration rejected",
			zap.String("participant_id", existing.ID),
			zap.Uint("exam_id", examID))
		return nil, util.ErrParticipantAlreadyRegistered
	}

	participant, created, err := s.Participants.Create(ctx, &model.PublicParticipant{
		ExamID:    examID,
		Name:      name,
		PhoneHash: phoneHash,
		Token:     strings.ReplaceAll(uuid.New().String(), "-", ""),
	})
	if err != nil {
		return nil, err
	}
	// 并发登记时输给另一请求
	if !created {
		return nil, util.ErrParticipantAlreadyRegistered
	}
	logger.Log.Info("Public participant registered",
		zap.String("participant_id", participant.ID),
		zap.Uint("exam_id", examID))

	return &ParticipantRegistration{
		ParticipantID: participant.ID,
		Token:         participant.Token,
		Name:          participant.Name,
		ExamID:        participant.ExamID,
	}, nil
}

// Resolve 令牌无效时返回 nil, nil
func (s *ParticipantService) Resolve(ctx context.Context, token string) (*model.PublicParticipant, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	return s.Participants.FindByToken(ctx, token)
}

// HashPhone 手机号不落库，只保存 blake2b-256 摘要
func HashPhone(phone string) string {
	sum := blake2b.Sum256([]byte(normalizePhone(phone)))
	return hex.EncodeToString(sum[:])
}

func normalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		if unicode.IsDigit(r) || (i == 0 && r == '+') {
			b.WriteRune(r)
		}
	}
	if b.String() == "+" {
		return ""
	}
	return b.String()
}
