package service

import (
	"exam_coach_backend/internal/config"
	"exam_coach_backend/internal/model"
	"exam_coach_backend/internal/util"
	"fmt"
	"strconv"
	"sync"
)

// Taker 作答人身份，由各流程的中间件解析
type Taker struct {
	Flow          model.TakerFlow
	Key           string
	StudentID     uint
	ParticipantID string
	SessionID     string

	claims            *util.Claims
	participantExamID uint
}

func StudentTaker(claims *util.Claims) Taker {
	return Taker{
		Flow:      model.FlowStudent,
		Key:       "student:" + strconv.FormatUint(uint64(claims.UserID), 10),
		StudentID: claims.UserID,
		claims:    claims,
	}
}

func PublicTaker(p *model.PublicParticipant) Taker {
	return Taker{
		Flow:              model.FlowPublic,
		Key:               "public:" + p.ID,
		ParticipantID:     p.ID,
		participantExamID: p.ExamID,
	}
}

func PracticeTaker(sessionID string) Taker {
	return Taker{
		Flow:      model.FlowPractice,
		Key:       "practice:" + sessionID,
		SessionID: sessionID,
	}
}

// Owns 作答是否属于该身份
func (t Taker) Owns(a *model.ExamAttempt) bool {
	return t.Key != "" && a.TakerKey == t.Key && a.Flow == t.Flow
}

func (t Taker) applyTo(a *model.ExamAttempt) {
	a.Flow = t.Flow
	a.TakerKey = t.Key
	a.SessionID = t.SessionID
	if t.StudentID != 0 {
		id := t.StudentID
		a.StudentID = &id
	}
	if t.ParticipantID != "" {
		id := t.ParticipantID
		a.ParticipantID = &id
	}
}

// TakerPolicy 三种作答流程的差异全部收敛在这里，引擎本身只有一份
type TakerPolicy struct {
	Flow          model.TakerFlow
	SingleAttempt bool
	AllowReanswer bool
	EnforceWindow bool
	AllowAbandon  bool
	// Ranked 是否进入排名；练习可无限重做，不参与
	Ranked bool
	// ViolationThreshold 切屏达到该次数即自动交卷，0 表示只记录
	ViolationThreshold int
	canAccess          func(exam *model.Exam, t Taker) error
}

func (p TakerPolicy) CheckAccess(exam *model.Exam, t Taker) error {
	if p.canAccess == nil {
		return nil
	}
	return p.canAccess(exam, t)
}

// ShouldAutoSubmit 切屏次数由 count-1 变为 count 时是否触发自动交卷
func (p TakerPolicy) ShouldAutoSubmit(count int) bool {
	return p.ViolationThreshold > 0 && count >= p.ViolationThreshold
}

func studentAccess(exam *model.Exam, t Taker) error {
	claims := t.claims
	if claims == nil {
		return util.ErrExamNotAccessible
	}
	switch exam.Visibility {
	case model.ScopePublic, "":
		return nil
	case model.ScopeClass:
		if claims.ClassID == exam.ScopeRefID {
			return nil
		}
	case model.ScopeBatch:
		if containsUint(claims.BatchIDs, exam.ScopeRefID) {
			return nil
		}
	case model.ScopeSubject:
		if containsUint(claims.SubjectIDs, exam.ScopeRefID) {
			return nil
		}
	}
	return util.ErrExamNotAccessible
}

func publicAccess(exam *model.Exam, t Taker) error {
	if exam.Visibility != model.ScopePublic {
		return util.ErrExamNotAccessible
	}
	if t.participantExamID != exam.ID {
		return util.ErrParticipantExamInvalid
	}
	return nil
}

func practiceAccess(exam *model.Exam, _ Taker) error {
	if !exam.AllowPractice {
		return util.ErrPracticeNotAllowed
	}
	return nil
}

func containsUint(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// PolicySet 配置热更新时整体替换阈值
type PolicySet struct {
	mu       sync.RWMutex
	policies map[model.TakerFlow]TakerPolicy
}

func NewPolicySet(cfg config.ExamConfig) *PolicySet {
	ps := &PolicySet{}
	ps.Reload(cfg)
	return ps
}

func (ps *PolicySet) Reload(cfg config.ExamConfig) {
	policies := map[model.TakerFlow]TakerPolicy{
		model.FlowStudent: {
			Flow:               model.FlowStudent,
			SingleAttempt:      true,
			EnforceWindow:      true,
			Ranked:             true,
			ViolationThreshold: cfg.ViolationThreshold,
			canAccess:          studentAccess,
		},
		model.FlowPublic: {
			Flow:               model.FlowPublic,
			SingleAttempt:      true,
			EnforceWindow:      true,
			Ranked:             true,
			ViolationThreshold: cfg.ViolationThreshold,
			canAccess:          publicAccess,
		},
		model.FlowPractice: {
			Flow:               model.FlowPractice,
			AllowReanswer:      true,
			AllowAbandon:       true,
			ViolationThreshold: cfg.PracticeViolationThreshold,
			canAccess:          practiceAccess,
		},
	}
	ps.mu.Lock()
	ps.policies = policies
	ps.mu.Unlock()
}

func (ps *PolicySet) For(flow model.TakerFlow) (TakerPolicy, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.policies[flow]
	if !ok {
		return TakerPolicy{}, fmt.Errorf("unknown taker flow %q", flow)
	}
	return p, nil
}

// RankedFlows 参与排名的流程，按固定顺序返回
func (ps *PolicySet) RankedFlows() []model.TakerFlow {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	flows := make([]model.TakerFlow, 0, len(ps.policies))
	for _, flow := range []model.TakerFlow{model.FlowStudent, model.FlowPublic, model.FlowPractice} {
		if p, ok := ps.policies[flow]; ok && p.Ranked {
			flows = append(flows, flow)
		}
	}
	return flows
}
