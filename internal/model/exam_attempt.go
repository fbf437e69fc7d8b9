package model

import (
	"strconv"
	"time"
)

type AttemptStatus string

const (
	AttemptNotStarted    AttemptStatus = "not_started"
	AttemptInProgress    AttemptStatus = "in_progress"
	AttemptSubmitted     AttemptStatus = "submitted"
	AttemptAutoSubmitted AttemptStatus = "auto_submitted"
	AttemptAbandoned     AttemptStatus = "abandoned"
)

// IsTerminal 终态后作答记录不可再修改
func (s AttemptStatus) IsTerminal() bool {
	switch s {
	case AttemptSubmitted, AttemptAutoSubmitted, AttemptAbandoned:
		return true
	}
	return false
}

type SubmissionType string

const (
	SubmissionManual    SubmissionType = "manual"
	SubmissionTimeUp    SubmissionType = "time_up"
	SubmissionTabSwitch SubmissionType = "tab_switch"
	SubmissionAbandoned SubmissionType = "abandoned"
)

type TakerFlow string

const (
	FlowStudent  TakerFlow = "student"
	FlowPublic   TakerFlow = "public"
	FlowPractice TakerFlow = "practice"
)

// ExamAttempt 一次作答。计数字段由评分引擎维护，每次变更都在同一事务内完成
// swagger:model ExamAttempt
type ExamAttempt struct {
	UUIDBase

	ExamID        uint      `gorm:"index;type:bigint unsigned;not null" json:"examId"`
	Flow          TakerFlow `gorm:"size:20;not null" json:"flow"`
	TakerKey      string    `gorm:"size:120;index;not null" json:"-"`
	StudentID     *uint     `gorm:"index" json:"studentId,omitempty"`
	ParticipantID *string   `gorm:"size:36;index" json:"participantId,omitempty"`
	SessionID     string    `gorm:"size:64" json:"-"`
	// LiveKey 仅在非终态时有值，唯一索引保证同一考生同一考试最多一条进行中的记录
	LiveKey *string `gorm:"size:191;uniqueIndex" json:"-"`

	Status         AttemptStatus  `gorm:"size:20;index;not null" json:"status"`
	SubmissionType SubmissionType `gorm:"size:20" json:"submissionType,omitempty"`

	TotalQuestions   int     `json:"totalQuestions"`
	AnsweredCount    int     `json:"answeredCount"`
	CorrectAnswers   int     `json:"correctAnswers"`
	WrongAnswers     int     `json:"wrongAnswers"`
	SkippedQuestions int     `json:"skippedQuestions"`
	CurrentStreak    int     `json:"currentStreak"`
	BestStreak       int     `json:"bestStreak"`
	Score            float64 `json:"score"`
	TabSwitches      int     `gorm:"default:0" json:"tabSwitches"`

	ShuffleSeed     int64      `json:"-"`
	StartTime       *time.Time `json:"startTime,omitempty"`
	Deadline        *time.Time `gorm:"index" json:"deadline,omitempty"` // StartTime + 考试时长，不限时为空
	EndTime         *time.Time `json:"endTime,omitempty"`
	DurationSeconds int        `json:"durationSeconds"`
	LastActivityAt  *time.Time `json:"lastActivityAt,omitempty"`

	Version int `gorm:"not null;default:0" json:"-"`
}

func (ExamAttempt) TableName() string {
	return "exam_attempts"
}

// LiveKeyFor 进行中作答的唯一键
func LiveKeyFor(examID uint, takerKey string) string {
	return takerKey + "@" + strconv.FormatUint(uint64(examID), 10)
}

// AttemptAnswer 答题日志，一题一行；(attempt_id, question_id) 唯一
// swagger:model AttemptAnswer
type AttemptAnswer struct {
	BaseModel
	AttemptID        string    `gorm:"size:36;not null;uniqueIndex:idx_attempt_question" json:"attemptId"`
	QuestionID       uint      `gorm:"not null;uniqueIndex:idx_attempt_question" json:"questionId"`
	Sequence         int       `gorm:"not null" json:"sequence"`
	SelectedLabel    string    `gorm:"size:16" json:"selectedLabel"`
	IsCorrect        bool      `json:"isCorrect"`
	AnsweredAt       time.Time `json:"answeredAt"`
	TimeSpentSeconds int       `json:"timeSpentSeconds"`
	Revision         int       `gorm:"default:0" json:"revision"` // 练习模式下改答次数
}

func (AttemptAnswer) TableName() string {
	return "attempt_answers"
}

type ViolationKind string

const (
	ViolationWarning       ViolationKind = "warning"
	ViolationInformational ViolationKind = "informational"
)

// AttemptViolation 切屏/失焦记录
// swagger:model AttemptViolation
type AttemptViolation struct {
	BaseModel
	AttemptID  string        `gorm:"size:36;index;not null" json:"attemptId"`
	Kind       ViolationKind `gorm:"size:20;not null" json:"kind"`
	Count      int           `json:"count"` // 记录时的切屏次数
	OccurredAt time.Time     `json:"occurredAt"`
	Note       string        `gorm:"size:255" json:"note,omitempty"`
}

func (AttemptViolation) TableName() string {
	return "attempt_violations"
}
