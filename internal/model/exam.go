package model

import (
	"time"

	"gorm.io/datatypes"
)

type VisibilityScope string

const (
	ScopePublic  VisibilityScope = "public"
	ScopeClass   VisibilityScope = "class"
	ScopeBatch   VisibilityScope = "batch"
	ScopeSubject VisibilityScope = "subject"
)

// Exam 考试配置，作答期间只读
// swagger:model Exam
type Exam struct {
	BaseModel

	Title                  string          `gorm:"size:255;not null" json:"title"`
	TotalQuestions         int             `gorm:"not null" json:"totalQuestions"`
	QuestionTypeCounts     datatypes.JSON  `gorm:"type:json" json:"questionTypeCounts"` // {"mcq": 40, "true_false": 10}
	DurationMinutes        int             `gorm:"default:0" json:"durationMinutes"`    // 0 表示不限时
	NegativeMarking        bool            `gorm:"default:false" json:"negativeMarking"`
	NegativeMarkPerWrong   float64         `gorm:"default:0" json:"negativeMarkPerWrong"`
	ShuffleOptions         bool            `gorm:"default:false" json:"shuffleOptions"`
	RandomizeQuestionOrder bool            `gorm:"default:false" json:"randomizeQuestionOrder"`
	StartDate              *time.Time      `json:"startDate,omitempty"`
	EndDate                *time.Time      `json:"endDate,omitempty"`
	Visibility             VisibilityScope `gorm:"size:20;default:'public'" json:"visibility"`
	ScopeRefID             uint            `gorm:"index" json:"scopeRefId"` // class/batch/subject 对应的ID
	AllowPractice          bool            `gorm:"default:false" json:"allowPractice"`
}

func (Exam) TableName() string {
	return "exams"
}

// Duration 考试时长，未设置时返回 0
func (e *Exam) Duration() time.Duration {
	if e.DurationMinutes <= 0 {
		return 0
	}
	return time.Duration(e.DurationMinutes) * time.Minute
}
