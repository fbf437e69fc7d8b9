package model

// Question 题目。正确答案按选项字母存储，而非下标
// swagger:model Question
type Question struct {
	BaseModel

	ExamID       uint     `gorm:"index;type:bigint unsigned" json:"examId"`
	SubjectID    uint     `gorm:"index" json:"subjectId"`
	ChapterID    uint     `json:"chapterId"`
	TopicID      uint     `json:"topicId"`
	QuestionType string   `gorm:"size:50;default:'mcq'" json:"questionType"`
	Prompt       string   `gorm:"type:text" json:"prompt"` // 可能包含公式标记
	Options      []string `gorm:"serializer:json;type:json" json:"options"`
	CorrectLabel string   `gorm:"size:16" json:"-"`
	Explanation  string   `gorm:"type:text" json:"explanation,omitempty"`
	Context      string   `gorm:"type:text" json:"context,omitempty"`
	MediaURL     string   `gorm:"size:255" json:"mediaUrl,omitempty"`
	Order        int      `gorm:"default:0" json:"order"`
}

func (Question) TableName() string {
	return "questions"
}
