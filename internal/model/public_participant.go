package model

// PublicParticipant 公开考试的匿名考生，手机号只存哈希
// swagger:model PublicParticipant
type PublicParticipant struct {
	UUIDBase
	ExamID    uint   `gorm:"not null;uniqueIndex:idx_participant_exam_phone" json:"examId"`
	Name      string `gorm:"size:100;not null" json:"name"`
	PhoneHash string `gorm:"size:64;not null;uniqueIndex:idx_participant_exam_phone" json:"-"`
	Token     string `gorm:"size:64;not null;uniqueIndex" json:"-"`
}

func (PublicParticipant) TableName() string {
	return "public_participants"
}
