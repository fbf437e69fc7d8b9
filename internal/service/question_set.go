package service

import (
	"encoding/json"
	"exam_coach_backend/internal/model"
	"exam_coach_backend/internal/util"
)

// DeliveredOption 下发给考生的选项，Label 始终是原始的规范字母
type DeliveredOption struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// DeliveredQuestion 不含正确答案
type DeliveredQuestion struct {
	ID            uint              `json:"id"`
	Position      int               `json:"position"`
	QuestionType  string            `json:"questionType"`
	Prompt        string            `json:"prompt"`
	Context       string            `json:"context,omitempty"`
	MediaURL      string            `json:"mediaUrl,omitempty"`
	Options       []DeliveredOption `json:"options"`
	Answered      bool              `json:"answered"`
	SelectedLabel string            `json:"selectedLabel,omitempty"`
}

// selectQuestions 由作答种子决定本次的题目集合与顺序，同一种子结果固定
func selectQuestions(exam *model.Exam, bank []model.Question, seed int64) []model.Question {
	ordered := bank
	if exam.RandomizeQuestionOrder {
		ordered = util.Shuffle(util.NewSeededShuffler(seed), bank)
	}

	limit := exam.TotalQuestions
	if limit <= 0 || limit > len(ordered) {
		limit = len(ordered)
	}

	typeCounts := parseTypeCounts(exam)
	if len(typeCounts) == 0 {
		return append([]model.Question(nil), ordered[:limit]...)
	}

	taken := make(map[string]int, len(typeCounts))
	selected := make([]model.Question, 0, limit)
	for _, q := range ordered {
		if len(selected) == limit {
			break
		}
		want, ok := typeCounts[q.QuestionType]
		if !ok || taken[q.QuestionType] >= want {
			continue
		}
		taken[q.QuestionType]++
		selected = append(selected, q)
	}
	return selected
}

func parseTypeCounts(exam *model.Exam) map[string]int {
	if len(exam.QuestionTypeCounts) == 0 {
		return nil
	}
	var counts map[string]int
	if err := json.Unmarshal(exam.QuestionTypeCounts, &counts); err != nil {
		return nil
	}
	return counts
}

// deliverOptions 打乱选项时每个选项保留原字母，避免答案与内容错位
func deliverOptions(exam *model.Exam, q model.Question, seed int64) []DeliveredOption {
	options := make([]DeliveredOption, len(q.Options))
	for i, text := range q.Options {
		options[i] = DeliveredOption{Label: util.LabelForIndex(i), Text: text}
	}
	if !exam.ShuffleOptions {
		return options
	}
	return util.Shuffle(util.NewSeededShuffler(seed^int64(q.ID)), options)
}

func findQuestion(questions []model.Question, id uint) (*model.Question, bool) {
	for i := range questions {
		if questions[i].ID == id {
			return &questions[i], true
		}
	}
	return nil, false
}
