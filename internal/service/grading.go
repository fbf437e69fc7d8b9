package service

import (
	"exam_coach_backend/internal/config"
	"sort"
)

// GradeBand 百分比下限及对应等级
type GradeBand struct {
	MinPercent float64 `json:"minPercent"`
	Grade      string  `json:"grade"`
}

// GradeTable 按下限从高到低排列
type GradeTable []GradeBand

func DefaultGradeTable() GradeTable {
	return GradeTable{
		{MinPercent: 80, Grade: "A+"},
		{MinPercent: 70, Grade: "A"},
		{MinPercent: 60, Grade: "A-"},
		{MinPercent: 50, Grade: "B+"},
		{MinPercent: 40, Grade: "B"},
		{MinPercent: 33, Grade: "C"},
		{MinPercent: 0, Grade: "F"},
	}
}

// NewGradeTable 配置为空时使用默认分档
func NewGradeTable(bands []config.GradeBandConfig) GradeTable {
	if len(bands) == 0 {
		return DefaultGradeTable()
	}
	table := make(GradeTable, 0, len(bands))
	for _, b := range bands {
		table = append(table, GradeBand{MinPercent: b.MinPercent, Grade: b.Grade})
	}
	sort.SliceStable(table, func(i, j int) bool {
		return table[i].MinPercent > table[j].MinPercent
	})
	return table
}

// Grade 低于所有分档时返回最低一档
func (t GradeTable) Grade(percent float64) string {
	if len(t) == 0 {
		return ""
	}
	for _, band := range t {
		if percent >= band.MinPercent {
			return band.Grade
		}
	}
	return t[len(t)-1].Grade
}

// Percentage 得分占总题数的百分比
func Percentage(score float64, total int) float64 {
	if total <= 0 {
		return 0
	}
	return score / float64(total) * 100
}
