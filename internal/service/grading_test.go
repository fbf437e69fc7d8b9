package service

import (
	"exam_coach_backend/internal/config"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultGradeTable(t *testing.T) {
	table := DefaultGradeTable()
	cases := map[float64]string{
		100:  "A+",
		80:   "A+",
		79.9: "A",
		70:   "A",
		60:   "A-",
		50:   "B+",
		40:   "B",
		33:   "C",
		32.9: "F",
		0:    "F",
	}
	for percent, want := range cases {
		assert.Equal(t, want, table.Grade(percent), "percent %v", percent)
	}
}

func TestNewGradeTableSortsBands(t *testing.T) {
	table := NewGradeTable([]config.GradeBandConfig{
		{MinPercent: 40, Grade: "Pass"},
		{MinPercent: 90, Grade: "Distinction"},
		{MinPercent: 10, Grade: "Fail"},
	})
	assert.Equal(t, "Distinction", table.Grade(95))
	assert.Equal(t, "Pass", table.Grade(60))
	assert.Equal(t, "Fail", table.Grade(20))
	// 低于最低档
	assert.Equal(t, "Fail", table.Grade(5))

	assert.Equal(t, DefaultGradeTable(), NewGradeTable(nil))
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 62.5, Percentage(1.25, 2))
	assert.Equal(t, 0.0, Percentage(3, 0))
}
