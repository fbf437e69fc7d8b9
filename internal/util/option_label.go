package util

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// 其他文字的选项字母 -> 规范字母
var alternateOptionLabels = map[rune]string{
	// 孟加拉文
	'ক': "A",
	'খ': "B",
	'গ': "C",
	'ঘ': "D",
	'ঙ': "E",
	'চ': "F",
	// 天城文
	'क': "A",
	'ख': "B",
	'ग': "C",
	'घ': "D",
}

// NormalizeOptionLabel 将选项标签映射到 A/B/C... 规范空间。
// 单个拉丁字母转大写（含全角），已知的其他文字字母按表映射，其余输入原样返回。
// 不返回错误，答题热路径上直接调用。
func NormalizeOptionLabel(label string) string {
	candidate := width.Fold.String(norm.NFC.String(strings.TrimSpace(label)))
	if utf8.RuneCountInString(candidate) != 1 {
		return label
	}
	r, _ := utf8.DecodeRuneInString(candidate)
	if canonical, ok := alternateOptionLabels[r]; ok {
		return canonical
	}
	if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
		return strings.ToUpper(candidate)
	}
	return label
}

// LabelsEqual 双方都先规范化再比较
func LabelsEqual(selected, correct string) bool {
	return NormalizeOptionLabel(selected) == NormalizeOptionLabel(correct)
}

// IsCanonicalLabel 是否为单个大写拉丁字母
func IsCanonicalLabel(label string) bool {
	return len(label) == 1 && label[0] >= 'A' && label[0] <= 'Z'
}

// LabelForIndex 0 -> "A"
func LabelForIndex(i int) string {
	if i < 0 || i >= 26 {
		return ""
	}
	return string(rune('A' + i))
}

// IndexForLabel "A" -> 0，非规范标签返回 false
func IndexForLabel(label string) (int, bool) {
	label = NormalizeOptionLabel(label)
	if !IsCanonicalLabel(label) {
		return 0, false
	}
	return int(label[0] - 'A'), true
}
