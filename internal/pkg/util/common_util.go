package util

import (
	"strings"
	"unicode/utf8"
)

// TruncateRunes 按字符截断，超出部分以省略号结尾
func TruncateRunes(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "…"
}

// SingleLine 将换行折叠为空格，用于预览
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
