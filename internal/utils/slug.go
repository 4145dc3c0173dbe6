package utils

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9\s]`)

// BlogSlug 由标题生成 blog_id：去掉非字母数字字符，空白连续段替换为 "-"，再追加随机后缀
func BlogSlug(title string) string {
	words := strings.Fields(nonAlnum.ReplaceAllString(title, ""))
	suffix := RandomSuffix(12)
	if len(words) == 0 {
		return suffix
	}
	return strings.Join(words, "-") + "-" + suffix
}
