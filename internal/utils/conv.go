package utils

import (
	"strconv"
)

// ParsePage 解析页码，非法或小于 1 时返回 1
func ParsePage(s string) int {
	page, err := strconv.Atoi(s)
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// PageOffset 第 page 页的起始偏移，额外跳过 deleted 条（前端删除后补齐分页）
func PageOffset(page, size, deleted int) int {
	if page < 1 {
		page = 1
	}
	offset := (page-1)*size - deleted
	if offset < 0 {
		return 0
	}
	return offset
}
