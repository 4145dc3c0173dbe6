package models

import (
	"time"

	"github.com/lib/pq"
)

// Comment 归属于 Blog；回复同时被父评论的 Children 引用
type Comment struct {
	ID          string         `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"_id"`
	BlogID      string         `gorm:"type:varchar(36);not null;index" bson:"blog_id" json:"blog_id"`
	BlogAuthor  string         `gorm:"type:varchar(36);not null" bson:"blog_author" json:"blog_author"`
	Comment     string         `gorm:"type:text;not null" bson:"comment" json:"comment"`
	Children    pq.StringArray `gorm:"type:text[]" bson:"children" json:"children"`
	CommentedBy string         `gorm:"type:varchar(36);not null;index" bson:"commented_by" json:"commented_by"`
	IsReply     bool           `gorm:"default:false" bson:"isReply" json:"isReply"`
	Parent      *string        `gorm:"type:varchar(36);index" bson:"parent,omitempty" json:"parent,omitempty"`
	CommentedAt time.Time      `gorm:"index" bson:"commentedAt" json:"commentedAt"`
}

// CommentView 评论接口的返回结构，附带评论者信息
type CommentView struct {
	Comment
	CommentedBy UserSummary `json:"commented_by"`
}
