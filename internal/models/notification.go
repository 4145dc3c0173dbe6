package models

import (
	"time"
)

type NotificationType string

const (
	NotificationTypeLike    NotificationType = "like"
	NotificationTypeComment NotificationType = "comment"
	NotificationTypeReply   NotificationType = "reply"
)

// Valid 校验通知类型
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationTypeLike, NotificationTypeComment, NotificationTypeReply:
		return true
	}
	return false
}

type Notification struct {
	ID               string           `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"_id"`
	Type             NotificationType `gorm:"type:varchar(20);not null;index" bson:"type" json:"type"`
	Blog             string           `gorm:"type:varchar(36);not null;index" bson:"blog" json:"blog"`
	NotificationFor  string           `gorm:"type:varchar(36);not null;index" bson:"notification_for" json:"notification_for"` // Receiver
	User             string           `gorm:"column:actor_id;type:varchar(36);not null;index" bson:"user" json:"user"`          // Actor
	Comment          *string          `gorm:"type:varchar(36);index" bson:"comment,omitempty" json:"comment,omitempty"`
	RepliedOnComment *string          `gorm:"type:varchar(36);index" bson:"replied_on_comment,omitempty" json:"replied_on_comment,omitempty"`
	Seen             bool             `gorm:"default:false;index" bson:"seen" json:"seen"`
	CreatedAt        time.Time        `bson:"createdAt" json:"createdAt"`
}

// NotificationView 收件箱条目
type NotificationView struct {
	Notification
	User          UserSummary `json:"user"`
	Blog          BlogRef     `json:"blog"`
	CommentText   string      `json:"comment_text,omitempty"`
	RepliedOnText string      `json:"replied_on_comment_text,omitempty"`
}

type BlogRef struct {
	ID     string `json:"_id"`
	BlogID string `json:"blog_id"`
	Title  string `json:"title"`
}
