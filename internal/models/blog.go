package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// ContentBlock 编辑器输出的单个块，Data 的结构随 Type 变化
type ContentBlock struct {
	ID   string         `bson:"id,omitempty" json:"id,omitempty"`
	Type string         `bson:"type" json:"type"`
	Data map[string]any `bson:"data" json:"data"`
}

// EditorContent 编辑器保存的完整文档
type EditorContent struct {
	Time    int64          `bson:"time,omitempty" json:"time,omitempty"`
	Blocks  []ContentBlock `bson:"blocks" json:"blocks"`
	Version string         `bson:"version,omitempty" json:"version,omitempty"`
}

type Activity struct {
	TotalLikes          int64 `gorm:"default:0" bson:"total_likes" json:"total_likes"`
	TotalComments       int64 `gorm:"default:0" bson:"total_comments" json:"total_comments"`
	TotalReads          int64 `gorm:"default:0" bson:"total_reads" json:"total_reads"`
	TotalParentComments int64 `gorm:"default:0" bson:"total_parent_comments" json:"total_parent_comments"`
}

type Blog struct {
	ID     string `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"_id"`
	BlogID string `gorm:"uniqueIndex;not null" bson:"blog_id" json:"blog_id"`
	Title  string `gorm:"not null" bson:"title" json:"title"`
	Banner string `bson:"banner" json:"banner"`
	Des    string `gorm:"size:200" bson:"des" json:"des"`
	// 与前端约定：content 是只含一个编辑器文档的数组
	Content     datatypes.JSONSlice[EditorContent] `gorm:"type:jsonb" bson:"content" json:"content"`
	Tags        pq.StringArray                     `gorm:"type:text[]" bson:"tags" json:"tags"`
	Author      string                             `gorm:"type:varchar(36);index;not null" bson:"author" json:"author"`
	Activity    Activity                           `gorm:"embedded;embeddedPrefix:activity_" bson:"activity" json:"activity"`
	Comments    pq.StringArray                     `gorm:"type:text[]" bson:"comments" json:"comments"`
	Draft       bool                               `gorm:"default:false;index" bson:"draft" json:"draft"`
	PublishedAt time.Time                          `gorm:"index" bson:"publishedAt" json:"publishedAt"`
	UpdatedAt   time.Time                          `bson:"updatedAt" json:"updatedAt"`
}

// BlogCard 列表接口返回的精简结构
type BlogCard struct {
	BlogID      string      `json:"blog_id"`
	Title       string      `json:"title"`
	Des         string      `json:"des"`
	Banner      string      `json:"banner"`
	Tags        []string    `json:"tags"`
	Activity    Activity    `json:"activity"`
	PublishedAt time.Time   `json:"publishedAt"`
	Draft       bool        `json:"draft,omitempty"`
	Author      UserSummary `json:"author"`
}

func (b *Blog) Card(author UserSummary) BlogCard {
	return BlogCard{
		BlogID:      b.BlogID,
		Title:       b.Title,
		Des:         b.Des,
		Banner:      b.Banner,
		Tags:        b.Tags,
		Activity:    b.Activity,
		PublishedAt: b.PublishedAt,
		Draft:       b.Draft,
		Author:      author,
	}
}

// BlogDetail get-blog 接口返回的完整文章，author 展开为作者信息
type BlogDetail struct {
	Blog
	Author UserSummary `json:"author"`
}
