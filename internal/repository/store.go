package repository

import (
	"context"
	"errors"

	"blogsphere/internal/models"
)

// ErrNotFound 所有驱动在记录不存在时统一返回
var ErrNotFound = errors.New("record not found")

// Store 文档存储的统一入口。postgres、mongo、memory 三种驱动实现同一套接口。
type Store interface {
	Users() UserRepository
	Blogs() BlogRepository
	Comments() CommentRepository
	Notifications() NotificationRepository

	// WithTx 在同一个事务边界内执行 fn，fn 返回错误时整体回滚。
	// fn 必须使用传入的 ctx 和 tx，而不是外层的 Store。
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// Transactional 为 false 时 WithTx 不保证原子性，调用方需要安排对账
	Transactional() bool
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
	Search(ctx context.Context, query string, limit int) ([]models.User, error)
	IncrementAccount(ctx context.Context, id string, totalPosts, totalReads int64) error
	AddBlog(ctx context.Context, userID, blogID string) error
	RemoveBlog(ctx context.Context, userID, blogID string) error
}

type BlogSort int

const (
	SortLatest BlogSort = iota
	SortTrending
)

// BlogQuery 列表与计数共用的筛选条件
type BlogQuery struct {
	Draft       *bool
	Tag         string
	Query       string // 标题模糊匹配
	Author      string
	ExcludeSlug string
	Sort        BlogSort
	Skip        int
	Limit       int
}

// ActivityDelta 对 Blog.Activity 的增量
type ActivityDelta struct {
	Likes          int64
	Comments       int64
	ParentComments int64
	Reads          int64
}

func (d ActivityDelta) IsZero() bool {
	return d == ActivityDelta{}
}

type BlogRepository interface {
	Create(ctx context.Context, blog *models.Blog) error
	Update(ctx context.Context, blog *models.Blog) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*models.Blog, error)
	FindBySlug(ctx context.Context, slug string) (*models.Blog, error)
	Find(ctx context.Context, q BlogQuery) ([]models.Blog, error)
	Count(ctx context.Context, q BlogQuery) (int64, error)
	ListIDs(ctx context.Context) ([]string, error)
	IncrementActivity(ctx context.Context, id string, delta ActivityDelta) error
	// RecountComments 按评论记录重算 total_comments 和 total_parent_comments，
	// 重算期间并发的评论写入不会被覆盖
	RecountComments(ctx context.Context, id string) error
	AppendComment(ctx context.Context, blogID, commentID string) error
	RemoveComments(ctx context.Context, blogID string, commentIDs []string) error
}

type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	Delete(ctx context.Context, id string) error
	DeleteByBlog(ctx context.Context, blogID string) error
	FindByID(ctx context.Context, id string) (*models.Comment, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Comment, error)
	ListRoots(ctx context.Context, blogID string, skip, limit int) ([]models.Comment, error)
	// CountByBlog 返回评论总数和其中根评论的数量
	CountByBlog(ctx context.Context, blogID string) (total, parents int64, err error)
	AppendChild(ctx context.Context, parentID, childID string) error
	RemoveChild(ctx context.Context, parentID, childID string) error
}

// NotificationQuery Type 为空表示全部类型
type NotificationQuery struct {
	For   string
	Type  models.NotificationType
	Skip  int
	Limit int
}

type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	Delete(ctx context.Context, id string) error
	// DeleteByComment 删除 comment 或 replied_on_comment 指向该评论的通知
	DeleteByComment(ctx context.Context, commentID string) error
	DeleteByBlog(ctx context.Context, blogID string) error
	FindLike(ctx context.Context, userID, blogID string) (*models.Notification, error)
	List(ctx context.Context, q NotificationQuery) ([]models.Notification, error)
	Count(ctx context.Context, q NotificationQuery) (int64, error)
	HasUnseen(ctx context.Context, userID string) (bool, error)
	MarkSeen(ctx context.Context, ids []string) error
}
