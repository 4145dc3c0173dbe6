package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"blogsphere/internal/apperrors"
	"blogsphere/internal/models"
	"blogsphere/internal/repository"
	"blogsphere/internal/utils"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	commentPageSize = 5
	// maxThreadDepth 校验父链时的上限，超过视为数据损坏
	maxThreadDepth = 10000
)

// CommentService 评论树：创建、回复、级联删除和分页读取
type CommentService struct {
	store      repository.Store
	notifier   *Notifier
	reconciler *Reconciler
	log        *zap.Logger
}

func NewCommentService(store repository.Store, notifier *Notifier, reconciler *Reconciler, log *zap.Logger) *CommentService {
	return &CommentService{store: store, notifier: notifier, reconciler: reconciler, log: log}
}

type AddCommentInput struct {
	BlogID      string // Blog 的内部 ID
	BlogAuthor  string // 客户端声明的作者，为空时不校验
	CommenterID string
	Text        string
	ReplyingTo  string // 父评论 ID，为空表示根评论
}

// AddComment 创建根评论或回复，并在同一事务内维护计数器、父子链接和通知
func (s *CommentService) AddComment(ctx context.Context, in AddCommentInput) (*models.Comment, error) {
	text := strings.TrimSpace(in.Text)
	if utils.PlainText(text) == "" {
		return nil, apperrors.Validation("Write something to leave a comment")
	}
	if in.BlogID == "" {
		return nil, apperrors.Validation("blog id is required")
	}

	var (
		comment      *models.Comment
		notification *models.Notification
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		blog, err := tx.Blogs().FindByID(ctx, in.BlogID)
		if err != nil {
			return lookupErr(err, "blog not found")
		}
		if in.BlogAuthor != "" && in.BlogAuthor != blog.Author {
			return apperrors.Validation("blog_author does not match the blog")
		}

		var parent *models.Comment
		if in.ReplyingTo != "" {
			parent, err = tx.Comments().FindByID(ctx, in.ReplyingTo)
			if err != nil {
				return lookupErr(err, "parent comment not found")
			}
			if err := s.checkAncestry(ctx, tx, parent, blog.ID); err != nil {
				return err
			}
		}

		comment = &models.Comment{
			ID:          uuid.NewString(),
			BlogID:      blog.ID,
			BlogAuthor:  blog.Author,
			Comment:     text,
			Children:    pq.StringArray{},
			CommentedBy: in.CommenterID,
			CommentedAt: time.Now(),
		}
		delta := repository.ActivityDelta{Comments: 1, ParentComments: 1}
		notification = &models.Notification{
			Type:            models.NotificationTypeComment,
			Blog:            blog.ID,
			NotificationFor: blog.Author,
			User:            in.CommenterID,
			Comment:         &comment.ID,
		}
		if parent != nil {
			comment.IsReply = true
			comment.Parent = &parent.ID
			delta.ParentComments = 0
			notification.Type = models.NotificationTypeReply
			notification.NotificationFor = parent.CommentedBy
			notification.RepliedOnComment = &parent.ID
		}

		if err := tx.Comments().Create(ctx, comment); err != nil {
			return apperrors.Store(err)
		}
		if err := tx.Blogs().AppendComment(ctx, blog.ID, comment.ID); err != nil {
			return apperrors.Store(err)
		}
		if err := tx.Blogs().IncrementActivity(ctx, blog.ID, delta); err != nil {
			return apperrors.Store(err)
		}
		if parent != nil {
			if err := tx.Comments().AppendChild(ctx, parent.ID, comment.ID); err != nil {
				return apperrors.Store(err)
			}
		}
		if err := s.notifier.Emit(ctx, tx, notification); err != nil {
			return apperrors.Store(err)
		}
		return nil
	})
	if err != nil {
		s.afterFailure(in.BlogID, err)
		return nil, err
	}

	s.notifier.Dispatch(*notification)
	s.log.Debug("comment added",
		zap.String("comment", comment.ID),
		zap.String("blog", comment.BlogID),
		zap.Bool("reply", comment.IsReply))
	return comment, nil
}

// checkAncestry 父评论必须属于同一篇文章，且沿父链能走到该文章的根评论
func (s *CommentService) checkAncestry(ctx context.Context, tx repository.Store, parent *models.Comment, blogID string) error {
	visited := make(map[string]bool)
	cur := parent
	for depth := 0; ; depth++ {
		if cur.BlogID != blogID {
			return apperrors.Validation("comment %s does not belong to this blog", cur.ID)
		}
		if visited[cur.ID] || depth > maxThreadDepth {
			return fmt.Errorf("comment thread above %s is corrupted", parent.ID)
		}
		visited[cur.ID] = true

		if cur.Parent == nil {
			if cur.IsReply {
				return fmt.Errorf("reply %s has no parent", cur.ID)
			}
			return nil
		}
		next, err := tx.Comments().FindByID(ctx, *cur.Parent)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("ancestor %s of comment %s is missing", *cur.Parent, parent.ID)
			}
			return apperrors.Store(err)
		}
		cur = next
	}
}

// DeleteSubtree 删除评论及其全部后代。只有评论作者或文章作者可以删除。
// 返回删除的评论数。
func (s *CommentService) DeleteSubtree(ctx context.Context, commentID, callerID string) (int, error) {
	var (
		blogID  string
		deleted int
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		root, err := tx.Comments().FindByID(ctx, commentID)
		if err != nil {
			return lookupErr(err, "comment not found")
		}
		blogID = root.BlogID
		if callerID != root.CommentedBy && callerID != root.BlogAuthor {
			return apperrors.Forbidden("You can not delete this comment")
		}

		subtree, err := collectSubtree(ctx, tx, root)
		if err != nil {
			return err
		}

		// 逆序即后代先于祖先
		ids := make([]string, 0, len(subtree))
		var parents int64
		for i := len(subtree) - 1; i >= 0; i-- {
			c := subtree[i]
			if err := tx.Notifications().DeleteByComment(ctx, c.ID); err != nil {
				return apperrors.Store(err)
			}
			if err := tx.Comments().Delete(ctx, c.ID); err != nil {
				return apperrors.Store(err)
			}
			ids = append(ids, c.ID)
			if !c.IsReply {
				parents++
			}
		}

		if root.Parent != nil {
			if err := tx.Comments().RemoveChild(ctx, *root.Parent, root.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return apperrors.Store(err)
			}
		}
		if err := tx.Blogs().RemoveComments(ctx, root.BlogID, ids); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return apperrors.Store(err)
		}
		delta := repository.ActivityDelta{Comments: -int64(len(ids)), ParentComments: -parents}
		if err := tx.Blogs().IncrementActivity(ctx, root.BlogID, delta); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return apperrors.Store(err)
		}
		deleted = len(ids)
		return nil
	})
	if err != nil {
		s.afterFailure(blogID, err)
		return 0, err
	}
	s.log.Debug("comment subtree deleted", zap.String("comment", commentID), zap.Int("count", deleted))
	return deleted, nil
}

// collectSubtree 广度优先收集子树，父节点总在子节点之前。重复访问视为环。
func collectSubtree(ctx context.Context, tx repository.Store, root *models.Comment) ([]models.Comment, error) {
	visited := map[string]bool{root.ID: true}
	order := []models.Comment{*root}
	for i := 0; i < len(order); i++ {
		if len(order[i].Children) == 0 {
			continue
		}
		children, err := tx.Comments().FindByIDs(ctx, order[i].Children)
		if err != nil {
			return nil, apperrors.Store(err)
		}
		for _, child := range children {
			if visited[child.ID] {
				return nil, fmt.Errorf("comment %s reached twice under %s", child.ID, root.ID)
			}
			if child.BlogID != root.BlogID {
				return nil, fmt.Errorf("comment %s under %s belongs to another blog", child.ID, root.ID)
			}
			visited[child.ID] = true
			order = append(order, child)
		}
	}
	return order, nil
}

// afterFailure 存储不支持事务时，失败可能留下部分写入，交给对账修正计数器
func (s *CommentService) afterFailure(blogID string, err error) {
	if blogID == "" || s.store.Transactional() || s.reconciler == nil {
		return
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation, apperrors.KindAuthorization, apperrors.KindNotFound:
		return
	}
	s.log.Warn("comment mutation failed without transaction, scheduling reconcile",
		zap.String("blog", blogID), zap.Error(err))
	s.reconciler.ScheduleReconcile(blogID)
}

// ListRootComments 按时间正序返回一页根评论
func (s *CommentService) ListRootComments(ctx context.Context, blogID string, skip int) ([]models.CommentView, error) {
	if skip < 0 {
		skip = 0
	}
	list, err := s.store.Comments().ListRoots(ctx, blogID, skip, commentPageSize)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	return s.withCommenters(ctx, list)
}

// ListReplies 按 children 顺序返回一页回复
func (s *CommentService) ListReplies(ctx context.Context, commentID string, skip int) ([]models.CommentView, error) {
	parent, err := s.store.Comments().FindByID(ctx, commentID)
	if err != nil {
		return nil, lookupErr(err, "comment not found")
	}
	ids := paginateIDs(parent.Children, skip, commentPageSize)
	list, err := s.store.Comments().FindByIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	return s.withCommenters(ctx, list)
}

func (s *CommentService) withCommenters(ctx context.Context, list []models.Comment) ([]models.CommentView, error) {
	ids := make([]string, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.CommentedBy)
	}
	users, err := summaries(ctx, s.store, ids)
	if err != nil {
		return nil, err
	}
	views := make([]models.CommentView, 0, len(list))
	for _, c := range list {
		views = append(views, models.CommentView{Comment: c, CommentedBy: users[c.CommentedBy]})
	}
	return views, nil
}

func paginateIDs(ids []string, skip, limit int) []string {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(ids) {
		return nil
	}
	ids = ids[skip:]
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

// lookupErr 把 ErrNotFound 转成带提示的 404，其余视为存储错误
func lookupErr(err error, message string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(message)
	}
	return apperrors.Store(err)
}
