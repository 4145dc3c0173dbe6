package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"blogsphere/internal/apperrors"
	"blogsphere/internal/models"
	"blogsphere/internal/repository"
	"blogsphere/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const notificationPageSize = 10

// Notifier 负责通知记录的创建、收件箱查询，以及提交后的消息广播和邮件
type Notifier struct {
	store   repository.Store
	events  EventPublisher
	mailer  Mailer
	log     *zap.Logger
	siteURL string
	wg      sync.WaitGroup
}

func NewNotifier(store repository.Store, events EventPublisher, mailer Mailer, siteURL string, log *zap.Logger) *Notifier {
	if events == nil {
		events = NoopPublisher{}
	}
	if mailer == nil {
		mailer = NoopMailer{}
	}
	return &Notifier{store: store, events: events, mailer: mailer, siteURL: siteURL, log: log}
}

// Emit 在事务 tx 内创建通知记录
func (n *Notifier) Emit(ctx context.Context, tx repository.Store, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now()
	}
	return tx.Notifications().Create(ctx, notification)
}

// Dispatch 事务提交后异步广播事件，回复类通知额外发邮件。失败只记日志。
func (n *Notifier) Dispatch(notification models.Notification) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		event := NotificationEvent{
			NotificationID:   notification.ID,
			Type:             string(notification.Type),
			Blog:             notification.Blog,
			NotificationFor:  notification.NotificationFor,
			User:             notification.User,
			Comment:          notification.Comment,
			RepliedOnComment: notification.RepliedOnComment,
			CreatedAt:        notification.CreatedAt,
		}
		if err := n.events.PublishNotification(ctx, event); err != nil {
			n.log.Warn("publish notification event failed",
				zap.String("notification", notification.ID), zap.Error(err))
		}

		if notification.Type == models.NotificationTypeReply && notification.NotificationFor != notification.User {
			if err := n.sendReplyMail(ctx, notification); err != nil {
				n.log.Warn("send reply email failed",
					zap.String("notification", notification.ID), zap.Error(err))
			}
		}
	}()
}

func (n *Notifier) sendReplyMail(ctx context.Context, notification models.Notification) error {
	if notification.Comment == nil || notification.RepliedOnComment == nil {
		return nil
	}
	recipient, err := n.store.Users().FindByID(ctx, notification.NotificationFor)
	if err != nil {
		return err
	}
	actor, err := n.store.Users().FindByID(ctx, notification.User)
	if err != nil {
		return err
	}
	blog, err := n.store.Blogs().FindByID(ctx, notification.Blog)
	if err != nil {
		return err
	}
	comments, err := n.store.Comments().FindByIDs(ctx, []string{*notification.Comment, *notification.RepliedOnComment})
	if err != nil {
		return err
	}
	var reply, original string
	for _, c := range comments {
		switch c.ID {
		case *notification.Comment:
			reply = c.Comment
		case *notification.RepliedOnComment:
			original = c.Comment
		}
	}
	return n.mailer.SendReplyNotification(ReplyMail{
		To:              recipient.PersonalInfo.Email,
		ActiveUser:      actor.PersonalInfo.Username,
		BlogTitle:       blog.Title,
		ReplyContent:    reply,
		OriginalContent: original,
		Link:            fmt.Sprintf("%s/blog/%s", n.siteURL, blog.BlogID),
	})
}

// Wait 等待所有已派发的副作用完成，用于优雅退出和测试
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func parseFilter(filter string) (models.NotificationType, error) {
	if filter == "" || filter == "all" {
		return "", nil
	}
	t := models.NotificationType(filter)
	if !t.Valid() {
		return "", apperrors.Validation("unknown notification filter %q", filter)
	}
	return t, nil
}

// HasNew 是否有未读通知
func (n *Notifier) HasNew(ctx context.Context, userID string) (bool, error) {
	ok, err := n.store.Notifications().HasUnseen(ctx, userID)
	if err != nil {
		return false, apperrors.Store(err)
	}
	return ok, nil
}

// List 返回一页通知并把它们标记为已读
func (n *Notifier) List(ctx context.Context, userID string, page int, filter string, deleted int) ([]models.NotificationView, error) {
	t, err := parseFilter(filter)
	if err != nil {
		return nil, err
	}
	list, err := n.store.Notifications().List(ctx, repository.NotificationQuery{
		For:   userID,
		Type:  t,
		Skip:  utils.PageOffset(page, notificationPageSize, deleted),
		Limit: notificationPageSize,
	})
	if err != nil {
		return nil, apperrors.Store(err)
	}

	views, err := n.views(ctx, list)
	if err != nil {
		return nil, err
	}

	unseen := make([]string, 0, len(list))
	for _, item := range list {
		if !item.Seen {
			unseen = append(unseen, item.ID)
		}
	}
	if err := n.store.Notifications().MarkSeen(ctx, unseen); err != nil {
		n.log.Warn("mark notifications seen failed", zap.Error(err))
	}
	return views, nil
}

func (n *Notifier) Count(ctx context.Context, userID, filter string) (int64, error) {
	t, err := parseFilter(filter)
	if err != nil {
		return 0, err
	}
	count, err := n.store.Notifications().Count(ctx, repository.NotificationQuery{For: userID, Type: t})
	if err != nil {
		return 0, apperrors.Store(err)
	}
	return count, nil
}

func (n *Notifier) views(ctx context.Context, list []models.Notification) ([]models.NotificationView, error) {
	userIDs := make([]string, 0, len(list))
	commentIDs := make([]string, 0)
	blogs := make(map[string]models.BlogRef)
	for _, item := range list {
		userIDs = append(userIDs, item.User)
		if item.Comment != nil {
			commentIDs = append(commentIDs, *item.Comment)
		}
		if item.RepliedOnComment != nil {
			commentIDs = append(commentIDs, *item.RepliedOnComment)
		}
		if _, ok := blogs[item.Blog]; !ok {
			blog, err := n.store.Blogs().FindByID(ctx, item.Blog)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, apperrors.Store(err)
			}
			if blog != nil {
				blogs[item.Blog] = models.BlogRef{ID: blog.ID, BlogID: blog.BlogID, Title: blog.Title}
			}
		}
	}

	users, err := summaries(ctx, n.store, userIDs)
	if err != nil {
		return nil, err
	}
	comments, err := n.store.Comments().FindByIDs(ctx, commentIDs)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	texts := make(map[string]string, len(comments))
	for _, c := range comments {
		texts[c.ID] = c.Comment
	}

	views := make([]models.NotificationView, 0, len(list))
	for _, item := range list {
		v := models.NotificationView{Notification: item, User: users[item.User], Blog: blogs[item.Blog]}
		if item.Comment != nil {
			v.CommentText = texts[*item.Comment]
		}
		if item.RepliedOnComment != nil {
			v.RepliedOnText = texts[*item.RepliedOnComment]
		}
		views = append(views, v)
	}
	return views, nil
}

// summaries 批量加载用户摘要
func summaries(ctx context.Context, store repository.Store, ids []string) (map[string]models.UserSummary, error) {
	users, err := store.Users().FindByIDs(ctx, uniqueStrings(ids))
	if err != nil {
		return nil, apperrors.Store(err)
	}
	out := make(map[string]models.UserSummary, len(users))
	for i := range users {
		out[users[i].ID] = users[i].Summary()
	}
	return out, nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
