package services

import (
	"context"
	"errors"
	"testing"

	"blogsphere/internal/apperrors"
	"blogsphere/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockMailer 是 Mailer 接口的模拟实现
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendReplyNotification(msg ReplyMail) error {
	args := m.Called(msg)
	return args.Error(0)
}

// MockPublisher 是 EventPublisher 接口的模拟实现
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishNotification(ctx context.Context, event NotificationEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestReplyDispatchesEventAndMail(t *testing.T) {
	env := newTestEnv(t)
	author := env.createUser(t, "author")
	reader := env.createUser(t, "reader")
	blog := env.createBlog(t, author)

	mailer := new(MockMailer)
	publisher := new(MockPublisher)
	notifier := NewNotifier(env.store, publisher, mailer, "https://blog.example.com", zap.NewNop())
	comments := NewCommentService(env.store, notifier, nil, zap.NewNop())

	publisher.On("PublishNotification", mock.Anything, mock.MatchedBy(func(e NotificationEvent) bool {
		return e.Type == "comment" && e.NotificationFor == author.ID
	})).Return(nil).Once()
	publisher.On("PublishNotification", mock.Anything, mock.MatchedBy(func(e NotificationEvent) bool {
		return e.Type == "reply" && e.NotificationFor == reader.ID && e.User == author.ID
	})).Return(errors.New("broker down")).Once()
	mailer.On("SendReplyNotification", mock.MatchedBy(func(m ReplyMail) bool {
		return m.To == "reader@example.com" &&
			m.ActiveUser == "author" &&
			m.ReplyContent == "thanks!" &&
			m.OriginalContent == "great read" &&
			m.Link == "https://blog.example.com/blog/"+blog.BlogID
	})).Return(nil).Once()

	ctx := context.Background()
	root, err := comments.AddComment(ctx, AddCommentInput{BlogID: blog.ID, CommenterID: reader.ID, Text: "great read"})
	require.NoError(t, err)
	_, err = comments.AddComment(ctx, AddCommentInput{BlogID: blog.ID, CommenterID: author.ID, Text: "thanks!", ReplyingTo: root.ID})
	// 广播失败不影响请求
	require.NoError(t, err)

	notifier.Wait()
	publisher.AssertExpectations(t)
	mailer.AssertExpectations(t)
}

func TestSelfReplySendsNoMail(t *testing.T) {
	env := newTestEnv(t)
	author := env.createUser(t, "author")
	blog := env.createBlog(t, author)

	mailer := new(MockMailer)
	notifier := NewNotifier(env.store, NoopPublisher{}, mailer, "", zap.NewNop())
	comments := NewCommentService(env.store, notifier, nil, zap.NewNop())

	ctx := context.Background()
	root, err := comments.AddComment(ctx, AddCommentInput{BlogID: blog.ID, CommenterID: author.ID, Text: "pinned"})
	require.NoError(t, err)
	_, err = comments.AddComment(ctx, AddCommentInput{BlogID: blog.ID, CommenterID: author.ID, Text: "edit: typo", ReplyingTo: root.ID})
	require.NoError(t, err)

	notifier.Wait()
	mailer.AssertNotCalled(t, "SendReplyNotification", mock.Anything)
}

func TestInboxListMarksSeen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.createUser(t, "author")
	reader := env.createUser(t, "reader")
	blog := env.createBlog(t, author)

	for i := 0; i < 12; i++ {
		addComment(t, env, blog, reader, "hello", "")
	}
	_, err := env.blogs.ToggleLike(ctx, blog.ID, reader.ID, false)
	require.NoError(t, err)

	hasNew, err := env.notifier.HasNew(ctx, author.ID)
	require.NoError(t, err)
	assert.True(t, hasNew)

	all, err := env.notifier.Count(ctx, author.ID, "all")
	require.NoError(t, err)
	assert.Equal(t, int64(13), all)
	likes, err := env.notifier.Count(ctx, author.ID, "like")
	require.NoError(t, err)
	assert.Equal(t, int64(1), likes)

	page, err := env.notifier.List(ctx, author.ID, 1, "comment", 0)
	require.NoError(t, err)
	require.Len(t, page, 10)
	assert.Equal(t, "reader", page[0].User.Username)
	assert.Equal(t, blog.BlogID, page[0].Blog.BlogID)
	assert.Equal(t, "hello", page[0].CommentText)

	rest, err := env.notifier.List(ctx, author.ID, 2, "comment", 0)
	require.NoError(t, err)
	assert.Len(t, rest, 2)

	likePage, err := env.notifier.List(ctx, author.ID, 1, "like", 0)
	require.NoError(t, err)
	require.Len(t, likePage, 1)
	assert.Equal(t, models.NotificationTypeLike, likePage[0].Type)

	hasNew, err = env.notifier.HasNew(ctx, author.ID)
	require.NoError(t, err)
	assert.False(t, hasNew)

	_, err = env.notifier.List(ctx, author.ID, 1, "bogus", 0)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}
