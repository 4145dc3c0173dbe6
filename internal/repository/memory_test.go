package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"blogsphere/internal/models"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBlog(t *testing.T, s *MemoryStore) *models.Blog {
	t.Helper()
	blog := &models.Blog{ID: "blog-1", BlogID: "hello-abc", Title: "Hello", Author: "u1", Comments: pq.StringArray{}, PublishedAt: time.Now()}
	require.NoError(t, s.Blogs().Create(context.Background(), blog))
	return blog
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	blog := seedBlog(t, s)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context, tx Store) error {
		require.NoError(t, tx.Comments().Create(ctx, &models.Comment{ID: "c1", BlogID: blog.ID, Children: pq.StringArray{}}))
		require.NoError(t, tx.Blogs().AppendComment(ctx, blog.ID, "c1"))
		require.NoError(t, tx.Blogs().IncrementActivity(ctx, blog.ID, ActivityDelta{Comments: 1, ParentComments: 1}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Comments().FindByID(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := s.Blogs().FindByID(ctx, blog.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Comments)
	assert.Equal(t, int64(0), got.Activity.TotalComments)
}

func TestRollbackKeepsConcurrentWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	blog := seedBlog(t, s)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context, tx Store) error {
		require.NoError(t, tx.Comments().Create(ctx, &models.Comment{ID: "c1", BlogID: blog.ID, Children: pq.StringArray{}}))

		// 事务未结束时，另一个请求直接写入
		done := make(chan error, 1)
		go func() {
			done <- s.Users().Create(context.Background(), &models.User{ID: "signup"})
		}()
		require.NoError(t, <-done)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Users().FindByID(ctx, "signup")
	assert.NoError(t, err)
	_, err = s.Comments().FindByID(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRollbackRestoresDeletedAndUpdatedRecords(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	blog := seedBlog(t, s)
	comment := "c1"
	require.NoError(t, s.Comments().Create(ctx, &models.Comment{ID: comment, BlogID: blog.ID, Children: pq.StringArray{}}))
	require.NoError(t, s.Notifications().Create(ctx, &models.Notification{ID: "n1", Type: models.NotificationTypeComment, Blog: blog.ID, NotificationFor: "u1", Comment: &comment}))
	require.NoError(t, s.Notifications().Create(ctx, &models.Notification{ID: "n2", Type: models.NotificationTypeLike, Blog: blog.ID, NotificationFor: "u1"}))

	err := s.WithTx(ctx, func(ctx context.Context, tx Store) error {
		require.NoError(t, tx.Notifications().MarkSeen(ctx, []string{"n2"}))
		require.NoError(t, tx.Notifications().DeleteByComment(ctx, comment))
		require.NoError(t, tx.Comments().Delete(ctx, comment))
		return errors.New("boom")
	})
	require.Error(t, err)

	_, err = s.Comments().FindByID(ctx, comment)
	assert.NoError(t, err)
	count, err := s.Notifications().Count(ctx, NotificationQuery{For: "u1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	unseen, err := s.Notifications().HasUnseen(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, unseen)
	list, err := s.Notifications().List(ctx, NotificationQuery{For: "u1", Type: models.NotificationTypeLike})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Seen)
}

func TestWithTxCommits(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	blog := seedBlog(t, s)

	err := s.WithTx(ctx, func(ctx context.Context, tx Store) error {
		return tx.Blogs().IncrementActivity(ctx, blog.ID, ActivityDelta{Likes: 1})
	})
	require.NoError(t, err)

	got, err := s.Blogs().FindByID(ctx, blog.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Activity.TotalLikes)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	blog := seedBlog(t, s)

	got, err := s.Blogs().FindByID(ctx, blog.ID)
	require.NoError(t, err)
	got.Comments = append(got.Comments, "leaked")
	got.Title = "changed"

	again, err := s.Blogs().FindByID(ctx, blog.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Comments)
	assert.Equal(t, "Hello", again.Title)
}

func TestCommentChildrenAndCounts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	blog := seedBlog(t, s)
	parent := "c1"

	require.NoError(t, s.Comments().Create(ctx, &models.Comment{ID: "c1", BlogID: blog.ID, Children: pq.StringArray{}, CommentedAt: time.Now()}))
	require.NoError(t, s.Comments().Create(ctx, &models.Comment{ID: "r1", BlogID: blog.ID, IsReply: true, Parent: &parent, Children: pq.StringArray{}, CommentedAt: time.Now()}))
	require.NoError(t, s.Comments().AppendChild(ctx, "c1", "r1"))

	total, parents, err := s.Comments().CountByBlog(ctx, blog.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, int64(1), parents)

	roots, err := s.Comments().ListRoots(ctx, blog.ID, 0, 5)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, []string{"r1"}, []string(roots[0].Children))

	require.NoError(t, s.Comments().RemoveChild(ctx, "c1", "r1"))
	c1, err := s.Comments().FindByID(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, c1.Children)

	assert.ErrorIs(t, s.Comments().AppendChild(ctx, "missing", "r1"), ErrNotFound)
}

func TestNotificationQueries(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	c1, c2 := "c1", "c2"
	now := time.Now()

	for _, n := range []*models.Notification{
		{ID: "n1", Type: models.NotificationTypeLike, Blog: "b1", NotificationFor: "author", User: "reader", CreatedAt: now},
		{ID: "n2", Type: models.NotificationTypeComment, Blog: "b1", NotificationFor: "author", User: "reader", Comment: &c1, CreatedAt: now.Add(time.Second)},
		{ID: "n3", Type: models.NotificationTypeReply, Blog: "b1", NotificationFor: "reader", User: "author", Comment: &c2, RepliedOnComment: &c1, CreatedAt: now.Add(2 * time.Second)},
	} {
		require.NoError(t, s.Notifications().Create(ctx, n))
	}

	like, err := s.Notifications().FindLike(ctx, "reader", "b1")
	require.NoError(t, err)
	assert.Equal(t, "n1", like.ID)

	list, err := s.Notifications().List(ctx, NotificationQuery{For: "author"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "n2", list[0].ID)

	// 删除 c1 同时清掉以它为 replied_on_comment 的通知
	require.NoError(t, s.Notifications().DeleteByComment(ctx, "c1"))
	count, err := s.Notifications().Count(ctx, NotificationQuery{For: "reader"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	unseen, err := s.Notifications().HasUnseen(ctx, "author")
	require.NoError(t, err)
	assert.True(t, unseen)
	require.NoError(t, s.Notifications().MarkSeen(ctx, []string{"n1"}))
	unseen, err = s.Notifications().HasUnseen(ctx, "author")
	require.NoError(t, err)
	assert.False(t, unseen)
}
