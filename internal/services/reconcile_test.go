package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"blogsphere/internal/apperrors"
	"blogsphere/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReconcileBlogFixesCounters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.createUser(t, "author")
	reader := env.createUser(t, "reader")
	blog := env.createBlog(t, author)
	other := env.createBlog(t, author)

	root := addComment(t, env, blog, reader, "root", "")
	addComment(t, env, blog, author, "reply", root.ID)
	addComment(t, env, other, reader, "root", "")

	// (2,1) -> (42,7)，(1,1) -> (0,0)
	require.NoError(t, env.store.Blogs().IncrementActivity(ctx, blog.ID, repository.ActivityDelta{Comments: 40, ParentComments: 6}))
	require.NoError(t, env.store.Blogs().IncrementActivity(ctx, other.ID, repository.ActivityDelta{Comments: -1, ParentComments: -1}))

	r := NewReconciler(env.store, zap.NewNop())
	n, err := r.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got := env.blog(t, blog.ID)
	assert.Equal(t, int64(2), got.Activity.TotalComments)
	assert.Equal(t, int64(1), got.Activity.TotalParentComments)
	got = env.blog(t, other.ID)
	assert.Equal(t, int64(1), got.Activity.TotalComments)
	assert.Equal(t, int64(1), got.Activity.TotalParentComments)
}

func TestReconcileDoesNotLoseConcurrentComments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.createUser(t, "author")
	reader := env.createUser(t, "reader")
	blog := env.createBlog(t, author)
	r := NewReconciler(env.store, zap.NewNop())

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := env.comments.AddComment(ctx, AddCommentInput{BlogID: blog.ID, CommenterID: reader.ID, Text: "root"})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, r.ReconcileBlog(ctx, blog.ID))
		}()
	}
	wg.Wait()

	got := env.blog(t, blog.ID)
	assert.Equal(t, int64(n), got.Activity.TotalComments)
	assert.Equal(t, int64(n), got.Activity.TotalParentComments)
}

func TestReconcileMissingBlog(t *testing.T) {
	env := newTestEnv(t)
	r := NewReconciler(env.store, zap.NewNop())
	assert.ErrorIs(t, r.ReconcileBlog(context.Background(), "missing"), repository.ErrNotFound)
}

// flakyStore 模拟不支持事务的存储：写入不会回滚，且计数器更新总是失败
type flakyStore struct {
	*repository.MemoryStore
}

type flakyBlogs struct {
	repository.BlogRepository
}

func (flakyBlogs) IncrementActivity(context.Context, string, repository.ActivityDelta) error {
	return errors.New("write conflict")
}

func (s flakyStore) Blogs() repository.BlogRepository { return flakyBlogs{s.MemoryStore.Blogs()} }
func (s flakyStore) Transactional() bool              { return false }
func (s flakyStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	return fn(ctx, s)
}

func TestFailedWriteWithoutTransactionIsReconciled(t *testing.T) {
	env := newTestEnv(t)
	author := env.createUser(t, "author")
	reader := env.createUser(t, "reader")
	blog := env.createBlog(t, author)

	reconciler := NewReconciler(env.store, zap.NewNop())
	reconciler.Start()
	store := flakyStore{env.store}
	comments := NewCommentService(store, NewNotifier(store, nil, nil, "", zap.NewNop()), reconciler, zap.NewNop())

	_, err := comments.AddComment(context.Background(), AddCommentInput{BlogID: blog.ID, CommenterID: reader.ID, Text: "half written"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindStore))

	// 评论已写入但计数器没有更新
	assert.Equal(t, int64(0), env.blog(t, blog.ID).Activity.TotalComments)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reconciler.Stop(ctx)

	got := env.blog(t, blog.ID)
	assert.Equal(t, int64(1), got.Activity.TotalComments)
	assert.Equal(t, int64(1), got.Activity.TotalParentComments)
}

func TestStopWithoutStart(t *testing.T) {
	r := NewReconciler(repository.NewMemoryStore(), zap.NewNop())
	require.NoError(t, r.StartCron("0 3 * * *"))
	r.Stop(context.Background())
}

func TestStartCronRejectsBadSpec(t *testing.T) {
	r := NewReconciler(repository.NewMemoryStore(), zap.NewNop())
	assert.Error(t, r.StartCron("not a cron spec"))
}
