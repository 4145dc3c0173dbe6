package services

import (
	"context"
	"testing"
	"time"

	"blogsphere/internal/models"
	"blogsphere/internal/repository"
	"blogsphere/internal/utils"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	store    *repository.MemoryStore
	notifier *Notifier
	comments *CommentService
	blogs    *BlogService
	users    *UserService
	tokens   *TokenService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := repository.NewMemoryStore()
	log := zap.NewNop()
	cache, err := utils.NewTTLCache(128)
	require.NoError(t, err)

	notifier := NewNotifier(store, NoopPublisher{}, NoopMailer{}, "http://localhost:5173", log)
	tokens := NewTokenService("test-secret", time.Hour, NewLocalRevocationList(time.Hour))
	env := &testEnv{
		store:    store,
		notifier: notifier,
		comments: NewCommentService(store, notifier, NewReconciler(store, log), log),
		blogs:    NewBlogService(store, notifier, cache, log),
		users:    NewUserService(store, tokens, log),
		tokens:   tokens,
	}
	t.Cleanup(notifier.Wait)
	return env
}

func (e *testEnv) createUser(t *testing.T, username string) *models.User {
	t.Helper()
	user := newUser(username+" Test", username+"@example.com", username, "", utils.RandomProfileImg(), false)
	require.NoError(t, e.store.Users().Create(context.Background(), user))
	return user
}

func (e *testEnv) createBlog(t *testing.T, author *models.User) *models.Blog {
	t.Helper()
	now := time.Now()
	blog := &models.Blog{
		ID:          uuid.NewString(),
		BlogID:      utils.BlogSlug("A test blog"),
		Title:       "A test blog",
		Des:         "desc",
		Banner:      "https://example.com/banner.jpg",
		Tags:        pq.StringArray{"go"},
		Author:      author.ID,
		Comments:    pq.StringArray{},
		PublishedAt: now,
		UpdatedAt:   now,
	}
	require.NoError(t, e.store.Blogs().Create(context.Background(), blog))
	return blog
}

func (e *testEnv) blog(t *testing.T, id string) *models.Blog {
	t.Helper()
	blog, err := e.store.Blogs().FindByID(context.Background(), id)
	require.NoError(t, err)
	return blog
}

func (e *testEnv) notificationsFor(t *testing.T, userID string) []models.Notification {
	t.Helper()
	list, err := e.store.Notifications().List(context.Background(), repository.NotificationQuery{For: userID})
	require.NoError(t, err)
	return list
}
