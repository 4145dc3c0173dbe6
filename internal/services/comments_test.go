package services

import (
	"context"
	"testing"
	"time"

	"blogsphere/internal/apperrors"
	"blogsphere/internal/models"
	"blogsphere/internal/repository"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addComment(t *testing.T, env *testEnv, blog *models.Blog, commenter *models.User, text, replyingTo string) *models.Comment {
	t.Helper()
	comment, err := env.comments.AddComment(context.Background(), AddCommentInput{
		BlogID:      blog.ID,
		BlogAuthor:  blog.Author,
		CommenterID: commenter.ID,
		Text:        text,
		ReplyingTo:  replyingTo,
	})
	require.NoError(t, err)
	return comment
}

func TestAddRootCommentsIncrementCounters(t *testing.T) {
	env := newTestEnv(t)
	author := env.createUser(t, "author")
	reader := env.createUser(t, "reader")
	blog := env.createBlog(t, author)

	for i := 0; i < 3; i++ {
		c := addComment(t, env, blog, reader, "nice post", "")
		assert.False(t, c.IsReply)
		assert.Nil(t, c.Parent)
	}

	got := env.blog(t, blog.ID)
	assert.Equal(t, int64(3), got.Activity.TotalComments)
	assert.Equal(t, int64(3), got.Activity.TotalParentComments)
	assert.Len(t, got.Comments, 3)

	inbox := env.notificationsFor(t, author.ID)
	require.Len(t, inbox, 3)
	for _, n := range inbox {
		assert.Equal(t, models.NotificationTypeComment, n.Type)
		assert.Equal(t, reader.ID, n.User)
		assert.Equal(t, blog.ID, n.Blog)
		assert.NotNil(t, n.Comment)
	}
}

func TestAddReplyLinksParent(t *testing.T) {
	env := newTestEnv(t)
	author := env.createUser(t, "author")
	reader := env.createUser(t, "reader")
	blog := env.createBlog(t, author)

	root := addComment(t, env, blog, reader, "first", "")
	reply := addComment(t, env, blog, author, "thanks", root.ID)

	assert.True(t, reply.IsReply)
	require.NotNil(t, reply.Parent)
	assert.Equal(t, root.ID, *reply.Parent)

	got := env.blog(t, blog.ID)
	assert.Equal(t, int64(2), got.Activity.TotalComments)
	assert.Equal(t, int64(1), got.Activity.TotalParentComments)

	parent, err := env.store.Comments().FindByID(context.Background(), root.ID)
	require.NoError(t, err)
	assert.Contains(t, []string(parent.Children), reply.ID)

	inbox := env.notificationsFor(t, reader.ID)
	require.Len(t, inbox, 1)
	assert.Equal(t, models.NotificationTypeReply, inbox[0].Type)
	require.NotNil(t, inbox[0].RepliedOnComment)
	assert.Equal(t, root.ID, *inbox[0].RepliedOnComment)
	assert.Equal(t, reply.ID, *inbox[0].Comment)
}

func TestDeleteRootWithReply(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.createUser(t, "author")
	reader := env.createUser(t, "reader")
	blog := env.createBlog(t, author)

	c1 := addComment(t, env, blog, reader, "C1", "")
	r1 := addComment(t, env, blog, author, "R1", c1.ID)

	got := env.blog(t, blog.ID)
	assert.Equal(t, int64(2), got.Activity.TotalComments)
	assert.Equal(t, int64(1), got.Activity.TotalParentComments)

	deleted, err := env.comments.DeleteSubtree(ctx, c1.ID, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	got = env.blog(t, blog.ID)
	assert.Equal(t, int64(0), got.Activity.TotalComments)
	assert.Equal(t, int64(0), got.Activity.TotalParentComments)
	assert.Empty(t, got.Comments)

	_, err = env.store.Comments().FindByID(ctx, r1.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Empty(t, env.notificationsFor(t, author.ID))
	assert.Empty(t, env.notificationsFor(t, reader.ID))
}

func TestDeleteNestedReplyKeepsAncestors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.createUser(t, "author")
	reader := env.createUser(t, "reader")
	other := env.createUser(t, "other")
	blog := env.createBlog(t, author)

	c1 := addComment(t, env, blog, reader, "C1", "")
	r1 := addComment(t, env, blog, other, "R1", c1.ID)
	r2 := addComment(t, env, blog, reader, "R2", r1.ID)
	c2 := addComment(t, env, blog, other, "C2", "")

	deleted, err := env.comments.DeleteSubtree(ctx, r1.ID, other.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	got := env.blog(t, blog.ID)
	assert.Equal(t, int64(2), got.Activity.TotalComments)
	assert.Equal(t, int64(2), got.Activity.TotalParentComments)
	assert.ElementsMatch(t, []string{c1.ID, c2.ID}, []string(got.Comments))

	parent, err := env.store.Comments().FindByID(ctx, c1.ID)
	require.NoError(t, err)
	assert.NotContains(t, []string(parent.Children), r1.ID)

	for _, id := range []string{r1.ID, r2.ID} {
		_, err := env.store.Comments().FindByID(ctx, id)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	}
	for _, user := range []*models.User{author, reader, other} {
		for _, n := range env.notificationsFor(t, user.ID) {
			if n.Comment != nil {
				assert.NotContains(t, []string{r1.ID, r2.ID}, *n.Comment)
			}
			if n.RepliedOnComment != nil {
				assert.NotContains(t, []string{r1.ID, r2.ID}, *n.RepliedOnComment)
			}
		}
	}
}

func TestBlogAuthorCanDeleteAnyComment(t *testing.T) {
	env := newTestEnv(t)
	author := env.createUser(t, "author")
	reader := env.createUser(t, "reader")
	blog := env.createBlog(t, author)

	c := addComment(t, env, blog, reader, "spam", "")
	_, err := env.comments.DeleteSubtree(context.Background(), c.ID, author.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), env.blog(t, blog.ID).Activity.TotalComments)
}

func TestDeleteByStrangerIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	author := env.createUser(t, "author")
	reader := env.createUser(t, "reader")
	stranger := env.createUser(t, "stranger")
	blog := env.createBlog(t, author)

	c := addComment(t, env, blog, reader, "hello", "")
	_, err := env.comments.DeleteSubtree(context.Background(), c.ID, stranger.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindAuthorization))
	assert.Equal(t, 403, apperrors.Status(err))
	assert.Equal(t, "You can not delete this comment", err.Error())

	got := env.blog(t, blog.ID)
	assert.Equal(t, int64(1), got.Activity.TotalComments)
	assert.Equal(t, int64(1), got.Activity.TotalParentComments)
}

func TestDeleteMissingComment(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.comments.DeleteSubtree(context.Background(), "missing", "someone")
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestAddCommentValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.createUser(t, "author")
	reader := env.createUser(t, "reader")
	blog := env.createBlog(t, author)
	otherBlog := env.createBlog(t, author)
	foreign := addComment(t, env, otherBlog, reader, "elsewhere", "")

	tests := []struct {
		name string
		in   AddCommentInput
		kind apperrors.Kind
	}{
		{"empty text", AddCommentInput{BlogID: blog.ID, CommenterID: reader.ID, Text: "   "}, apperrors.KindValidation},
		{"markup only", AddCommentInput{BlogID: blog.ID, CommenterID: reader.ID, Text: "<p> </p>"}, apperrors.KindValidation},
		{"missing blog", AddCommentInput{BlogID: "nope", CommenterID: reader.ID, Text: "hi"}, apperrors.KindNotFound},
		{"wrong author", AddCommentInput{BlogID: blog.ID, BlogAuthor: reader.ID, CommenterID: reader.ID, Text: "hi"}, apperrors.KindValidation},
		{"missing parent", AddCommentInput{BlogID: blog.ID, CommenterID: reader.ID, Text: "hi", ReplyingTo: "nope"}, apperrors.KindNotFound},
		{"parent on another blog", AddCommentInput{BlogID: blog.ID, CommenterID: reader.ID, Text: "hi", ReplyingTo: foreign.ID}, apperrors.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.comments.AddComment(ctx, tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperrors.KindOf(err))
		})
	}

	got := env.blog(t, blog.ID)
	assert.Equal(t, int64(0), got.Activity.TotalComments)
	assert.Empty(t, got.Comments)
}

func TestDeleteCorruptedThreadRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.createUser(t, "author")
	blog := env.createBlog(t, author)

	// a 和 b 互为子节点
	a := &models.Comment{ID: "a", BlogID: blog.ID, BlogAuthor: author.ID, Comment: "a", CommentedBy: author.ID, Children: pq.StringArray{"b"}, CommentedAt: time.Now()}
	parentA := "a"
	b := &models.Comment{ID: "b", BlogID: blog.ID, BlogAuthor: author.ID, Comment: "b", CommentedBy: author.ID, Children: pq.StringArray{"a"}, IsReply: true, Parent: &parentA, CommentedAt: time.Now()}
	require.NoError(t, env.store.Comments().Create(ctx, a))
	require.NoError(t, env.store.Comments().Create(ctx, b))

	_, err := env.comments.DeleteSubtree(ctx, "a", author.ID)
	require.Error(t, err)

	for _, id := range []string{"a", "b"} {
		_, err := env.store.Comments().FindByID(ctx, id)
		assert.NoError(t, err)
	}
}

func TestListRootCommentsAndReplies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.createUser(t, "author")
	reader := env.createUser(t, "reader")
	blog := env.createBlog(t, author)

	var first *models.Comment
	for i := 0; i < 7; i++ {
		c := addComment(t, env, blog, reader, "root", "")
		if first == nil {
			first = c
		}
	}
	for i := 0; i < 6; i++ {
		addComment(t, env, blog, author, "reply", first.ID)
	}

	page1, err := env.comments.ListRootComments(ctx, blog.ID, 0)
	require.NoError(t, err)
	assert.Len(t, page1, 5)
	assert.Equal(t, "reader", page1[0].CommentedBy.Username)

	page2, err := env.comments.ListRootComments(ctx, blog.ID, 5)
	require.NoError(t, err)
	assert.Len(t, page2, 2)

	replies, err := env.comments.ListReplies(ctx, first.ID, 0)
	require.NoError(t, err)
	assert.Len(t, replies, 5)
	for _, r := range replies {
		assert.True(t, r.IsReply)
		assert.Equal(t, author.ID, r.CommentedBy.ID)
	}

	rest, err := env.comments.ListReplies(ctx, first.ID, 5)
	require.NoError(t, err)
	assert.Len(t, rest, 1)

	_, err = env.comments.ListReplies(ctx, "missing", 0)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}
