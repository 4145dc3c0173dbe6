package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"blogsphere/internal/apperrors"
	"blogsphere/internal/models"
	"blogsphere/internal/repository"
	"blogsphere/internal/utils"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	blogPageSize     = 5
	trendingLimit    = 5
	maxTags          = 10
	maxDescLength    = 200
	latestCacheTTL   = 30 * time.Second
	trendingCacheTTL = time.Minute
	blogCachePrefix  = "blogs:"
)

// BlogService 文章的发布、读取、点赞、列表和删除
type BlogService struct {
	store    repository.Store
	notifier *Notifier
	cache    *utils.TTLCache
	log      *zap.Logger
}

func NewBlogService(store repository.Store, notifier *Notifier, cache *utils.TTLCache, log *zap.Logger) *BlogService {
	return &BlogService{store: store, notifier: notifier, cache: cache, log: log}
}

type PublishInput struct {
	ID      string // 已有文章的 blog_id，为空表示新建
	Title   string
	Des     string
	Banner  string
	Tags    []string
	Content models.EditorContent
	Draft   bool
}

func (in *PublishInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Des = strings.TrimSpace(in.Des)
	if in.Title == "" {
		return apperrors.Validation("You must provide a title")
	}
	if utf8.RuneCountInString(in.Des) > maxDescLength {
		return apperrors.Validation("Blog description must be under %d characters", maxDescLength)
	}
	in.Tags = normalizeTags(in.Tags)
	if len(in.Tags) > maxTags {
		return apperrors.Validation("Provide tags in order to publish the blog, Maximum %d", maxTags)
	}
	if in.Draft {
		return nil
	}
	if in.Des == "" {
		return apperrors.Validation("You must provide blog description under %d characters", maxDescLength)
	}
	if strings.TrimSpace(in.Banner) == "" {
		return apperrors.Validation("You must provide blog banner to publish it")
	}
	if len(in.Content.Blocks) == 0 {
		return apperrors.Validation("There must be some blog content to publish it")
	}
	if len(in.Tags) == 0 {
		return apperrors.Validation("Provide tags in order to publish the blog, Maximum %d", maxTags)
	}
	return nil
}

// normalizeTags 小写、去空白、去重，保持原顺序
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Publish 新建或更新文章（含草稿）
func (s *BlogService) Publish(ctx context.Context, authorID string, in PublishInput) (*models.Blog, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	in.Content.Blocks = utils.SanitizeBlocks(in.Content.Blocks)
	content := datatypes.JSONSlice[models.EditorContent]{in.Content}
	now := time.Now()

	var blog *models.Blog
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if in.ID != "" {
			existing, err := tx.Blogs().FindBySlug(ctx, in.ID)
			if err != nil {
				return lookupErr(err, "blog not found")
			}
			if existing.Author != authorID {
				return apperrors.Forbidden("You are not allowed to edit this blog")
			}
			wasDraft := existing.Draft
			existing.Title = in.Title
			existing.Des = in.Des
			existing.Banner = in.Banner
			existing.Tags = pq.StringArray(in.Tags)
			existing.Content = content
			existing.Draft = in.Draft
			existing.UpdatedAt = now
			var posts int64
			switch {
			case wasDraft && !in.Draft:
				existing.PublishedAt = now
				posts = 1
			case !wasDraft && in.Draft:
				posts = -1
			}
			if err := tx.Blogs().Update(ctx, existing); err != nil {
				return apperrors.Store(err)
			}
			if posts != 0 {
				if err := tx.Users().IncrementAccount(ctx, authorID, posts, 0); err != nil {
					return apperrors.Store(err)
				}
			}
			blog = existing
			return nil
		}

		blog = &models.Blog{
			ID:          uuid.NewString(),
			BlogID:      utils.BlogSlug(in.Title),
			Title:       in.Title,
			Des:         in.Des,
			Banner:      in.Banner,
			Content:     content,
			Tags:        pq.StringArray(in.Tags),
			Author:      authorID,
			Comments:    pq.StringArray{},
			Draft:       in.Draft,
			PublishedAt: now,
			UpdatedAt:   now,
		}
		if err := tx.Blogs().Create(ctx, blog); err != nil {
			return apperrors.Store(err)
		}
		var posts int64
		if !in.Draft {
			posts = 1
		}
		if err := tx.Users().IncrementAccount(ctx, authorID, posts, 0); err != nil {
			return lookupErr(err, "author not found")
		}
		if err := tx.Users().AddBlog(ctx, authorID, blog.ID); err != nil {
			return apperrors.Store(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.DeletePrefix(blogCachePrefix)
	return blog, nil
}

// GetBlog 按 blog_id 读取文章。mode 不为 "edit" 时累计阅读数。
func (s *BlogService) GetBlog(ctx context.Context, slug string, draft bool, mode string) (*models.BlogDetail, error) {
	var blog *models.Blog
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		blog, err = tx.Blogs().FindBySlug(ctx, slug)
		if err != nil {
			return lookupErr(err, "blog not found")
		}
		if blog.Draft && !draft {
			return apperrors.Forbidden("you can not access draft blogs")
		}
		if mode == "edit" {
			return nil
		}
		if err := tx.Blogs().IncrementActivity(ctx, blog.ID, repository.ActivityDelta{Reads: 1}); err != nil {
			return apperrors.Store(err)
		}
		if err := tx.Users().IncrementAccount(ctx, blog.Author, 0, 1); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return apperrors.Store(err)
		}
		blog.Activity.TotalReads++
		return nil
	})
	if err != nil {
		return nil, err
	}

	authors, err := summaries(ctx, s.store, []string{blog.Author})
	if err != nil {
		return nil, err
	}
	return &models.BlogDetail{Blog: *blog, Author: authors[blog.Author]}, nil
}

// ToggleLike 切换点赞状态，返回切换后的状态。
// 当前状态以服务端的 like 通知为准，clientLiked 只用于记录不一致。
func (s *BlogService) ToggleLike(ctx context.Context, blogID, userID string, clientLiked bool) (bool, error) {
	var (
		liked        bool
		notification *models.Notification
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		blog, err := tx.Blogs().FindByID(ctx, blogID)
		if err != nil {
			return lookupErr(err, "blog not found")
		}
		existing, err := tx.Notifications().FindLike(ctx, userID, blog.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return apperrors.Store(err)
		}
		current := existing != nil
		if current != clientLiked {
			s.log.Info("client like state is stale",
				zap.String("blog", blog.ID), zap.String("user", userID),
				zap.Bool("client", clientLiked), zap.Bool("server", current))
		}

		if current {
			if err := tx.Notifications().Delete(ctx, existing.ID); err != nil {
				return apperrors.Store(err)
			}
			if err := tx.Blogs().IncrementActivity(ctx, blog.ID, repository.ActivityDelta{Likes: -1}); err != nil {
				return apperrors.Store(err)
			}
			liked = false
			return nil
		}

		notification = &models.Notification{
			Type:            models.NotificationTypeLike,
			Blog:            blog.ID,
			NotificationFor: blog.Author,
			User:            userID,
		}
		if err := s.notifier.Emit(ctx, tx, notification); err != nil {
			return apperrors.Store(err)
		}
		if err := tx.Blogs().IncrementActivity(ctx, blog.ID, repository.ActivityDelta{Likes: 1}); err != nil {
			return apperrors.Store(err)
		}
		liked = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if liked {
		s.notifier.Dispatch(*notification)
	}
	return liked, nil
}

// IsLiked 用户是否已点赞该文章
func (s *BlogService) IsLiked(ctx context.Context, blogID, userID string) (bool, error) {
	_, err := s.store.Notifications().FindLike(ctx, userID, blogID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Store(err)
	}
	return true, nil
}

func published() *bool {
	f := false
	return &f
}

// Latest 最新发布的文章，每页 5 篇
func (s *BlogService) Latest(ctx context.Context, page int) ([]models.BlogCard, error) {
	key := fmt.Sprintf("%slatest:%d", blogCachePrefix, page)
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]models.BlogCard), nil
	}
	cards, err := s.find(ctx, repository.BlogQuery{
		Draft: published(),
		Sort:  repository.SortLatest,
		Skip:  utils.PageOffset(page, blogPageSize, 0),
		Limit: blogPageSize,
	})
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, cards, latestCacheTTL)
	return cards, nil
}

func (s *BlogService) CountLatest(ctx context.Context) (int64, error) {
	return s.count(ctx, repository.BlogQuery{Draft: published()})
}

// Trending 按阅读数、点赞数、发布时间排序的前 5 篇
func (s *BlogService) Trending(ctx context.Context) ([]models.BlogCard, error) {
	key := blogCachePrefix + "trending"
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]models.BlogCard), nil
	}
	cards, err := s.find(ctx, repository.BlogQuery{
		Draft: published(),
		Sort:  repository.SortTrending,
		Limit: trendingLimit,
	})
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, cards, trendingCacheTTL)
	return cards, nil
}

type SearchInput struct {
	Tag           string
	Query         string
	Author        string
	Page          int
	Limit         int
	EliminateBlog string
}

func (in SearchInput) query() repository.BlogQuery {
	limit := in.Limit
	if limit <= 0 {
		limit = blogPageSize
	}
	return repository.BlogQuery{
		Draft:       published(),
		Tag:         strings.ToLower(strings.TrimSpace(in.Tag)),
		Query:       strings.TrimSpace(in.Query),
		Author:      in.Author,
		ExcludeSlug: in.EliminateBlog,
		Sort:        repository.SortLatest,
		Skip:        utils.PageOffset(in.Page, limit, 0),
		Limit:       limit,
	}
}

// Search 按标签、标题关键字或作者搜索已发布文章
func (s *BlogService) Search(ctx context.Context, in SearchInput) ([]models.BlogCard, error) {
	return s.find(ctx, in.query())
}

func (s *BlogService) CountSearch(ctx context.Context, in SearchInput) (int64, error) {
	q := in.query()
	q.Skip, q.Limit = 0, 0
	return s.count(ctx, q)
}

type UserBlogsInput struct {
	UserID  string
	Page    int
	Draft   bool
	Query   string
	Deleted int
}

// UserBlogs 作者自己的文章或草稿，用于管理页面
func (s *BlogService) UserBlogs(ctx context.Context, in UserBlogsInput) ([]models.BlogCard, error) {
	draft := in.Draft
	return s.find(ctx, repository.BlogQuery{
		Draft:  &draft,
		Author: in.UserID,
		Query:  strings.TrimSpace(in.Query),
		Sort:   repository.SortLatest,
		Skip:   utils.PageOffset(in.Page, blogPageSize, in.Deleted),
		Limit:  blogPageSize,
	})
}

func (s *BlogService) CountUserBlogs(ctx context.Context, in UserBlogsInput) (int64, error) {
	draft := in.Draft
	return s.count(ctx, repository.BlogQuery{Draft: &draft, Author: in.UserID, Query: strings.TrimSpace(in.Query)})
}

// DeleteBlog 删除文章及其评论和通知，只有作者可以删除
func (s *BlogService) DeleteBlog(ctx context.Context, slug, userID string) error {
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		blog, err := tx.Blogs().FindBySlug(ctx, slug)
		if err != nil {
			return lookupErr(err, "blog not found")
		}
		if blog.Author != userID {
			return apperrors.Forbidden("You are not allowed to delete this blog")
		}
		if err := tx.Comments().DeleteByBlog(ctx, blog.ID); err != nil {
			return apperrors.Store(err)
		}
		if err := tx.Notifications().DeleteByBlog(ctx, blog.ID); err != nil {
			return apperrors.Store(err)
		}
		if err := tx.Blogs().Delete(ctx, blog.ID); err != nil {
			return apperrors.Store(err)
		}
		if err := tx.Users().RemoveBlog(ctx, userID, blog.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return apperrors.Store(err)
		}
		if !blog.Draft {
			if err := tx.Users().IncrementAccount(ctx, userID, -1, 0); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return apperrors.Store(err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.cache.DeletePrefix(blogCachePrefix)
	return nil
}

func (s *BlogService) find(ctx context.Context, q repository.BlogQuery) ([]models.BlogCard, error) {
	blogs, err := s.store.Blogs().Find(ctx, q)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	authorIDs := make([]string, 0, len(blogs))
	for _, b := range blogs {
		authorIDs = append(authorIDs, b.Author)
	}
	authors, err := summaries(ctx, s.store, authorIDs)
	if err != nil {
		return nil, err
	}
	cards := make([]models.BlogCard, 0, len(blogs))
	for i := range blogs {
		cards = append(cards, blogs[i].Card(authors[blogs[i].Author]))
	}
	return cards, nil
}

func (s *BlogService) count(ctx context.Context, q repository.BlogQuery) (int64, error) {
	n, err := s.store.Blogs().Count(ctx, q)
	if err != nil {
		return 0, apperrors.Store(err)
	}
	return n, nil
}
