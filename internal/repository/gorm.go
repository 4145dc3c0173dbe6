package repository

import (
	"context"
	"errors"

	"blogsphere/internal/models"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// GormStore PostgreSQL 驱动。数组字段使用 text[]，计数器使用原子表达式更新。
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Users() UserRepository                 { return gormUsers{s.db} }
func (s *GormStore) Blogs() BlogRepository                 { return gormBlogs{s.db} }
func (s *GormStore) Comments() CommentRepository           { return gormComments{s.db} }
func (s *GormStore) Notifications() NotificationRepository { return gormNotifications{s.db} }
func (s *GormStore) Transactional() bool                   { return true }

func (s *GormStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &GormStore{db: tx})
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// affected 在更新不到任何行时返回 ErrNotFound
func affected(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- users ----

type gormUsers struct{ db *gorm.DB }

func (r gormUsers) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r gormUsers) Update(ctx context.Context, user *models.User) error {
	return affected(r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).
		Select("personal_fullname", "personal_username", "personal_password", "personal_bio",
			"personal_profile_img", "social_youtube", "social_instagram", "social_facebook",
			"social_twitter", "social_github", "social_website", "updated_at").
		Updates(user))
}

func (r gormUsers) first(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r gormUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r gormUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, "personal_email = ?", email)
}

func (r gormUsers) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.first(ctx, "personal_username = ?", username)
}

func (r gormUsers) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	var users []models.User
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	return users, err
}

func (r gormUsers) Search(ctx context.Context, query string, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Where("personal_username ILIKE ?", "%"+query+"%").
		Order("personal_username ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}

func (r gormUsers) IncrementAccount(ctx context.Context, id string, totalPosts, totalReads int64) error {
	return affected(r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		UpdateColumns(map[string]any{
			"account_total_posts": gorm.Expr("account_total_posts + ?", totalPosts),
			"account_total_reads": gorm.Expr("account_total_reads + ?", totalReads),
		}))
}

func (r gormUsers) AddBlog(ctx context.Context, userID, blogID string) error {
	return affected(r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		UpdateColumn("blogs", gorm.Expr("array_append(blogs, ?)", blogID)))
}

func (r gormUsers) RemoveBlog(ctx context.Context, userID, blogID string) error {
	return affected(r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		UpdateColumn("blogs", gorm.Expr("array_remove(blogs, ?)", blogID)))
}

// ---- blogs ----

type gormBlogs struct{ db *gorm.DB }

func (r gormBlogs) Create(ctx context.Context, blog *models.Blog) error {
	return r.db.WithContext(ctx).Create(blog).Error
}

func (r gormBlogs) Update(ctx context.Context, blog *models.Blog) error {
	return affected(r.db.WithContext(ctx).Model(&models.Blog{}).Where("id = ?", blog.ID).
		Select("title", "banner", "des", "content", "tags", "draft", "published_at", "updated_at").
		Updates(blog))
}

func (r gormBlogs) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Blog{}).Error
}

func (r gormBlogs) FindByID(ctx context.Context, id string) (*models.Blog, error) {
	var blog models.Blog
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&blog).Error; err != nil {
		return nil, notFound(err)
	}
	return &blog, nil
}

func (r gormBlogs) FindBySlug(ctx context.Context, slug string) (*models.Blog, error) {
	var blog models.Blog
	if err := r.db.WithContext(ctx).Where("blog_id = ?", slug).First(&blog).Error; err != nil {
		return nil, notFound(err)
	}
	return &blog, nil
}

func (r gormBlogs) scope(ctx context.Context, q BlogQuery) *gorm.DB {
	tx := r.db.WithContext(ctx).Model(&models.Blog{})
	if q.Draft != nil {
		tx = tx.Where("draft = ?", *q.Draft)
	}
	if q.Author != "" {
		tx = tx.Where("author = ?", q.Author)
	}
	if q.ExcludeSlug != "" {
		tx = tx.Where("blog_id <> ?", q.ExcludeSlug)
	}
	if q.Tag != "" {
		tx = tx.Where("? = ANY(tags)", q.Tag)
	}
	if q.Query != "" {
		tx = tx.Where("title ILIKE ?", "%"+q.Query+"%")
	}
	return tx
}

func (r gormBlogs) Find(ctx context.Context, q BlogQuery) ([]models.Blog, error) {
	tx := r.scope(ctx, q)
	if q.Sort == SortTrending {
		tx = tx.Order("activity_total_reads DESC").Order("activity_total_likes DESC")
	}
	tx = tx.Order("published_at DESC").Offset(q.Skip)
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var blogs []models.Blog
	err := tx.Find(&blogs).Error
	return blogs, err
}

func (r gormBlogs) Count(ctx context.Context, q BlogQuery) (int64, error) {
	var count int64
	err := r.scope(ctx, q).Count(&count).Error
	return count, err
}

func (r gormBlogs) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Blog{}).Order("id").Pluck("id", &ids).Error
	return ids, err
}

func (r gormBlogs) IncrementActivity(ctx context.Context, id string, d ActivityDelta) error {
	return affected(r.db.WithContext(ctx).Model(&models.Blog{}).Where("id = ?", id).
		UpdateColumns(map[string]any{
			"activity_total_likes":           gorm.Expr("activity_total_likes + ?", d.Likes),
			"activity_total_comments":        gorm.Expr("activity_total_comments + ?", d.Comments),
			"activity_total_parent_comments": gorm.Expr("activity_total_parent_comments + ?", d.ParentComments),
			"activity_total_reads":           gorm.Expr("activity_total_reads + ?", d.Reads),
		}))
}

// RecountComments 先锁住文章行，再用子查询一次写入两个计数器。
// 评论写入会对同一行做 IncrementActivity，因此两者串行。
func (r gormBlogs) RecountComments(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT 1 FROM blogs WHERE id = ? FOR UPDATE", id).Error; err != nil {
			return err
		}
		total := tx.Model(&models.Comment{}).Select("COUNT(*)").
			Where("comments.blog_id = blogs.id")
		parents := tx.Model(&models.Comment{}).Select("COUNT(*)").
			Where("comments.blog_id = blogs.id AND comments.is_reply = ?", false)
		return affected(tx.Model(&models.Blog{}).Where("id = ?", id).
			UpdateColumns(map[string]any{
				"activity_total_comments":        total,
				"activity_total_parent_comments": parents,
			}))
	})
}

func (r gormBlogs) AppendComment(ctx context.Context, blogID, commentID string) error {
	return affected(r.db.WithContext(ctx).Model(&models.Blog{}).Where("id = ?", blogID).
		UpdateColumn("comments", gorm.Expr("array_append(comments, ?)", commentID)))
}

func (r gormBlogs) RemoveComments(ctx context.Context, blogID string, commentIDs []string) error {
	// 保留原有顺序，不能用 EXCEPT
	return affected(r.db.WithContext(ctx).Model(&models.Blog{}).Where("id = ?", blogID).
		UpdateColumn("comments", gorm.Expr(
			"ARRAY(SELECT c FROM unnest(comments) WITH ORDINALITY AS t(c, n) WHERE c <> ALL(?) ORDER BY n)",
			pq.StringArray(commentIDs))))
}

// ---- comments ----

type gormComments struct{ db *gorm.DB }

func (r gormComments) Create(ctx context.Context, c *models.Comment) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r gormComments) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Comment{}).Error
}

func (r gormComments) DeleteByBlog(ctx context.Context, blogID string) error {
	return r.db.WithContext(ctx).Where("blog_id = ?", blogID).Delete(&models.Comment{}).Error
}

func (r gormComments) FindByID(ctx context.Context, id string) (*models.Comment, error) {
	var c models.Comment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r gormComments) FindByIDs(ctx context.Context, ids []string) ([]models.Comment, error) {
	var list []models.Comment
	if len(ids) == 0 {
		return list, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	// 按 ids 的顺序返回
	byID := make(map[string]models.Comment, len(list))
	for _, c := range list {
		byID[c.ID] = c
	}
	ordered := make([]models.Comment, 0, len(list))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}
	return ordered, nil
}

func (r gormComments) ListRoots(ctx context.Context, blogID string, skip, limit int) ([]models.Comment, error) {
	var list []models.Comment
	err := r.db.WithContext(ctx).
		Where("blog_id = ? AND is_reply = ?", blogID, false).
		Order("commented_at ASC").Order("id ASC").
		Offset(skip).Limit(limit).
		Find(&list).Error
	return list, err
}

func (r gormComments) CountByBlog(ctx context.Context, blogID string) (int64, int64, error) {
	var row struct {
		Total   int64
		Parents int64
	}
	err := r.db.WithContext(ctx).Model(&models.Comment{}).
		Select("COUNT(*) AS total, COUNT(*) FILTER (WHERE is_reply = false) AS parents").
		Where("blog_id = ?", blogID).
		Scan(&row).Error
	return row.Total, row.Parents, err
}

func (r gormComments) AppendChild(ctx context.Context, parentID, childID string) error {
	return affected(r.db.WithContext(ctx).Model(&models.Comment{}).Where("id = ?", parentID).
		UpdateColumn("children", gorm.Expr("array_append(children, ?)", childID)))
}

func (r gormComments) RemoveChild(ctx context.Context, parentID, childID string) error {
	return affected(r.db.WithContext(ctx).Model(&models.Comment{}).Where("id = ?", parentID).
		UpdateColumn("children", gorm.Expr("array_remove(children, ?)", childID)))
}

// ---- notifications ----

type gormNotifications struct{ db *gorm.DB }

func (r gormNotifications) Create(ctx context.Context, n *models.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r gormNotifications) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Notification{}).Error
}

func (r gormNotifications) DeleteByComment(ctx context.Context, commentID string) error {
	return r.db.WithContext(ctx).
		Where("comment = ? OR replied_on_comment = ?", commentID, commentID).
		Delete(&models.Notification{}).Error
}

func (r gormNotifications) DeleteByBlog(ctx context.Context, blogID string) error {
	return r.db.WithContext(ctx).Where("blog = ?", blogID).Delete(&models.Notification{}).Error
}

func (r gormNotifications) FindLike(ctx context.Context, userID, blogID string) (*models.Notification, error) {
	var n models.Notification
	err := r.db.WithContext(ctx).
		Where("type = ? AND actor_id = ? AND blog = ?", models.NotificationTypeLike, userID, blogID).
		First(&n).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}

func (r gormNotifications) scope(ctx context.Context, q NotificationQuery) *gorm.DB {
	tx := r.db.WithContext(ctx).Model(&models.Notification{}).Where("notification_for = ?", q.For)
	if q.Type != "" {
		tx = tx.Where("type = ?", q.Type)
	}
	return tx
}

func (r gormNotifications) List(ctx context.Context, q NotificationQuery) ([]models.Notification, error) {
	tx := r.scope(ctx, q).Order("created_at DESC").Order("id DESC").Offset(q.Skip)
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var list []models.Notification
	err := tx.Find(&list).Error
	return list, err
}

func (r gormNotifications) Count(ctx context.Context, q NotificationQuery) (int64, error) {
	var count int64
	err := r.scope(ctx, q).Count(&count).Error
	return count, err
}

func (r gormNotifications) HasUnseen(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("notification_for = ? AND seen = ?", userID, false).
		Limit(1).Count(&count).Error
	return count > 0, err
}

func (r gormNotifications) MarkSeen(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id IN ?", ids).Update("seen", true).Error
}
