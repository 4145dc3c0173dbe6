package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"blogsphere/internal/models"

	"github.com/lib/pq"
)

// MemoryStore 进程内驱动，用于本地开发和测试。
// WithTx 串行执行事务，失败时按 undo 日志恢复本事务改过的记录。
type MemoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	users         map[string]*models.User
	blogs         map[string]*models.Blog
	comments      map[string]*models.Comment
	notifications map[string]*models.Notification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]*models.User),
		blogs:         make(map[string]*models.Blog),
		comments:      make(map[string]*models.Comment),
		notifications: make(map[string]*models.Notification),
	}
}

func (s *MemoryStore) Users() UserRepository                 { return memUsers{s: s} }
func (s *MemoryStore) Blogs() BlogRepository                 { return memBlogs{s: s} }
func (s *MemoryStore) Comments() CommentRepository           { return memComments{s: s} }
func (s *MemoryStore) Notifications() NotificationRepository { return memNotifications{s: s} }
func (s *MemoryStore) Transactional() bool                   { return true }

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := memTx{s: s, undo: newUndoLog()}
	if err := fn(ctx, tx); err != nil {
		tx.undo.rollback(s)
		return err
	}
	return nil
}

// memTx 事务内的存储视图，写操作先记录修改前的记录
type memTx struct {
	s    *MemoryStore
	undo *undoLog
}

func (t memTx) Users() UserRepository                 { return memUsers{s: t.s, undo: t.undo} }
func (t memTx) Blogs() BlogRepository                 { return memBlogs{s: t.s, undo: t.undo} }
func (t memTx) Comments() CommentRepository           { return memComments{s: t.s, undo: t.undo} }
func (t memTx) Notifications() NotificationRepository { return memNotifications{s: t.s, undo: t.undo} }
func (t memTx) Transactional() bool                   { return true }

// WithTx 嵌套调用并入外层事务
func (t memTx) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, t)
}

// undoLog 保存每个键在事务内第一次被修改前的值，nil 表示事务前不存在。
// 回滚只触及这些键，事务外的并发写入不受影响。
type undoLog struct {
	users         map[string]*models.User
	blogs         map[string]*models.Blog
	comments      map[string]*models.Comment
	notifications map[string]*models.Notification
}

func newUndoLog() *undoLog {
	return &undoLog{
		users:         make(map[string]*models.User),
		blogs:         make(map[string]*models.Blog),
		comments:      make(map[string]*models.Comment),
		notifications: make(map[string]*models.Notification),
	}
}

// remember 调用方需持有 s.mu
func remember[T any](log, current map[string]*T, id string, clone func(*T) *T) {
	if _, seen := log[id]; seen {
		return
	}
	if v, ok := current[id]; ok {
		log[id] = clone(v)
		return
	}
	log[id] = nil
}

func restore[T any](current, log map[string]*T) {
	for id, v := range log {
		if v == nil {
			delete(current, id)
		} else {
			current[id] = v
		}
	}
}

func (u *undoLog) user(s *MemoryStore, id string) {
	if u != nil {
		remember(u.users, s.users, id, cloneUser)
	}
}

func (u *undoLog) blog(s *MemoryStore, id string) {
	if u != nil {
		remember(u.blogs, s.blogs, id, cloneBlog)
	}
}

func (u *undoLog) comment(s *MemoryStore, id string) {
	if u != nil {
		remember(u.comments, s.comments, id, cloneComment)
	}
}

func (u *undoLog) notification(s *MemoryStore, id string) {
	if u != nil {
		remember(u.notifications, s.notifications, id, cloneNotification)
	}
}

func (u *undoLog) rollback(s *MemoryStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	restore(s.users, u.users)
	restore(s.blogs, u.blogs)
	restore(s.comments, u.comments)
	restore(s.notifications, u.notifications)
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.Blogs = append(pq.StringArray(nil), u.Blogs...)
	return &c
}

func cloneBlog(b *models.Blog) *models.Blog {
	c := *b
	c.Tags = append(pq.StringArray(nil), b.Tags...)
	c.Comments = append(pq.StringArray(nil), b.Comments...)
	c.Content = append(c.Content[:0:0], b.Content...)
	return &c
}

func cloneComment(cm *models.Comment) *models.Comment {
	c := *cm
	c.Children = append(pq.StringArray(nil), cm.Children...)
	return &c
}

func cloneNotification(n *models.Notification) *models.Notification {
	c := *n
	return &c
}

func removeAll(list pq.StringArray, ids ...string) pq.StringArray {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	out := list[:0:0]
	for _, v := range list {
		if !drop[v] {
			out = append(out, v)
		}
	}
	return out
}

// ---- users ----

type memUsers struct {
	s    *MemoryStore
	undo *undoLog
}

func (r memUsers) Create(_ context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.undo.user(r.s, user.ID)
	r.s.users[user.ID] = cloneUser(user)
	return nil
}

func (r memUsers) Update(_ context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.undo.user(r.s, user.ID)
	if _, ok := r.s.users[user.ID]; !ok {
		return ErrNotFound
	}
	r.s.users[user.ID] = cloneUser(user)
	return nil
}

func (r memUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if u, ok := r.s.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, ErrNotFound
}

func (r memUsers) findBy(match func(*models.User) bool) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (r memUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return r.findBy(func(u *models.User) bool { return u.PersonalInfo.Email == email })
}

func (r memUsers) FindByUsername(_ context.Context, username string) (*models.User, error) {
	return r.findBy(func(u *models.User) bool { return u.PersonalInfo.Username == username })
}

func (r memUsers) FindByIDs(_ context.Context, ids []string) ([]models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok {
			out = append(out, *cloneUser(u))
		}
	}
	return out, nil
}

func (r memUsers) Search(_ context.Context, query string, limit int) ([]models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	q := strings.ToLower(query)
	out := make([]models.User, 0)
	for _, u := range r.s.users {
		if strings.Contains(strings.ToLower(u.PersonalInfo.Username), q) {
			out = append(out, *cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PersonalInfo.Username < out[j].PersonalInfo.Username })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memUsers) IncrementAccount(_ context.Context, id string, totalPosts, totalReads int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.undo.user(r.s, id)
	u, ok := r.s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.AccountInfo.TotalPosts += totalPosts
	u.AccountInfo.TotalReads += totalReads
	return nil
}

func (r memUsers) AddBlog(_ context.Context, userID, blogID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.undo.user(r.s, userID)
	u, ok := r.s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Blogs = append(u.Blogs, blogID)
	return nil
}

func (r memUsers) RemoveBlog(_ context.Context, userID, blogID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.undo.user(r.s, userID)
	u, ok := r.s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Blogs = removeAll(u.Blogs, blogID)
	return nil
}

// ---- blogs ----

type memBlogs struct {
	s    *MemoryStore
	undo *undoLog
}

func (r memBlogs) Create(_ context.Context, blog *models.Blog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.undo.blog(r.s, blog.ID)
	r.s.blogs[blog.ID] = cloneBlog(blog)
	return nil
}

func (r memBlogs) Update(_ context.Context, blog *models.Blog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.undo.blog(r.s, blog.ID)
	cur, ok := r.s.blogs[blog.ID]
	if !ok {
		return ErrNotFound
	}
	next := cloneBlog(blog)
	// 计数器和评论列表只能通过原子操作修改
	next.Activity = cur.Activity
	next.Comments = cur.Comments
	r.s.blogs[blog.ID] = next
	return nil
}

func (r memBlogs) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.undo.blog(r.s, id)
	delete(r.s.blogs, id)
	return nil
}

func (r memBlogs) FindByID(_ context.Context, id string) (*models.Blog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if b, ok := r.s.blogs[id]; ok {
		return cloneBlog(b), nil
	}
	return nil, ErrNotFound
}

func (r memBlogs) FindBySlug(_ context.Context, slug string) (*models.Blog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, b := range r.s.blogs {
		if b.BlogID == slug {
			return cloneBlog(b), nil
		}
	}
	return nil, ErrNotFound
}

func matchBlog(b *models.Blog, q BlogQuery) bool {
	if q.Draft != nil && b.Draft != *q.Draft {
		return false
	}
	if q.Author != "" && b.Author != q.Author {
		return false
	}
	if q.ExcludeSlug != "" && b.BlogID == q.ExcludeSlug {
		return false
	}
	if q.Tag != "" {
		found := false
		for _, t := range b.Tags {
			if t == q.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Query != "" && !strings.Contains(strings.ToLower(b.Title), strings.ToLower(q.Query)) {
		return false
	}
	return true
}

func (r memBlogs) filter(q BlogQuery) []models.Blog {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.Blog, 0)
	for _, b := range r.s.blogs {
		if matchBlog(b, q) {
			out = append(out, *cloneBlog(b))
		}
	}
	return out
}

func (r memBlogs) Find(_ context.Context, q BlogQuery) ([]models.Blog, error) {
	out := r.filter(q)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if q.Sort == SortTrending {
			if a.Activity.TotalReads != b.Activity.TotalReads {
				return a.Activity.TotalReads > b.Activity.TotalReads
			}
			if a.Activity.TotalLikes != b.Activity.TotalLikes {
				return a.Activity.TotalLikes > b.Activity.TotalLikes
			}
		}
		return a.PublishedAt.After(b.PublishedAt)
	})
	return paginate(out, q.Skip, q.Limit), nil
}

func paginate[T any](items []T, skip, limit int) []T {
	if skip >= len(items) {
		return items[:0]
	}
	if skip > 0 {
		items = items[skip:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func (r memBlogs) Count(_ context.Context, q BlogQuery) (int64, error) {
	return int64(len(r.filter(q))), nil
}

func (r memBlogs) ListIDs(_ context.Context) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ids := make([]string, 0, len(r.s.blogs))
	for id := range r.s.blogs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r memBlogs) IncrementActivity(_ context.Context, id string, d ActivityDelta) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.undo.blog(r.s, id)
	b, ok := r.s.blogs[id]
	if !ok {
		return ErrNotFound
	}
	b.Activity.TotalLikes += d.Likes
	b.Activity.TotalComments += d.Comments
	b.Activity.TotalParentComments += d.ParentComments
	b.Activity.TotalReads += d.Reads
	return nil
}

func (r memBlogs) RecountComments(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.undo.blog(r.s, id)
	b, ok := r.s.blogs[id]
	if !ok {
		return ErrNotFound
	}
	b.Activity.TotalComments, b.Activity.TotalParentComments = r.s.countComments(id)
	return nil
}

func (r memBlogs) AppendComment(_ context.Context, blogID, commentID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.undo.blog(r.s, blogID)
	b, ok := r.s.blogs[blogID]
	if !ok {
		return ErrNotFound
	}
	b.Comments = append(b.Comments, commentID)
	return nil
}

func (r memBlogs) RemoveComments(_ context.Context, blogID string, commentIDs []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.undo.blog(r.s, blogID)
	b, ok := r.s.blogs[blogID]
	if !ok {
		return ErrNotFound
	}
	b.Comments = removeAll(b.Comments, commentIDs...)
	return nil
}

// ---- comments ----

type memComments struct {
	s    *MemoryStore
	undo *undoLog
}

func (r memComments) Create(_ context.Context, c *models.Comment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.undo.comment(r.s, c.ID)
	r.s.comments[c.ID] = cloneComment(c)
	return nil
}

func (r memComments) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.undo.comment(r.s, id)
	delete(r.s.comments, id)
	return nil
}

func (r memComments) DeleteByBlog(_ context.Context, blogID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, c := range r.s.comments {
		if c.BlogID == blogID {
			r.undo.comment(r.s, id)
			delete(r.s.comments, id)
		}
	}
	return nil
}

func (r memComments) FindByID(_ context.Context, id string) (*models.Comment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if c, ok := r.s.comments[id]; ok {
		return cloneComment(c), nil
	}
	return nil, ErrNotFound
}

func (r memComments) FindByIDs(_ context.Context, ids []string) ([]models.Comment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.Comment, 0, len(ids))
	for _, id := range ids {
		if c, ok := r.s.comments[id]; ok {
			out = append(out, *cloneComment(c))
		}
	}
	return out, nil
}

func (r memComments) ListRoots(_ context.Context, blogID string, skip, limit int) ([]models.Comment, error) {
	r.s.mu.RLock()
	out := make([]models.Comment, 0)
	for _, c := range r.s.comments {
		if c.BlogID == blogID && !c.IsReply {
			out = append(out, *cloneComment(c))
		}
	}
	r.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CommentedAt.Equal(out[j].CommentedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CommentedAt.Before(out[j].CommentedAt)
	})
	return paginate(out, skip, limit), nil
}

func (r memComments) CountByBlog(_ context.Context, blogID string) (int64, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	total, parents := r.s.countComments(blogID)
	return total, parents, nil
}

// countComments 调用方需持有 s.mu
func (s *MemoryStore) countComments(blogID string) (total, parents int64) {
	for _, c := range s.comments {
		if c.BlogID != blogID {
			continue
		}
		total++
		if !c.IsReply {
			parents++
		}
	}
	return total, parents
}

func (r memComments) AppendChild(_ context.Context, parentID, childID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.undo.comment(r.s, parentID)
	p, ok := r.s.comments[parentID]
	if !ok {
		return ErrNotFound
	}
	p.Children = append(p.Children, childID)
	return nil
}

func (r memComments) RemoveChild(_ context.Context, parentID, childID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.undo.comment(r.s, parentID)
	p, ok := r.s.comments[parentID]
	if !ok {
		return ErrNotFound
	}
	p.Children = removeAll(p.Children, childID)
	return nil
}

// ---- notifications ----

type memNotifications struct {
	s    *MemoryStore
	undo *undoLog
}

func (r memNotifications) Create(_ context.Context, n *models.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.undo.notification(r.s, n.ID)
	r.s.notifications[n.ID] = cloneNotification(n)
	return nil
}

func (r memNotifications) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.undo.notification(r.s, id)
	delete(r.s.notifications, id)
	return nil
}

func (r memNotifications) DeleteByComment(_ context.Context, commentID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, n := range r.s.notifications {
		if (n.Comment != nil && *n.Comment == commentID) ||
			(n.RepliedOnComment != nil && *n.RepliedOnComment == commentID) {
			r.undo.notification(r.s, id)
			delete(r.s.notifications, id)
		}
	}
	return nil
}

func (r memNotifications) DeleteByBlog(_ context.Context, blogID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, n := range r.s.notifications {
		if n.Blog == blogID {
			r.undo.notification(r.s, id)
			delete(r.s.notifications, id)
		}
	}
	return nil
}

func (r memNotifications) FindLike(_ context.Context, userID, blogID string) (*models.Notification, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, n := range r.s.notifications {
		if n.Type == models.NotificationTypeLike && n.User == userID && n.Blog == blogID {
			cp := *n
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r memNotifications) filter(q NotificationQuery) []models.Notification {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.Notification, 0)
	for _, n := range r.s.notifications {
		if n.NotificationFor != q.For {
			continue
		}
		if q.Type != "" && n.Type != q.Type {
			continue
		}
		out = append(out, *n)
	}
	return out
}

func (r memNotifications) List(_ context.Context, q NotificationQuery) ([]models.Notification, error) {
	out := r.filter(q)
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, q.Skip, q.Limit), nil
}

func (r memNotifications) Count(_ context.Context, q NotificationQuery) (int64, error) {
	return int64(len(r.filter(q))), nil
}

func (r memNotifications) HasUnseen(_ context.Context, userID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, n := range r.s.notifications {
		if n.NotificationFor == userID && !n.Seen {
			return true, nil
		}
	}
	return false, nil
}

func (r memNotifications) MarkSeen(_ context.Context, ids []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range ids {
		if n, ok := r.s.notifications[id]; ok {
			r.undo.notification(r.s, id)
			n.Seen = true
		}
	}
	return nil
}
