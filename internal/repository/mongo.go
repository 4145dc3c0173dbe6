package repository

import (
	"context"
	"errors"
	"regexp"

	"blogsphere/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	colUsers         = "users"
	colBlogs         = "blogs"
	colComments      = "comments"
	colNotifications = "notifications"
)

// MongoStore MongoDB 驱动。transactions 为 true 时 WithTx 使用会话事务（需要副本集），
// 否则逐步执行，失败后由调用方安排计数器对账。
type MongoStore struct {
	db           *mongo.Database
	transactions bool
}

func NewMongoStore(db *mongo.Database, transactions bool) *MongoStore {
	return &MongoStore{db: db, transactions: transactions}
}

func (s *MongoStore) Users() UserRepository {
	return mongoUsers{s.db.Collection(colUsers)}
}

func (s *MongoStore) Blogs() BlogRepository {
	return mongoBlogs{col: s.db.Collection(colBlogs), comments: s.db.Collection(colComments)}
}

func (s *MongoStore) Comments() CommentRepository {
	return mongoComments{s.db.Collection(colComments)}
}

func (s *MongoStore) Notifications() NotificationRepository {
	return mongoNotifications{s.db.Collection(colNotifications)}
}

func (s *MongoStore) Transactional() bool { return s.transactions }

func (s *MongoStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if !s.transactions {
		return fn(ctx, s)
	}
	sess, err := s.db.Client().StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, s)
	})
	return err
}

func mongoNotFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

func matched(res *mongo.UpdateResult, err error) error {
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func containsRegex(q string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(q), Options: "i"}
}

func findAll[T any](ctx context.Context, col *mongo.Collection, filter any, opts ...*options.FindOptions) ([]T, error) {
	cur, err := col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ---- users ----

type mongoUsers struct{ col *mongo.Collection }

func (r mongoUsers) Create(ctx context.Context, user *models.User) error {
	_, err := r.col.InsertOne(ctx, user)
	return err
}

func (r mongoUsers) Update(ctx context.Context, user *models.User) error {
	return matched(r.col.UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{"$set": bson.M{
		"personal_info": user.PersonalInfo,
		"social_links":  user.SocialLinks,
		"updatedAt":     user.UpdatedAt,
	}}))
}

func (r mongoUsers) first(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	if err := r.col.FindOne(ctx, filter).Decode(&user); err != nil {
		return nil, mongoNotFound(err)
	}
	return &user, nil
}

func (r mongoUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.first(ctx, bson.M{"_id": id})
}

func (r mongoUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, bson.M{"personal_info.email": email})
}

func (r mongoUsers) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.first(ctx, bson.M{"personal_info.username": username})
}

func (r mongoUsers) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	return findAll[models.User](ctx, r.col, bson.M{"_id": bson.M{"$in": ids}})
}

func (r mongoUsers) Search(ctx context.Context, query string, limit int) ([]models.User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "personal_info.username", Value: 1}}).
		SetLimit(int64(limit))
	return findAll[models.User](ctx, r.col, bson.M{"personal_info.username": containsRegex(query)}, opts)
}

func (r mongoUsers) IncrementAccount(ctx context.Context, id string, totalPosts, totalReads int64) error {
	return matched(r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{
		"account_info.total_posts": totalPosts,
		"account_info.total_reads": totalReads,
	}}))
}

func (r mongoUsers) AddBlog(ctx context.Context, userID, blogID string) error {
	return matched(r.col.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$push": bson.M{"blogs": blogID}}))
}

func (r mongoUsers) RemoveBlog(ctx context.Context, userID, blogID string) error {
	return matched(r.col.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$pull": bson.M{"blogs": blogID}}))
}

// ---- blogs ----

type mongoBlogs struct {
	col      *mongo.Collection
	comments *mongo.Collection
}

func (r mongoBlogs) Create(ctx context.Context, blog *models.Blog) error {
	_, err := r.col.InsertOne(ctx, blog)
	return err
}

func (r mongoBlogs) Update(ctx context.Context, blog *models.Blog) error {
	return matched(r.col.UpdateOne(ctx, bson.M{"_id": blog.ID}, bson.M{"$set": bson.M{
		"title":       blog.Title,
		"banner":      blog.Banner,
		"des":         blog.Des,
		"content":     blog.Content,
		"tags":        blog.Tags,
		"draft":       blog.Draft,
		"publishedAt": blog.PublishedAt,
		"updatedAt":   blog.UpdatedAt,
	}}))
}

func (r mongoBlogs) Delete(ctx context.Context, id string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (r mongoBlogs) first(ctx context.Context, filter bson.M) (*models.Blog, error) {
	var blog models.Blog
	if err := r.col.FindOne(ctx, filter).Decode(&blog); err != nil {
		return nil, mongoNotFound(err)
	}
	return &blog, nil
}

func (r mongoBlogs) FindByID(ctx context.Context, id string) (*models.Blog, error) {
	return r.first(ctx, bson.M{"_id": id})
}

func (r mongoBlogs) FindBySlug(ctx context.Context, slug string) (*models.Blog, error) {
	return r.first(ctx, bson.M{"blog_id": slug})
}

func blogFilter(q BlogQuery) bson.M {
	filter := bson.M{}
	if q.Draft != nil {
		filter["draft"] = *q.Draft
	}
	if q.Author != "" {
		filter["author"] = q.Author
	}
	if q.ExcludeSlug != "" {
		filter["blog_id"] = bson.M{"$ne": q.ExcludeSlug}
	}
	if q.Tag != "" {
		filter["tags"] = q.Tag
	}
	if q.Query != "" {
		filter["title"] = containsRegex(q.Query)
	}
	return filter
}

func (r mongoBlogs) Find(ctx context.Context, q BlogQuery) ([]models.Blog, error) {
	sort := bson.D{{Key: "publishedAt", Value: -1}}
	if q.Sort == SortTrending {
		sort = bson.D{
			{Key: "activity.total_reads", Value: -1},
			{Key: "activity.total_likes", Value: -1},
			{Key: "publishedAt", Value: -1},
		}
	}
	opts := options.Find().SetSort(sort).SetSkip(int64(q.Skip))
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return findAll[models.Blog](ctx, r.col, blogFilter(q), opts)
}

func (r mongoBlogs) Count(ctx context.Context, q BlogQuery) (int64, error) {
	return r.col.CountDocuments(ctx, blogFilter(q))
}

func (r mongoBlogs) ListIDs(ctx context.Context) ([]string, error) {
	type idOnly struct {
		ID string `bson:"_id"`
	}
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}})
	rows, err := findAll[idOnly](ctx, r.col, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

func (r mongoBlogs) IncrementActivity(ctx context.Context, id string, d ActivityDelta) error {
	return matched(r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{
		"activity.total_likes":           d.Likes,
		"activity.total_comments":        d.Comments,
		"activity.total_parent_comments": d.ParentComments,
		"activity.total_reads":           d.Reads,
	}}))
}

// errRecountConflict 多次重试后计数器仍在变化
var errRecountConflict = errors.New("comment counters kept changing during recount")

const recountAttempts = 3

// RecountComments 以读到的旧计数器为条件写入新值，期间有其他写入则重试。
// 开启事务时由 WithTx 的快照隔离保证一致。
func (r mongoBlogs) RecountComments(ctx context.Context, id string) error {
	comments := mongoComments{r.comments}
	for attempt := 0; attempt < recountAttempts; attempt++ {
		var blog struct {
			Activity models.Activity `bson:"activity"`
		}
		err := r.col.FindOne(ctx, bson.M{"_id": id},
			options.FindOne().SetProjection(bson.M{"activity": 1})).Decode(&blog)
		if err != nil {
			return mongoNotFound(err)
		}
		total, parents, err := comments.CountByBlog(ctx, id)
		if err != nil {
			return err
		}
		res, err := r.col.UpdateOne(ctx, bson.M{
			"_id":                            id,
			"activity.total_comments":        blog.Activity.TotalComments,
			"activity.total_parent_comments": blog.Activity.TotalParentComments,
		}, bson.M{"$set": bson.M{
			"activity.total_comments":        total,
			"activity.total_parent_comments": parents,
		}})
		if err != nil {
			return err
		}
		if res.MatchedCount > 0 {
			return nil
		}
	}
	return errRecountConflict
}

func (r mongoBlogs) AppendComment(ctx context.Context, blogID, commentID string) error {
	return matched(r.col.UpdateOne(ctx, bson.M{"_id": blogID}, bson.M{"$push": bson.M{"comments": commentID}}))
}

func (r mongoBlogs) RemoveComments(ctx context.Context, blogID string, commentIDs []string) error {
	return matched(r.col.UpdateOne(ctx, bson.M{"_id": blogID},
		bson.M{"$pull": bson.M{"comments": bson.M{"$in": commentIDs}}}))
}

// ---- comments ----

type mongoComments struct{ col *mongo.Collection }

func (r mongoComments) Create(ctx context.Context, c *models.Comment) error {
	_, err := r.col.InsertOne(ctx, c)
	return err
}

func (r mongoComments) Delete(ctx context.Context, id string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (r mongoComments) DeleteByBlog(ctx context.Context, blogID string) error {
	_, err := r.col.DeleteMany(ctx, bson.M{"blog_id": blogID})
	return err
}

func (r mongoComments) FindByID(ctx context.Context, id string) (*models.Comment, error) {
	var c models.Comment
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, mongoNotFound(err)
	}
	return &c, nil
}

func (r mongoComments) FindByIDs(ctx context.Context, ids []string) ([]models.Comment, error) {
	if len(ids) == 0 {
		return []models.Comment{}, nil
	}
	list, err := findAll[models.Comment](ctx, r.col, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
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

func (r mongoComments) ListRoots(ctx context.Context, blogID string, skip, limit int) ([]models.Comment, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "commentedAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))
	return findAll[models.Comment](ctx, r.col, bson.M{"blog_id": blogID, "isReply": false}, opts)
}

func (r mongoComments) CountByBlog(ctx context.Context, blogID string) (int64, int64, error) {
	total, err := r.col.CountDocuments(ctx, bson.M{"blog_id": blogID})
	if err != nil {
		return 0, 0, err
	}
	parents, err := r.col.CountDocuments(ctx, bson.M{"blog_id": blogID, "isReply": false})
	if err != nil {
		return 0, 0, err
	}
	return total, parents, nil
}

func (r mongoComments) AppendChild(ctx context.Context, parentID, childID string) error {
	return matched(r.col.UpdateOne(ctx, bson.M{"_id": parentID}, bson.M{"$push": bson.M{"children": childID}}))
}

func (r mongoComments) RemoveChild(ctx context.Context, parentID, childID string) error {
	return matched(r.col.UpdateOne(ctx, bson.M{"_id": parentID}, bson.M{"$pull": bson.M{"children": childID}}))
}

// ---- notifications ----

type mongoNotifications struct{ col *mongo.Collection }

func (r mongoNotifications) Create(ctx context.Context, n *models.Notification) error {
	_, err := r.col.InsertOne(ctx, n)
	return err
}

func (r mongoNotifications) Delete(ctx context.Context, id string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (r mongoNotifications) DeleteByComment(ctx context.Context, commentID string) error {
	_, err := r.col.DeleteMany(ctx, bson.M{"$or": bson.A{
		bson.M{"comment": commentID},
		bson.M{"replied_on_comment": commentID},
	}})
	return err
}

func (r mongoNotifications) DeleteByBlog(ctx context.Context, blogID string) error {
	_, err := r.col.DeleteMany(ctx, bson.M{"blog": blogID})
	return err
}

func (r mongoNotifications) FindLike(ctx context.Context, userID, blogID string) (*models.Notification, error) {
	var n models.Notification
	err := r.col.FindOne(ctx, bson.M{
		"type": models.NotificationTypeLike,
		"user": userID,
		"blog": blogID,
	}).Decode(&n)
	if err != nil {
		return nil, mongoNotFound(err)
	}
	return &n, nil
}

func notificationFilter(q NotificationQuery) bson.M {
	filter := bson.M{"notification_for": q.For}
	if q.Type != "" {
		filter["type"] = q.Type
	}
	return filter
}

func (r mongoNotifications) List(ctx context.Context, q NotificationQuery) ([]models.Notification, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(q.Skip))
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return findAll[models.Notification](ctx, r.col, notificationFilter(q), opts)
}

func (r mongoNotifications) Count(ctx context.Context, q NotificationQuery) (int64, error) {
	return r.col.CountDocuments(ctx, notificationFilter(q))
}

func (r mongoNotifications) HasUnseen(ctx context.Context, userID string) (bool, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"notification_for": userID, "seen": false},
		options.Count().SetLimit(1))
	return n > 0, err
}

func (r mongoNotifications) MarkSeen(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.col.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}}, bson.M{"$set": bson.M{"seen": true}})
	return err
}
