package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ConnectMongo 连接 MongoDB，Ping 通过后建立索引
func ConnectMongo(ctx context.Context, uri, name string, log *zap.Logger) (*mongo.Database, error) {
	if uri == "" {
		return nil, fmt.Errorf("MONGO_URI is required for the mongo store")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetBSONOptions(&options.BSONOptions{
			// content 块里的嵌套文档解码成 map，空数组不写成 null
			DefaultDocumentM: true,
			NilSliceAsEmpty:  true,
		})

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	log.Info("MongoDB connection established", zap.String("db", name))

	database := client.Database(name)
	if err := ensureIndexes(ctx, database); err != nil {
		return nil, err
	}
	return database, nil
}

func ensureIndexes(ctx context.Context, database *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		"users": {
			{Keys: bson.D{{Key: "personal_info.email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "personal_info.username", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		"blogs": {
			{Keys: bson.D{{Key: "blog_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "draft", Value: 1}, {Key: "publishedAt", Value: -1}}},
			{Keys: bson.D{{Key: "author", Value: 1}}},
		},
		"comments": {
			{Keys: bson.D{{Key: "blog_id", Value: 1}, {Key: "isReply", Value: 1}, {Key: "commentedAt", Value: 1}}},
		},
		"notifications": {
			{Keys: bson.D{{Key: "notification_for", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "comment", Value: 1}}},
			{Keys: bson.D{{Key: "replied_on_comment", Value: 1}}},
			{
				Keys: bson.D{{Key: "user", Value: 1}, {Key: "blog", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"type": "like"}),
			},
		},
	}
	for col, models := range indexes {
		if _, err := database.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", col, err)
		}
	}
	return nil
}
