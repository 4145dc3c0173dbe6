package db

import (
	"fmt"

	"blogsphere/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenPostgres 连接数据库并完成自动迁移
func OpenPostgres(dsn string, debug bool, log *zap.Logger) (*gorm.DB, error) {
	if dsn == "" {
		// Fallback for local dev if not set
		dsn = "host=localhost user=postgres password=postgres dbname=blogsphere port=5432 sslmode=disable"
	}

	level := logger.Warn
	if debug {
		level = logger.Info
	}
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	log.Info("Database connection established")

	err = conn.AutoMigrate(
		&models.User{},
		&models.Blog{},
		&models.Comment{},
		&models.Notification{},
	)
	if err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	// 同一用户对同一篇文章最多一条 like 通知
	err = conn.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_like_once
		ON notifications (actor_id, blog) WHERE type = 'like'`).Error
	if err != nil {
		return nil, fmt.Errorf("create like index: %w", err)
	}
	log.Info("Database migration completed")
	return conn, nil
}
