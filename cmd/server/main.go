package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blogsphere/internal/config"
	"blogsphere/internal/db"
	"blogsphere/internal/handlers"
	"blogsphere/internal/repository"
	"blogsphere/internal/router"
	"blogsphere/internal/services"
	"blogsphere/internal/utils"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	// 最先注册，其余 defer 执行完之后才退出
	exitCode := 0
	defer func() { os.Exit(exitCode) }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer closeStore()

	cache, err := utils.NewTTLCache(1024)
	if err != nil {
		logger.Fatal("init cache", zap.Error(err))
	}

	// Token 黑名单：有 Redis 时多实例共享
	var revoked services.RevocationList = services.NewLocalRevocationList(cfg.JWTTTL)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal("connect redis", zap.Error(err))
		}
		defer client.Close()
		revoked = services.NewRedisRevocationList(client)
	}
	tokens := services.NewTokenService(cfg.JWTSecret, cfg.JWTTTL, revoked)

	var publisher services.EventPublisher = services.NoopPublisher{}
	if cfg.RabbitMQURL != "" {
		p, err := services.NewRabbitMQPublisher(cfg.RabbitMQURL)
		if err != nil {
			logger.Warn("RabbitMQ unavailable, notification events disabled", zap.Error(err))
		} else {
			publisher = p
		}
	}

	var mailer services.Mailer = services.NoopMailer{}
	if m := services.NewMailService(services.MailConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.SMTPFrom,
	}, logger); m != nil {
		mailer = m
	}

	var uploads *services.UploadService
	if cfg.S3Bucket != "" {
		sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.AWSRegion)})
		if err != nil {
			logger.Fatal("init aws session", zap.Error(err))
		}
		uploads = services.NewUploadService(sess, cfg.S3Bucket, cfg.UploadURLTTL)
	}

	reconciler := services.NewReconciler(store, logger)
	reconciler.Start()
	if err := reconciler.StartCron(cfg.ReconcileCron); err != nil {
		logger.Fatal("schedule reconcile", zap.Error(err))
	}

	notifier := services.NewNotifier(store, publisher, mailer, cfg.SiteURL, logger)
	users := services.NewUserService(store, tokens, logger)
	blogs := services.NewBlogService(store, notifier, cache, logger)
	comments := services.NewCommentService(store, notifier, reconciler, logger)

	googleClientID := ""
	if cfg.GoogleEnabled() {
		googleClientID = cfg.GoogleClientID
	}
	google := handlers.NewGoogleAuth(googleClientID, cfg.GoogleClientSecret, cfg.SiteURL, users)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	router.RegisterRoutes(r, router.Options{
		Auth:          handlers.NewAuthHandler(users, tokens),
		Google:        google,
		Blogs:         handlers.NewBlogHandler(blogs),
		Comments:      handlers.NewCommentHandler(comments),
		Notifications: handlers.NewNotificationHandler(notifier),
		Users:         handlers.NewUserHandler(users, uploads),
		Tokens:        tokens,
		Logger:        logger,
		CORSOrigins:   cfg.CORSOrigins,
		SessionSecret: cfg.SessionSecret,
		AuthRateLimit: cfg.AuthRateLimit,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("blogsphere server starting", zap.String("port", cfg.Port), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	if err := waitForShutdown(quit, serverErr); err != nil {
		logger.Error("listen", zap.Error(err))
		exitCode = 1
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	reconciler.Stop(shutdownCtx)
	notifier.Wait()
	if err := publisher.Close(); err != nil {
		logger.Warn("close publisher", zap.Error(err))
	}
}

// waitForShutdown 阻塞到收到退出信号或监听失败，监听失败时返回其错误
func waitForShutdown(quit <-chan os.Signal, serverErr <-chan error) error {
	select {
	case <-quit:
		return nil
	case err := <-serverErr:
		return err
	}
}

// openStore 按 STORE_DRIVER 选择存储实现
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, func(), error) {
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("using in-memory store, data is lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	case "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		database, err := db.ConnectMongo(connectCtx, cfg.MongoURI, cfg.MongoDB, logger)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = database.Client().Disconnect(disconnectCtx)
		}
		return repository.NewMongoStore(database, cfg.MongoTransactions), closeFn, nil
	default:
		conn, err := db.OpenPostgres(cfg.DatabaseURL, cfg.GinMode == gin.DebugMode, logger)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if sqlDB, err := conn.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return repository.NewGormStore(conn), closeFn, nil
	}
}
