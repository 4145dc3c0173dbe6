package router

import (
	"net/http"
	"time"

	"blogsphere/internal/handlers"
	"blogsphere/internal/middleware"
	"blogsphere/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Options 路由依赖，全部由 main 构造后注入
type Options struct {
	Auth          *handlers.AuthHandler
	Google        *handlers.GoogleAuth
	Blogs         *handlers.BlogHandler
	Comments      *handlers.CommentHandler
	Notifications *handlers.NotificationHandler
	Users         *handlers.UserHandler
	Tokens        *services.TokenService
	Logger        *zap.Logger

	CORSOrigins   []string
	SessionSecret string
	AuthRateLimit float64
}

func RegisterRoutes(r *gin.Engine, opts Options) {
	r.Use(middleware.Recovery(opts.Logger))
	r.Use(middleware.RequestLogger(opts.Logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     opts.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Google 跳转登录的 state 存在 cookie session 里
	store := cookie.NewStore([]byte(opts.SessionSecret))
	store.Options(sessions.Options{Path: "/auth", MaxAge: 600, HttpOnly: true})
	r.Use(sessions.Sessions("blogsphere_session", store))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 登录注册 (Auth Routes)，按 IP 限流
	limited := r.Group("/")
	limited.Use(middleware.RateLimit(opts.AuthRateLimit, 5))
	{
		limited.POST("/signup", opts.Auth.SignUp)                  // 邮箱注册
		limited.POST("/signin", opts.Auth.SignIn)                  // 邮箱登录
		limited.POST("/google-auth", opts.Google.TokenSignIn)      // Google access_token 登录
		limited.GET("/auth/google/login", opts.Google.Login)       // 跳转到 Google 授权页
		limited.GET("/auth/google/callback", opts.Google.Callback) // Google 授权回调
	}

	// 公共路由 (Public Routes)
	r.GET("/get-upload-url", opts.Users.UploadURL)            // 图片直传地址
	r.GET("/latest-blogs", opts.Blogs.Latest)                 // 最新文章
	r.POST("/latest-blogs", opts.Blogs.Latest)                // 最新文章 (分页)
	r.POST("/all-latest-blogs-count", opts.Blogs.CountLatest) // 最新文章总数
	r.GET("/trending-blogs", opts.Blogs.Trending)             // 热门文章
	r.POST("/search-blogs", opts.Blogs.Search)                // 搜索文章
	r.POST("/search-blogs-count", opts.Blogs.CountSearch)     // 搜索结果总数
	r.POST("/search-users", opts.Users.Search)                // 搜索用户
	r.POST("/get-profile", opts.Users.Profile)                // 用户主页
	r.POST("/get-blog", opts.Blogs.Get)                       // 文章详情
	r.POST("/get-blog-comments", opts.Comments.List)          // 根评论列表
	r.POST("/get-replies", opts.Comments.Replies)             // 回复列表

	// 受保护路由 (Protected Routes)
	authorized := r.Group("/")
	authorized.Use(middleware.AuthRequired(opts.Tokens))
	{
		authorized.POST("/signout", opts.Auth.SignOut)                      // 退出登录
		authorized.POST("/change-password", opts.Auth.ChangePassword)       // 修改密码
		authorized.POST("/update-profile-img", opts.Users.UpdateProfileImg) // 更新头像
		authorized.POST("/update-profile", opts.Users.UpdateProfile)        // 更新资料

		authorized.POST("/create-blog", opts.Blogs.Create)                      // 发布/保存草稿
		authorized.POST("/like-blog", opts.Blogs.Like)                          // 点赞/取消点赞
		authorized.POST("/isliked-by-user", opts.Blogs.IsLiked)                 // 是否已点赞
		authorized.POST("/user-written-blogs", opts.Blogs.UserBlogs)            // 我的文章
		authorized.POST("/user-written-blogs-count", opts.Blogs.CountUserBlogs) // 我的文章总数
		authorized.POST("/delete-blog", opts.Blogs.Delete)                      // 删除文章

		authorized.POST("/add-comment", opts.Comments.Add)       // 发表评论/回复
		authorized.POST("/delete-comment", opts.Comments.Delete) // 删除评论及回复

		authorized.GET("/new-notification", opts.Notifications.HasNew)        // 是否有新通知
		authorized.POST("/notifications", opts.Notifications.List)            // 通知列表
		authorized.POST("/all-notifications-count", opts.Notifications.Count) // 通知总数
	}
}
