package handlers

import (
	"net/http"

	"blogsphere/internal/models"
	"blogsphere/internal/services"
	"blogsphere/internal/utils"

	"github.com/gin-gonic/gin"
)

type BlogHandler struct {
	blogs *services.BlogService
}

func NewBlogHandler(blogs *services.BlogService) *BlogHandler {
	return &BlogHandler{blogs: blogs}
}

type pageRequest struct {
	Page int `json:"page"`
}

// Latest GET /latest-blogs?page= 或 POST {page}
func (h *BlogHandler) Latest(c *gin.Context) {
	page := utils.ParsePage(c.Query("page"))
	if c.Request.Method == http.MethodPost {
		var req pageRequest
		if !bindJSON(c, &req) {
			return
		}
		page = req.Page
	}
	blogs, err := h.blogs.Latest(c.Request.Context(), page)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, gin.H{"blogs": blogs})
}

func (h *BlogHandler) CountLatest(c *gin.Context) {
	total, err := h.blogs.CountLatest(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, gin.H{"totalDocs": total})
}

func (h *BlogHandler) Trending(c *gin.Context) {
	blogs, err := h.blogs.Trending(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, gin.H{"blogs": blogs})
}

type searchRequest struct {
	Tag           string `json:"tag"`
	Query         string `json:"query"`
	Author        string `json:"author"`
	Page          int    `json:"page"`
	Limit         int    `json:"limit"`
	EliminateBlog string `json:"eliminate_blog"`
}

func (r searchRequest) input() services.SearchInput {
	return services.SearchInput{
		Tag:           r.Tag,
		Query:         r.Query,
		Author:        r.Author,
		Page:          r.Page,
		Limit:         r.Limit,
		EliminateBlog: r.EliminateBlog,
	}
}

func (h *BlogHandler) Search(c *gin.Context) {
	var req searchRequest
	if !bindJSON(c, &req) {
		return
	}
	blogs, err := h.blogs.Search(c.Request.Context(), req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, gin.H{"blogs": blogs})
}

func (h *BlogHandler) CountSearch(c *gin.Context) {
	var req searchRequest
	if !bindJSON(c, &req) {
		return
	}
	total, err := h.blogs.CountSearch(c.Request.Context(), req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, gin.H{"totalDocs": total})
}

type createBlogRequest struct {
	ID      string               `json:"id"`
	Title   string               `json:"title"`
	Des     string               `json:"des"`
	Banner  string               `json:"banner"`
	Tags    []string             `json:"tags"`
	Content models.EditorContent `json:"content"`
	Draft   bool                 `json:"draft"`
}

// Create 发布、保存草稿或编辑已有文章
func (h *BlogHandler) Create(c *gin.Context) {
	var req createBlogRequest
	if !bindJSON(c, &req) {
		return
	}
	blog, err := h.blogs.Publish(c.Request.Context(), currentUser(c), services.PublishInput{
		ID:      req.ID,
		Title:   req.Title,
		Des:     req.Des,
		Banner:  req.Banner,
		Tags:    req.Tags,
		Content: req.Content,
		Draft:   req.Draft,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, gin.H{"id": blog.BlogID})
}

type getBlogRequest struct {
	BlogID string `json:"blog_id"`
	Draft  bool   `json:"draft"`
	Mode   string `json:"mode"`
}

func (h *BlogHandler) Get(c *gin.Context) {
	var req getBlogRequest
	if !bindJSON(c, &req) {
		return
	}
	blog, err := h.blogs.GetBlog(c.Request.Context(), req.BlogID, req.Draft, req.Mode)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, gin.H{"blog": blog})
}

type likeRequest struct {
	ID            string `json:"_id"`
	IsLikedByUser bool   `json:"islikedByUser"`
}

func (h *BlogHandler) Like(c *gin.Context) {
	var req likeRequest
	if !bindJSON(c, &req) {
		return
	}
	liked, err := h.blogs.ToggleLike(c.Request.Context(), req.ID, currentUser(c), req.IsLikedByUser)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, gin.H{"liked_by_user": liked})
}

func (h *BlogHandler) IsLiked(c *gin.Context) {
	var req likeRequest
	if !bindJSON(c, &req) {
		return
	}
	liked, err := h.blogs.IsLiked(c.Request.Context(), req.ID, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, gin.H{"result": liked})
}

type userBlogsRequest struct {
	Page            int    `json:"page"`
	Draft           bool   `json:"draft"`
	Query           string `json:"query"`
	DeletedDocCount int    `json:"deletedDocCount"`
}

func (r userBlogsRequest) input(userID string) services.UserBlogsInput {
	return services.UserBlogsInput{
		UserID:  userID,
		Page:    r.Page,
		Draft:   r.Draft,
		Query:   r.Query,
		Deleted: r.DeletedDocCount,
	}
}

// UserBlogs 当前用户的文章管理列表
func (h *BlogHandler) UserBlogs(c *gin.Context) {
	var req userBlogsRequest
	if !bindJSON(c, &req) {
		return
	}
	blogs, err := h.blogs.UserBlogs(c.Request.Context(), req.input(currentUser(c)))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, gin.H{"blogs": blogs})
}

func (h *BlogHandler) CountUserBlogs(c *gin.Context) {
	var req userBlogsRequest
	if !bindJSON(c, &req) {
		return
	}
	total, err := h.blogs.CountUserBlogs(c.Request.Context(), req.input(currentUser(c)))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, gin.H{"totalDocs": total})
}

type deleteBlogRequest struct {
	BlogID string `json:"blog_id"`
}

func (h *BlogHandler) Delete(c *gin.Context) {
	var req deleteBlogRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.blogs.DeleteBlog(c.Request.Context(), req.BlogID, currentUser(c)); err != nil {
		respondError(c, err)
		return
	}
	done(c)
}
