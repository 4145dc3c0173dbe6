package handlers

import (
	"blogsphere/internal/models"
	"blogsphere/internal/services"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	users   *services.UserService
	uploads *services.UploadService
}

func NewUserHandler(users *services.UserService, uploads *services.UploadService) *UserHandler {
	return &UserHandler{users: users, uploads: uploads}
}

type searchUsersRequest struct {
	Query string `json:"query"`
}

func (h *UserHandler) Search(c *gin.Context) {
	var req searchUsersRequest
	if !bindJSON(c, &req) {
		return
	}
	users, err := h.users.SearchUsers(c.Request.Context(), req.Query)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, gin.H{"users": users})
}

type profileRequest struct {
	Username string `json:"username"`
}

// Profile 用户主页资料
func (h *UserHandler) Profile(c *gin.Context) {
	var req profileRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.users.GetProfile(c.Request.Context(), req.Username)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, user)
}

type profileImgRequest struct {
	URL string `json:"url"`
}

func (h *UserHandler) UpdateProfileImg(c *gin.Context) {
	var req profileImgRequest
	if !bindJSON(c, &req) {
		return
	}
	img, err := h.users.UpdateProfileImg(c.Request.Context(), currentUser(c), req.URL)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, gin.H{"profile_img": img})
}

type updateProfileRequest struct {
	Username    string             `json:"username"`
	Bio         string             `json:"bio"`
	SocialLinks models.SocialLinks `json:"social_links"`
}

func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if !bindJSON(c, &req) {
		return
	}
	username, err := h.users.UpdateProfile(c.Request.Context(), currentUser(c), services.ProfileUpdate{
		Username:    req.Username,
		Bio:         req.Bio,
		SocialLinks: req.SocialLinks,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, gin.H{"username": username})
}

// UploadURL 返回 S3 预签名上传地址
func (h *UserHandler) UploadURL(c *gin.Context) {
	url, err := h.uploads.UploadURL()
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, gin.H{"uploadURL": url})
}
