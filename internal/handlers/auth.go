package handlers

import (
	"blogsphere/internal/middleware"
	"blogsphere/internal/services"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	users  *services.UserService
	tokens *services.TokenService
}

func NewAuthHandler(users *services.UserService, tokens *services.TokenService) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens}
}

type signUpRequest struct {
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) SignUp(c *gin.Context) {
	var req signUpRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.users.SignUp(c.Request.Context(), req.Fullname, req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, result)
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) SignIn(c *gin.Context) {
	var req signInRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.users.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, result)
}

// SignOut 注销当前 token
func (h *AuthHandler) SignOut(c *gin.Context) {
	if err := h.tokens.Revoke(c.Request.Context(), middleware.CurrentToken(c)); err != nil {
		respondError(c, err)
		return
	}
	done(c)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.users.ChangePassword(c.Request.Context(), currentUser(c), req.CurrentPassword, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	ok(c, gin.H{"status": "password changed"})
}
