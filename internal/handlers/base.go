package handlers

import (
	"errors"
	"io"
	"net/http"

	"blogsphere/internal/apperrors"
	"blogsphere/internal/middleware"

	"github.com/gin-gonic/gin"
)

// bindJSON 解析请求体，空 body 视为零值。解析失败时已写入 400 响应。
func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		apperrors.HandleError(c, apperrors.Validation("Invalid request body"))
		return false
	}
	return true
}

func currentUser(c *gin.Context) string {
	return middleware.CurrentUserID(c)
}

func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	apperrors.HandleError(c, err)
}

func ok(c *gin.Context, obj any) {
	c.JSON(http.StatusOK, obj)
}

func done(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "done"})
}
