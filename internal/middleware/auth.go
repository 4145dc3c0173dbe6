package middleware

import (
	"strings"

	"blogsphere/internal/apperrors"
	"blogsphere/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	UserIDKey = "user_id"
	TokenKey  = "access_token"
)

// AuthRequired 校验 Authorization: Bearer <token>，并把用户 ID 写入上下文
func AuthRequired(tokens *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			apperrors.HandleError(c, apperrors.Unauthenticated("No access token"))
			return
		}

		userID, err := tokens.Verify(c.Request.Context(), token)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		c.Set(UserIDKey, userID)
		c.Set(TokenKey, token)
		c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// CurrentUserID 由 AuthRequired 写入
func CurrentUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

func CurrentToken(c *gin.Context) string {
	return c.GetString(TokenKey)
}
