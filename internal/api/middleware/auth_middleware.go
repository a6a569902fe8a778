package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cvbuilder/internal/auth"
)

// 上下文键。
const (
	ContextUserID             = "userID"
	ContextIsAdmin            = "isAdmin"
	ContextMustChangePassword = "mustChangePassword"
)

// TokenValidator 由 *auth.AuthService 实现。
type TokenValidator interface {
	ValidateTokenOfType(token, tokenType string) (*auth.TokenClaims, error)
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// AuthMiddleware 校验访问令牌并将用户身份注入上下文。
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		parts := strings.Fields(c.GetHeader("Authorization"))
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c)
			return
		}

		claims, err := validator.ValidateTokenOfType(parts[1], auth.TokenTypeAccess)
		if err != nil {
			abortUnauthorized(c)
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextIsAdmin, claims.IsAdmin)
		c.Set(ContextMustChangePassword, claims.MustChangePassword)
		c.Next()
	}
}

// UserID 返回已认证用户的 id。
func UserID(c *gin.Context) (uint, bool) {
	value, ok := c.Get(ContextUserID)
	if !ok {
		return 0, false
	}
	id, ok := value.(uint)
	return id, ok && id != 0
}

// RequireAdmin 只放行带 is_admin 声明的令牌。
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextIsAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}
		c.Next()
	}
}
