package jwt

import (
	"strings"

	"KnowledgeHub/pkg/back"
	"KnowledgeHub/pkg/util/myjwt"
	"KnowledgeHub/pkg/xerr"

	"github.com/gin-gonic/gin"
)

const (
	ContextUserID   = "userId"
	ContextUsername = "username"
)

func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			back.Error(c, xerr.Unauthorized, "missing or invalid authorization header")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := myjwt.ParseToken(tokenString)
		if err != nil {
			back.Error(c, xerr.Unauthorized, "invalid token")
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Next()
	}
}

// UserID 读取 Auth 写入的用户 ID，未认证时返回 0
func UserID(c *gin.Context) int64 {
	return c.GetInt64(ContextUserID)
}
