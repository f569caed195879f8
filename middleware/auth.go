package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ft-transcendence/server/cache"
	"github.com/ft-transcendence/server/config"
	"github.com/gin-gonic/gin"
)

const (
	UserIDKey    = "user_id"
	UserEmailKey = "user_email"
	UserNickKey  = "user_nick"
)

// Auth validates the Bearer JWT token and checks the session cache.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")

		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		// Check session still valid in cache.
		sessionKey := "session:" + tokenStr
		cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		exists, err := c.Exists(cacheCtx, sessionKey)
		if err != nil || !exists {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}
		// Sliding expiry: activity extends the session for another TTL.
		_ = c.Expire(cacheCtx, sessionKey, sec.JWTTTLH)

		ctx.Set(UserIDKey, claims.UserID)
		ctx.Set(UserEmailKey, claims.Email)
		ctx.Set(UserNickKey, claims.Nick)
		ctx.Next()
	}
}

// GetUserID retrieves the authenticated user ID from the Gin context.
func GetUserID(c *gin.Context) int64 {
	if v, exists := c.Get(UserIDKey); exists {
		return v.(int64)
	}
	return 0
}

// GetUserEmail retrieves the authenticated user's email from the Gin context.
func GetUserEmail(c *gin.Context) string {
	if v, exists := c.Get(UserEmailKey); exists {
		return v.(string)
	}
	return ""
}

// GetUserNick retrieves the authenticated user's nick from the Gin context.
func GetUserNick(c *gin.Context) string {
	if v, exists := c.Get(UserNickKey); exists {
		return v.(string)
	}
	return ""
}
