package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"Showtimes_Sync/internal/pkg"
)

const ContextOperatorKey = "operator"

// OperatorAuth 校验运维接口的 access token
func OperatorAuth(tokens *pkg.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "missing authorization header"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "invalid authorization format"})
			return
		}

		claims, err := tokens.ParseAccess(parts[1])
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, pkg.ErrTokenExpired) {
				msg = "token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": msg})
			return
		}

		// 注入操作人
		c.Set(ContextOperatorKey, claims.Operator)
		c.Next()
	}
}

// Logger 用 zap 记录每个请求
func Logger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if op := c.GetString(ContextOperatorKey); op != "" {
			fields = append(fields, zap.String("operator", op))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn("http request", fields...)
			return
		}
		log.Debug("http request", fields...)
	}
}
