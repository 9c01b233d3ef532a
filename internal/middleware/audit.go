package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Audit logs successful admin mutations with the acting user.
func Audit(logger *zap.Logger, action string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}
		fields := []zap.Field{
			zap.String("action", action),
			zap.String("resource_id", c.Param("id")),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if claims := Claims(c); claims != nil {
			fields = append(fields, zap.String("user_id", claims.UserID), zap.String("email", claims.Email))
		}
		logger.Info("admin audit", fields...)
	}
}
