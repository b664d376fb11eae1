package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/vending-machine/internal/logger"
	"go.uber.org/zap"
)

// RequestLogger 请求日志中间件，慢请求和5xx提升日志级别
func RequestLogger() gin.HandlerFunc {
	log := logger.GetModuleLogger("http")

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		cost := time.Since(start)
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("cost", cost),
			zap.String("client", c.ClientIP()),
		}

		switch {
		case c.Writer.Status() >= 500:
			log.Error("请求处理异常", fields...)
		case cost > time.Second:
			log.Warn("慢请求", fields...)
		default:
			log.Info("请求", fields...)
		}
	}
}

// Recovery panic兜底，记日志后返回500
func Recovery() gin.HandlerFunc {
	log := logger.GetModuleLogger("http")

	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("请求panic",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path))
				c.AbortWithStatusJSON(500, gin.H{
					"code":    -1,
					"message": "内部错误",
				})
			}
		}()
		c.Next()
	}
}
