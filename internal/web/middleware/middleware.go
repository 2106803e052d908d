package middleware

import (
	"time"

	"autoflow/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type MiddlewareManager struct {
	auth   *auth.TokenIssuer
	logger *zap.Logger
}

func NewMiddlewareManager(auth *auth.TokenIssuer, logger *zap.Logger) *MiddlewareManager {
	return &MiddlewareManager{
		auth:   auth,
		logger: logger,
	}
}

// RequestLogger logs every request once it has been served
func (m *MiddlewareManager) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
