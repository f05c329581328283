package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// requestLogger logs one line per request at Debug, or Warn for 5xx.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		level := slog.LevelDebug

		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}

		logger.LogAttrs(c.Request.Context(), level, "http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", status),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}

// recovery turns a handler panic into a 500 with the usual error body.
func recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("handler panic",
					slog.String("path", c.Request.URL.Path),
					slog.Any("panic", r),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Erro interno"})
			}
		}()

		c.Next()
	}
}
