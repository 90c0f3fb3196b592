package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/devhappys/kutt-sub000/internal/logger"
	"github.com/gin-gonic/gin"
)

const RequestIDHeader = "X-Request-ID"

var quietPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
}

// Logger attaches a request-scoped logger to the request context. An inbound
// X-Request-ID is reused so ids survive a proxy hop.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = logger.NewRequestID()
		}
		c.Header(RequestIDHeader, requestID)

		ctx := logger.WithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)

		log := logger.FromContext(ctx)

		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}

		c.Next()

		status := c.Writer.Status()
		logLevel := slog.LevelInfo
		switch {
		case status >= 500:
			logLevel = slog.LevelError
		case status >= 400 && status != 401 && status != 404:
			logLevel = slog.LevelWarn
		case quietPaths[c.Request.URL.Path]:
			logLevel = slog.LevelDebug
		}

		log.Log(ctx, logLevel, "HTTP request completed",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("route", c.FullPath()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.Int("size", c.Writer.Size()),
			slog.String("ip", c.ClientIP()),
			slog.String("user_agent", c.Request.UserAgent()),
		)

		if len(c.Errors) > 0 {
			for _, err := range c.Errors {
				log.Error("Request error occurred",
					slog.String("error", err.Error()),
					slog.String("type", strconv.FormatUint(uint64(err.Type), 10)),
				)
			}
		}
	}
}
