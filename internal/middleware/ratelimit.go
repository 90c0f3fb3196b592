package middleware

import (
	"net/http"

	"github.com/devhappys/kutt-sub000/internal/logger"
	"github.com/devhappys/kutt-sub000/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
)

// RateLimit throttles callers per client IP. It guards the analytics API;
// short link hits are governed by per-link rules instead.
func RateLimit(store limiter.Store, rate limiter.Rate) gin.HandlerFunc {
	return mgin.NewMiddleware(
		limiter.New(store, rate),
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			response.Error(c, http.StatusTooManyRequests, "Too many requests")
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			logger.FromContext(c.Request.Context()).Error("Rate limiter unavailable", "error", err)
			response.Error(c, http.StatusServiceUnavailable, "Rate limiter unavailable")
		}),
	)
}
