package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/devhappys/kutt-sub000/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestLogger_GeneratesRequestID(t *testing.T) {
	router := setupTestRouter()
	router.Use(Logger())

	var seen string
	router.GET("/ping", func(c *gin.Context) {
		seen = logger.RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
}

func TestLogger_ReusesInboundRequestID(t *testing.T) {
	router := setupTestRouter()
	router.Use(Logger())

	var seen string
	router.GET("/ping", func(c *gin.Context) {
		seen = logger.RequestIDFromContext(c.Request.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "edge-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "edge-123", seen)
	assert.Equal(t, "edge-123", w.Header().Get(RequestIDHeader))
}

func TestRateLimit_BlocksAfterLimit(t *testing.T) {
	store := memory.NewStore()
	router := setupTestRouter()
	router.Use(RateLimit(store, limiter.Rate{Period: time.Minute, Limit: 2}))
	router.GET("/api/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
		codes = append(codes, w.Code)
		if i == 2 {
			assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
		}
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimit_SeparateClients(t *testing.T) {
	store := memory.NewStore()
	router := setupTestRouter()
	router.Use(RateLimit(store, limiter.Rate{Period: time.Minute, Limit: 1}))
	router.GET("/api/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for _, addr := range []string{"192.0.2.1:1000", "192.0.2.2:1000"} {
		req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, addr)
	}
}
