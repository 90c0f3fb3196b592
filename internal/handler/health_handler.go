package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/devhappys/kutt-sub000/internal/visit"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// DBPinger is satisfied by *pgxpool.Pool.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// RedisPinger is satisfied by *redis.Client.
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

type QueueReporter interface {
	Stats(ctx context.Context) (visit.QueueStats, error)
}

type HealthHandler struct {
	db      DBPinger
	redis   RedisPinger
	queue   QueueReporter
	version string
}

type HealthResponse struct {
	Status   string           `json:"status"`
	Checks   map[string]Check `json:"checks"`
	Metadata Metadata         `json:"metadata"`
}

type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type Metadata struct {
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// NewHealthHandler builds the probes. queue may be nil when visits are
// processed in-process.
func NewHealthHandler(db DBPinger, redis RedisPinger, queue QueueReporter, version string) *HealthHandler {
	return &HealthHandler{
		db:      db,
		redis:   redis,
		queue:   queue,
		version: version,
	}
}

func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	dbCheck := h.checkDatabase(ctx)
	checks["database"] = dbCheck
	if dbCheck.Status != "up" {
		allHealthy = false
	}

	redisCheck := h.checkRedis(ctx)
	checks["redis"] = redisCheck
	if redisCheck.Status != "up" {
		allHealthy = false
	}

	if h.queue != nil {
		queueCheck := h.checkQueue(ctx)
		checks["visit_queue"] = queueCheck
		if queueCheck.Status != "up" {
			allHealthy = false
		}
	}

	response := HealthResponse{
		Status: "up",
		Checks: checks,
		Metadata: Metadata{
			Version:   h.version,
			Timestamp: time.Now().Format(time.RFC3339),
		},
	}

	if !allHealthy {
		response.Status = "down"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (h *HealthHandler) checkDatabase(ctx context.Context) Check {
	if err := h.db.Ping(ctx); err != nil {
		return Check{
			Status:  "down",
			Message: err.Error(),
		}
	}

	return Check{
		Status:  "up",
		Message: "connected",
	}
}

func (h *HealthHandler) checkRedis(ctx context.Context) Check {
	if err := h.redis.Ping(ctx).Err(); err != nil {
		return Check{
			Status:  "down",
			Message: err.Error(),
		}
	}

	return Check{
		Status:  "up",
		Message: "connected",
	}
}

func (h *HealthHandler) checkQueue(ctx context.Context) Check {
	stats, err := h.queue.Stats(ctx)
	if err != nil {
		return Check{
			Status:  "down",
			Message: err.Error(),
		}
	}

	return Check{
		Status:  "up",
		Message: fmt.Sprintf("waiting=%d active=%d failed=%d", stats.Waiting, stats.Active, stats.Failed),
	}
}
