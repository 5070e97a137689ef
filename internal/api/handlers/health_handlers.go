package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	"github.com/lotledger/ledger_service/pkg/logger"
	"github.com/lotledger/ledger_service/pkg/metrics"
	"github.com/lotledger/ledger_service/pkg/version"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	db     *sqlx.DB
	redis  *redis.Client
	logger *logger.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *sqlx.DB, redisClient *redis.Client, log *logger.Logger) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient, logger: log}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": version.Get(),
	})
}

// Ready handles GET /ready. The database is required; redis is reported but
// never fails readiness because every cached read degrades to recomputation.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx := c.Request.Context()
	checks := gin.H{}
	status := http.StatusOK

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Errorw("readiness: database ping failed", "error", err)
		checks["database"] = "down"
		status = http.StatusServiceUnavailable
	} else {
		checks["database"] = "up"
		metrics.RecordDBStats(h.db.Stats())
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "down"
		} else {
			checks["redis"] = "up"
		}
	} else {
		checks["redis"] = "disabled"
	}

	c.JSON(status, gin.H{"checks": checks})
}
