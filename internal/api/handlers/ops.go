// internal/api/handlers/ops.go

package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"ctp-notifications/internal/common/logger"
	"ctp-notifications/internal/delivery"

	"github.com/gin-gonic/gin"
)

const (
	defaultDeadLetterLimit = 50
	maxDeadLetterLimit     = 500
	readyCheckTimeout      = 3 * time.Second
)

// DeadLetterReader lists dead-lettered units.
type DeadLetterReader interface {
	List(ctx context.Context, limit int) ([]delivery.DeadLetter, error)
	Len(ctx context.Context) (int64, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// OpsHandler serves the health, readiness and dead-letter endpoints.
type OpsHandler struct {
	version     string
	checks      map[string]HealthCheck
	deadLetters DeadLetterReader
	log         logger.Logger
}

func NewOpsHandler(version string, checks map[string]HealthCheck, deadLetters DeadLetterReader, log logger.Logger) *OpsHandler {
	return &OpsHandler{version: version, checks: checks, deadLetters: deadLetters, log: log}
}

// Health handles GET /health
func (h *OpsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": h.version})
}

// Ready handles GET /ready. Every check runs; any failure makes the service unready.
func (h *OpsHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyCheckTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			h.log.Warn("Readiness check failed", map[string]interface{}{"check": name, "error": err.Error()})
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "unready"
	}
	c.JSON(status, gin.H{"status": state, "checks": results})
}

// DeadLetters handles GET /api/deadLetters?limit=N
func (h *OpsHandler) DeadLetters(c *gin.Context) {
	limit := defaultDeadLetterLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxDeadLetterLimit)
	}

	ctx := c.Request.Context()
	entries, err := h.deadLetters.List(ctx, limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list dead letters"})
		return
	}
	total, err := h.deadLetters.Len(ctx)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count dead letters"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "items": entries})
}
