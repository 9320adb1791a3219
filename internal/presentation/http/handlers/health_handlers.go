package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/logging"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/persistence/database"
	"github.com/gin-gonic/gin"
)

// HealthHandlers answers liveness probes.
type HealthHandlers struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewHealthHandlers creates the health handler. db may be nil.
func NewHealthHandlers(db *database.DB, logger *logging.ChanneledLogger) *HealthHandlers {
	return &HealthHandlers{db: db, logger: logger}
}

// GetHealth handles GET /api/v1/health
func (h *HealthHandlers) GetHealth(c *gin.Context) {
	status := gin.H{"status": "ok", "database": "disabled"}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := database.VerifyConnectionWithLogger(ctx, h.db, h.logger); err != nil {
			status["status"] = "degraded"
			status["database"] = "unreachable"
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}
	c.JSON(http.StatusOK, status)
}
