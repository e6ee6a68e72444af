package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// GetLiveness handles GET /health/live.
func (s *Server) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetReadiness handles GET /health/ready. It fails while the database is
// unreachable.
func (s *Server) GetReadiness(c *gin.Context) {
	checks := gin.H{}
	status := http.StatusOK
	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			logger.Warn("readiness: database ping failed", zap.Error(err))
			checks["database"] = "unavailable"
			status = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}
	body := gin.H{"status": "ok", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "unavailable"
	}
	c.JSON(status, body)
}
