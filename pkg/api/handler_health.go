package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dndtracker/dndtracker/pkg/database"
	"github.com/dndtracker/dndtracker/pkg/version"
)

// healthHandler handles GET /healthz. With the in-memory store there is no
// database to probe, so liveness alone answers healthy.
func (s *Server) healthHandler(c *gin.Context) {
	if s.dbClient == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"store":   "memory",
			"version": version.Full(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.dbClient.DB())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"store":    "postgres",
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"store":    "postgres",
		"version":  version.Full(),
		"database": dbHealth,
	})
}
