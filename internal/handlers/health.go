package handlers

import (
	"net/http"
	"time"

	"github.com/dinewithlocals/backend/internal/database"
	"github.com/dinewithlocals/backend/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Health reports liveness and whether the database answers.
func Health(db *gorm.DB, hub *services.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		dbStatus := "up"
		if err := database.Ping(c.Request.Context(), db); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
			dbStatus = err.Error()
		}

		body := gin.H{
			"status":   status,
			"time":     time.Now().UTC(),
			"database": dbStatus,
		}
		if hub != nil {
			body["websocketClients"] = hub.GetConnectedClients()
		}
		c.JSON(code, body)
	}
}
