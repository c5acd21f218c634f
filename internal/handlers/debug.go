package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marketplace-chat/internal/telemetry"
)

// ConnectionCounter reports open WebSocket connections.
type ConnectionCounter interface {
	Len() int
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, connections ConnectionCounter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), auditEvent(c, "debug.audit_test", "", "audit test"))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/connections", func(c *gin.Context) {
		open := 0
		if connections != nil {
			open = connections.Len()
		}
		c.JSON(http.StatusOK, gin.H{"connections": open})
	})
}
