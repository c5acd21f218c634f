package handlers

import (
	"github.com/gin-gonic/gin"

	"marketplace-chat/internal/middleware"
	"marketplace-chat/internal/telemetry"
)

func auditEvent(c *gin.Context, action, room, text string) telemetry.AuditEvent {
	return telemetry.AuditEvent{
		Level:     "INFO",
		Action:    action,
		Text:      text,
		Room:      room,
		RequestID: middleware.RequestIDFrom(c),
		UserID:    middleware.IdentityFrom(c).UserID,
	}
}
