package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"marketplace-chat/internal/chat"
	"marketplace-chat/internal/middleware"
	"marketplace-chat/internal/models"
)

// NotificationHandler serves the caller's notification inbox.
type NotificationHandler struct {
	service *chat.Service
	logger  zerolog.Logger
}

func NewNotificationHandler(service *chat.Service, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{service: service, logger: logger}
}

func (h *NotificationHandler) Register(group *gin.RouterGroup) {
	group.GET("/notifications", h.ListNotifications)
	group.POST("/notifications/:notification_id/read", h.MarkRead)
}

// ListNotifications returns the newest notifications and the unread count.
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	identity := middleware.IdentityFrom(c)
	limit, _ := strconv.Atoi(c.Query("limit"))

	notifications, err := h.service.ListNotifications(c.Request.Context(), identity, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	unread, err := h.service.UnreadCount(c.Request.Context(), identity)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifications, "unread": unread})
}

// MarkRead acknowledges like the WebSocket mark_read action, including for ids
// that belong to someone else.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := parseID(c, "notification_id", chat.ErrNotificationIDRequired, h.logger)
	if !ok {
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), middleware.IdentityFrom(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.NotificationMarkedEnvelope{Type: models.TypeNotificationMarked, ID: id})
}
