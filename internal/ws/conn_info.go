package ws

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"marketplace-chat/internal/auth"
	"marketplace-chat/internal/middleware"
)

// ConnInfo identifies a connection in ws_events.
type ConnInfo struct {
	ConnID      string
	Kind        string
	Resource    string
	UserID      int64
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// newConnInfo captures the handshake metadata before the session leaves the
// request goroutine.
func newConnInfo(c *gin.Context, kind, resource string, identity auth.Identity, traceID string) ConnInfo {
	return ConnInfo{
		ConnID:      uuid.NewString(),
		Kind:        kind,
		Resource:    resource,
		UserID:      identity.UserID,
		DeviceID:    middleware.DeviceIDFrom(c),
		IP:          c.ClientIP(),
		RequestID:   middleware.RequestIDFrom(c),
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
}
