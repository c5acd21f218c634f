package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"marketplace-chat/internal/observability"
)

const (
	kindChat          = "chat"
	kindNotifications = "notifications"

	eventConnect    = "ws_connect"
	eventDisconnect = "ws_disconnect"
	eventError      = "ws_error"
)

func wsRoutingKey(kind string) string {
	if kind == kindNotifications {
		return "ws_events.notifications"
	}
	return "ws_events.chats"
}

// publishLifecycle counts a lifecycle event and ships it to the ws_events exchange.
func publishLifecycle(ctx context.Context, info ConnInfo, event, reason string) {
	observability.IncWSEvent(info.Kind, event)

	duration := int64(0)
	if event != eventConnect {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        info.Kind,
			"resource_id": info.Resource,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": duration,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	_ = observability.PublishEvent(ctx, wsRoutingKey(info.Kind), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

// Registry tracks open clients so shutdown can close them.
type Registry struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[*client]struct{})}
}

func (r *Registry) add(c *client) {
	r.mu.Lock()
	r.clients[c] = struct{}{}
	r.mu.Unlock()
}

func (r *Registry) remove(c *client) {
	r.mu.Lock()
	delete(r.clients, c)
	r.mu.Unlock()
}

// Len reports the number of open clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// CloseAll sends a going-away close frame to every open client.
func (r *Registry) CloseAll(_ context.Context) error {
	r.mu.Lock()
	clients := make([]*client, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.Unlock()

	for _, c := range clients {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
	return nil
}
