package fabric

import (
	"context"
	"strconv"
	"strings"

	"marketplace-chat/internal/models"
)

const (
	chatPrefix         = "chat."
	notificationPrefix = "notifications."

	NamespaceChat          = "chat"
	NamespaceNotifications = "notifications"
)

// Subscriber receives events for the groups it joined. Deliver runs on the
// subscriber's own mailbox goroutine and must not block for long.
type Subscriber interface {
	ID() string
	Deliver(event models.Event) error
}

// Fabric fans events out to named groups of subscribers. Nothing is persisted:
// an event published to a group without members is dropped.
type Fabric interface {
	Join(ctx context.Context, group string, sub Subscriber) error
	Leave(ctx context.Context, group string, sub Subscriber) error
	Publish(ctx context.Context, group string, event models.Event) error
	Close() error
}

// ChatGroup names the broadcast group of a room.
func ChatGroup(room string) string {
	return chatPrefix + room
}

// NotificationGroup names the private notification group of a user.
func NotificationGroup(userID int64) string {
	return notificationPrefix + strconv.FormatInt(userID, 10)
}

// Namespace returns the metric label for a group name.
func Namespace(group string) string {
	switch {
	case strings.HasPrefix(group, chatPrefix):
		return NamespaceChat
	case strings.HasPrefix(group, notificationPrefix):
		return NamespaceNotifications
	default:
		return "unknown"
	}
}
