package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"marketplace-chat/internal/models"
)

// NotificationRepository defines per-recipient notification persistence.
type NotificationRepository interface {
	CreateForRoom(ctx context.Context, roomID int64, actorID int64, messageID int64, verb string) ([]models.Notification, error)
	CountUnread(ctx context.Context, recipientID int64) (int, error)
	MarkRead(ctx context.Context, notificationID int64, recipientID int64) (bool, error)
	ListForRecipient(ctx context.Context, recipientID int64, limit int) ([]models.Notification, error)
}

// NotificationRepo is a sqlx-backed repository.
type NotificationRepo struct {
	db *sqlx.DB
}

// NewNotificationRepo constructs NotificationRepo.
func NewNotificationRepo(db *sqlx.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

const notificationColumns = `n.id, n.recipient_id, n.actor_id, u.username AS actor_name, n.verb,
        n.target_message_id, r.name AS room_name, n.read, n.created_at`

const notificationJoins = `LEFT JOIN users u ON u.id = n.actor_id
        LEFT JOIN rooms r ON r.id = n.target_room_id`

// CreateForRoom inserts one notification for every participant of the room except
// the actor, in a single statement.
func (r *NotificationRepo) CreateForRoom(ctx context.Context, roomID int64, actorID int64, messageID int64, verb string) ([]models.Notification, error) {
	notifications := []models.Notification{}
	err := r.db.SelectContext(ctx, &notifications, `WITH n AS (
            INSERT INTO notifications (recipient_id, actor_id, verb, target_message_id, target_room_id)
            SELECT rp.user_id, $2, $4, $3, rp.room_id FROM room_participants rp
            WHERE rp.room_id=$1 AND rp.user_id <> $2
            RETURNING *
        )
        SELECT `+notificationColumns+` FROM n `+notificationJoins+`
        ORDER BY n.id ASC`, roomID, actorID, messageID, verb)
	return notifications, err
}

// CountUnread counts the recipient's unread notifications.
func (r *NotificationRepo) CountUnread(ctx context.Context, recipientID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE recipient_id=$1 AND read = FALSE`, recipientID)
	return count, err
}

// MarkRead flags a notification read only when it belongs to the recipient.
// It reports whether a row matched.
func (r *NotificationRepo) MarkRead(ctx context.Context, notificationID int64, recipientID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE id=$1 AND recipient_id=$2`, notificationID, recipientID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListForRecipient returns the newest notifications first.
func (r *NotificationRepo) ListForRecipient(ctx context.Context, recipientID int64, limit int) ([]models.Notification, error) {
	notifications := []models.Notification{}
	err := r.db.SelectContext(ctx, &notifications, `SELECT `+notificationColumns+` FROM notifications n `+notificationJoins+`
        WHERE n.recipient_id=$1
        ORDER BY n.created_at DESC, n.id DESC
        LIMIT $2`, recipientID, limit)
	return notifications, err
}
