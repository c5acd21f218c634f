package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"marketplace-chat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for room messages.
type MessageRepository interface {
	Create(ctx context.Context, msg models.NewMessage) (models.Message, error)
	Get(ctx context.Context, messageID int64) (models.Message, error)
	ListByRoom(ctx context.Context, roomID int64) ([]models.Message, error)
	UpdateContent(ctx context.Context, messageID int64, content string) (models.Message, error)
	SoftDelete(ctx context.Context, messageID int64) (models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// messageColumns selects a message joined with its room name and sender, aliased
// so sqlx can scan the nested Sender struct.
const messageColumns = `m.id, m.room_id, r.name AS room_name,
        u.id AS "sender.id", u.username AS "sender.username", u.email AS "sender.email",
        m.content, m.file_url, m.message_type, m.edited, m.deleted, m.created_at, m.updated_at`

const messageJoins = `INNER JOIN rooms r ON r.id = m.room_id
        INNER JOIN users u ON u.id = m.sender_id`

// Create stores a message and returns it fully serialized.
func (r *MessageRepo) Create(ctx context.Context, in models.NewMessage) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `WITH m AS (
            INSERT INTO messages (room_id, sender_id, content, file_url, message_type)
            VALUES ($1, $2, $3, $4, $5)
            RETURNING *
        )
        SELECT `+messageColumns+` FROM m `+messageJoins,
		in.RoomID, in.SenderID, in.Content, in.FileURL, in.MessageType)
	return msg, err
}

// Get retrieves a single message, including soft-deleted ones.
func (r *MessageRepo) Get(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages m `+messageJoins+` WHERE m.id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListByRoom returns a room's messages in creation order.
func (r *MessageRepo) ListByRoom(ctx context.Context, roomID int64) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages m `+messageJoins+`
        WHERE m.room_id=$1
        ORDER BY m.created_at ASC, m.id ASC`, roomID)
	return msgs, err
}

// UpdateContent replaces the content and marks the message edited.
func (r *MessageRepo) UpdateContent(ctx context.Context, messageID int64, content string) (models.Message, error) {
	return r.update(ctx, `UPDATE messages SET content=$2, edited=TRUE, updated_at=NOW() WHERE id=$1 RETURNING *`, messageID, content)
}

// SoftDelete flags the message deleted. The content column is left untouched.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID int64) (models.Message, error) {
	return r.update(ctx, `UPDATE messages SET deleted=TRUE, updated_at=NOW() WHERE id=$1 RETURNING *`, messageID)
}

func (r *MessageRepo) update(ctx context.Context, stmt string, args ...any) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `WITH m AS (`+stmt+`)
        SELECT `+messageColumns+` FROM m `+messageJoins, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}
