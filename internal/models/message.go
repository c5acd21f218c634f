package models

import "time"

const (
	MessageTypeText = "text"
	MessageTypeFile = "file"
)

// Message represents a chat message. Deleted messages keep their content.
type Message struct {
	ID          int64     `db:"id" json:"id"`
	RoomID      int64     `db:"room_id" json:"room"`
	RoomName    string    `db:"room_name" json:"room_name"`
	Sender      User      `db:"sender" json:"sender"`
	Content     *string   `db:"content" json:"content"`
	FileURL     *string   `db:"file_url" json:"file_url"`
	MessageType string    `db:"message_type" json:"message_type"`
	Edited      bool      `db:"edited" json:"edited"`
	Deleted     bool      `db:"deleted" json:"deleted"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// NewMessage carries the columns needed to insert a message.
type NewMessage struct {
	RoomID      int64
	SenderID    int64
	Content     *string
	FileURL     *string
	MessageType string
}
