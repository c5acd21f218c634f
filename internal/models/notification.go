package models

import "time"

// VerbSentMessage is recorded when a participant posts to a room.
const VerbSentMessage = "sent_message"

// Notification is a per-recipient event. The actor and room references are weak:
// they become nil when the referenced row is removed.
type Notification struct {
	ID          int64     `db:"id" json:"id"`
	RecipientID int64     `db:"recipient_id" json:"recipient"`
	ActorID     *int64    `db:"actor_id" json:"actor_id"`
	Actor       *string   `db:"actor_name" json:"actor"`
	Verb        string    `db:"verb" json:"verb"`
	MessageID   *int64    `db:"target_message_id" json:"message_id"`
	Room        *string   `db:"room_name" json:"room"`
	Read        bool      `db:"read" json:"read"`
	Timestamp   time.Time `db:"created_at" json:"timestamp"`
}
