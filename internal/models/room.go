package models

import "time"

// Room is a named conversation. Names are unique across the service.
type Room struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	Participants []User    `db:"-" json:"participants"`
}

// RoomParticipant is one row of the room membership table joined with the user mirror.
type RoomParticipant struct {
	RoomID int64 `db:"room_id"`
	User
}
