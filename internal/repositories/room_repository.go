package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"marketplace-chat/internal/models"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomExists   = errors.New("room already exists")
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

// RoomRepository abstracts room and membership persistence.
type RoomRepository interface {
	GetOrCreate(ctx context.Context, name string) (models.Room, error)
	Create(ctx context.Context, name string) (models.Room, error)
	GetByName(ctx context.Context, name string) (models.Room, error)
	AddParticipant(ctx context.Context, roomID int64, userID int64) error
	IsParticipant(ctx context.Context, roomID int64, userID int64) (bool, error)
	ListForUser(ctx context.Context, userID int64) ([]models.Room, error)
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// GetOrCreate returns the room with the given name, creating it if needed.
// Concurrent callers race on the unique name constraint; the losers fall through
// to the select and observe the winner's row.
func (r *RoomRepo) GetOrCreate(ctx context.Context, name string) (models.Room, error) {
	if _, err := r.db.ExecContext(ctx, `INSERT INTO rooms (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name); err != nil {
		return models.Room{}, err
	}
	return r.GetByName(ctx, name)
}

// Create inserts a new room and fails with ErrRoomExists when the name is taken.
func (r *RoomRepo) Create(ctx context.Context, name string) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `INSERT INTO rooms (name) VALUES ($1) RETURNING id, name, created_at`, name)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return models.Room{}, ErrRoomExists
	}
	return room, err
}

// GetByName fetches a room by its unique name.
func (r *RoomRepo) GetByName(ctx context.Context, name string) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT id, name, created_at FROM rooms WHERE name=$1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// AddParticipant is idempotent.
func (r *RoomRepo) AddParticipant(ctx context.Context, roomID int64, userID int64) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO room_participants (room_id, user_id) VALUES ($1, $2)
        ON CONFLICT (room_id, user_id) DO NOTHING`, roomID, userID)
	return err
}

// IsParticipant checks room membership.
func (r *RoomRepo) IsParticipant(ctx context.Context, roomID int64, userID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM room_participants WHERE room_id=$1 AND user_id=$2)`, roomID, userID)
	return exists, err
}

// ListForUser returns the rooms the user participates in, newest first, with participants loaded.
func (r *RoomRepo) ListForUser(ctx context.Context, userID int64) ([]models.Room, error) {
	rooms := []models.Room{}
	err := r.db.SelectContext(ctx, &rooms, `SELECT r.id, r.name, r.created_at FROM rooms r
        INNER JOIN room_participants rp ON rp.room_id = r.id
        WHERE rp.user_id=$1
        ORDER BY r.created_at DESC`, userID)
	if err != nil || len(rooms) == 0 {
		return rooms, err
	}

	ids := make([]int64, 0, len(rooms))
	for _, room := range rooms {
		ids = append(ids, room.ID)
	}

	var participants []models.RoomParticipant
	err = r.db.SelectContext(ctx, &participants, `SELECT rp.room_id, u.id, u.username, u.email FROM room_participants rp
        INNER JOIN users u ON u.id = rp.user_id
        WHERE rp.room_id = ANY($1)
        ORDER BY rp.joined_at ASC`, pq.Array(ids))
	if err != nil {
		return nil, err
	}

	byRoom := make(map[int64][]models.User, len(rooms))
	for _, p := range participants {
		byRoom[p.RoomID] = append(byRoom[p.RoomID], p.User)
	}
	for i := range rooms {
		rooms[i].Participants = byRoom[rooms[i].ID]
		if rooms[i].Participants == nil {
			rooms[i].Participants = []models.User{}
		}
	}
	return rooms, nil
}
