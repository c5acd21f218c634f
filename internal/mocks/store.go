package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"marketplace-chat/internal/models"
	"marketplace-chat/internal/repositories"
)

// MemoryStore is an in-memory stand-in for the PostgreSQL repositories. It
// enforces the same uniqueness and cascade rules the schema does.
type MemoryStore struct {
	mu            sync.Mutex
	users         map[int64]models.User
	rooms         map[string]*models.Room
	participants  map[int64][]int64
	messages      []*models.Message
	notifications []*models.Notification
	nextRoom      int64
	nextMessage   int64
	nextNotif     int64
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	var tick int64
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &MemoryStore{
		users:        make(map[int64]models.User),
		rooms:        make(map[string]*models.Room),
		participants: make(map[int64][]int64),
		now: func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Millisecond)
		},
	}
}

func (s *MemoryStore) Rooms() repositories.RoomRepository { return memRooms{s} }

func (s *MemoryStore) Messages() repositories.MessageRepository { return memMessages{s} }

func (s *MemoryStore) Notifications() repositories.NotificationRepository {
	return memNotifications{s}
}

func (s *MemoryStore) Users() repositories.UserRepository { return memUsers{s} }

// RoomCount returns the number of rooms with the given name.
func (s *MemoryStore) RoomCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[name]; ok {
		return 1
	}
	return 0
}

// NotificationsFor returns a copy of the recipient's notifications, oldest first.
func (s *MemoryStore) NotificationsFor(recipientID int64) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.notifications {
		if n.RecipientID == recipientID {
			out = append(out, *n)
		}
	}
	return out
}

// MessageCount returns the number of stored messages.
func (s *MemoryStore) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *MemoryStore) roomByID(id int64) *models.Room {
	for _, r := range s.rooms {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (s *MemoryStore) userOrID(id int64) models.User {
	if u, ok := s.users[id]; ok {
		return u
	}
	return models.User{ID: id}
}

func (s *MemoryStore) isParticipant(roomID, userID int64) bool {
	for _, id := range s.participants[roomID] {
		if id == userID {
			return true
		}
	}
	return false
}

type memRooms struct{ s *MemoryStore }

func (r memRooms) GetOrCreate(_ context.Context, name string) (models.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if room, ok := r.s.rooms[name]; ok {
		return *room, nil
	}
	r.s.nextRoom++
	room := &models.Room{ID: r.s.nextRoom, Name: name, CreatedAt: r.s.now()}
	r.s.rooms[name] = room
	return *room, nil
}

func (r memRooms) Create(_ context.Context, name string) (models.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rooms[name]; ok {
		return models.Room{}, repositories.ErrRoomExists
	}
	r.s.nextRoom++
	room := &models.Room{ID: r.s.nextRoom, Name: name, CreatedAt: r.s.now()}
	r.s.rooms[name] = room
	return *room, nil
}

func (r memRooms) GetByName(_ context.Context, name string) (models.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	room, ok := r.s.rooms[name]
	if !ok {
		return models.Room{}, repositories.ErrRoomNotFound
	}
	return *room, nil
}

func (r memRooms) AddParticipant(_ context.Context, roomID int64, userID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if !r.s.isParticipant(roomID, userID) {
		r.s.participants[roomID] = append(r.s.participants[roomID], userID)
	}
	return nil
}

func (r memRooms) IsParticipant(_ context.Context, roomID int64, userID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.isParticipant(roomID, userID), nil
}

func (r memRooms) ListForUser(_ context.Context, userID int64) ([]models.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rooms := []models.Room{}
	for _, room := range r.s.rooms {
		if !r.s.isParticipant(room.ID, userID) {
			continue
		}
		out := *room
		out.Participants = []models.User{}
		for _, id := range r.s.participants[room.ID] {
			out.Participants = append(out.Participants, r.s.userOrID(id))
		}
		rooms = append(rooms, out)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].CreatedAt.After(rooms[j].CreatedAt) })
	return rooms, nil
}

type memMessages struct{ s *MemoryStore }

func (m memMessages) Create(_ context.Context, in models.NewMessage) (models.Message, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	room := m.s.roomByID(in.RoomID)
	if room == nil {
		return models.Message{}, repositories.ErrRoomNotFound
	}
	m.s.nextMessage++
	now := m.s.now()
	msg := &models.Message{
		ID:          m.s.nextMessage,
		RoomID:      room.ID,
		RoomName:    room.Name,
		Sender:      m.s.userOrID(in.SenderID),
		Content:     in.Content,
		FileURL:     in.FileURL,
		MessageType: in.MessageType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.s.messages = append(m.s.messages, msg)
	return *msg, nil
}

func (m memMessages) Get(_ context.Context, messageID int64) (models.Message, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	msg := m.find(messageID)
	if msg == nil {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	return *msg, nil
}

func (m memMessages) ListByRoom(_ context.Context, roomID int64) ([]models.Message, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	msgs := []models.Message{}
	for _, msg := range m.s.messages {
		if msg.RoomID == roomID {
			msgs = append(msgs, *msg)
		}
	}
	return msgs, nil
}

func (m memMessages) UpdateContent(_ context.Context, messageID int64, content string) (models.Message, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	msg := m.find(messageID)
	if msg == nil {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	msg.Content = &content
	msg.Edited = true
	msg.UpdatedAt = m.s.now()
	return *msg, nil
}

func (m memMessages) SoftDelete(_ context.Context, messageID int64) (models.Message, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	msg := m.find(messageID)
	if msg == nil {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	msg.Deleted = true
	msg.UpdatedAt = m.s.now()
	return *msg, nil
}

func (m memMessages) find(id int64) *models.Message {
	for _, msg := range m.s.messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

type memNotifications struct{ s *MemoryStore }

func (n memNotifications) CreateForRoom(_ context.Context, roomID int64, actorID int64, messageID int64, verb string) ([]models.Notification, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	room := n.s.roomByID(roomID)
	if room == nil {
		return nil, repositories.ErrRoomNotFound
	}
	actor := n.s.userOrID(actorID)
	out := []models.Notification{}
	for _, recipient := range n.s.participants[roomID] {
		if recipient == actorID {
			continue
		}
		n.s.nextNotif++
		actorName := actor.Username
		roomName := room.Name
		target := messageID
		aid := actorID
		notif := &models.Notification{
			ID:          n.s.nextNotif,
			RecipientID: recipient,
			ActorID:     &aid,
			Actor:       &actorName,
			Verb:        verb,
			MessageID:   &target,
			Room:        &roomName,
			Timestamp:   n.s.now(),
		}
		n.s.notifications = append(n.s.notifications, notif)
		out = append(out, *notif)
	}
	return out, nil
}

func (n memNotifications) CountUnread(_ context.Context, recipientID int64) (int, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	count := 0
	for _, notif := range n.s.notifications {
		if notif.RecipientID == recipientID && !notif.Read {
			count++
		}
	}
	return count, nil
}

func (n memNotifications) MarkRead(_ context.Context, notificationID int64, recipientID int64) (bool, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	for _, notif := range n.s.notifications {
		if notif.ID == notificationID && notif.RecipientID == recipientID {
			notif.Read = true
			return true, nil
		}
	}
	return false, nil
}

func (n memNotifications) ListForRecipient(_ context.Context, recipientID int64, limit int) ([]models.Notification, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	out := []models.Notification{}
	for i := len(n.s.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		if notif := n.s.notifications[i]; notif.RecipientID == recipientID {
			out = append(out, *notif)
		}
	}
	return out, nil
}

type memUsers struct{ s *MemoryStore }

func (u memUsers) Upsert(_ context.Context, user models.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	u.s.users[user.ID] = user
	return nil
}
