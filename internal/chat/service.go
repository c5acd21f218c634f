package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"marketplace-chat/internal/auth"
	"marketplace-chat/internal/fabric"
	"marketplace-chat/internal/models"
	"marketplace-chat/internal/moderation"
	"marketplace-chat/internal/repositories"
)

const (
	MaxContentLength         = 4096
	DefaultNotificationLimit = 50
)

// Options tune admission and content policy.
type Options struct {
	// AutoEnroll adds identified non-participants to a room when they connect.
	AutoEnroll bool
	// Censor, when set, rewrites content before it is stored.
	Censor moderation.Censor
}

// Service implements every chat mutation once, so the WebSocket and REST paths
// persist and broadcast identically.
type Service struct {
	rooms         repositories.RoomRepository
	messages      repositories.MessageRepository
	notifications repositories.NotificationRepository
	users         repositories.UserRepository
	fabric        fabric.Fabric
	opts          Options
	validate      *validator.Validate
	logger        zerolog.Logger
}

// NewService wires a Service.
func NewService(
	rooms repositories.RoomRepository,
	messages repositories.MessageRepository,
	notifications repositories.NotificationRepository,
	users repositories.UserRepository,
	fab fabric.Fabric,
	opts Options,
	logger zerolog.Logger,
) *Service {
	return &Service{
		rooms:         rooms,
		messages:      messages,
		notifications: notifications,
		users:         users,
		fabric:        fab,
		opts:          opts,
		validate:      validator.New(),
		logger:        logger,
	}
}

// SendInput is a new message as submitted by a client.
type SendInput struct {
	Content     string `validate:"max=4096"`
	MessageType string `validate:"oneof=text file"`
	FileURL     string
}

// EditInput targets an existing message. RoomID restricts the lookup to one
// room; zero accepts any room.
type EditInput struct {
	MessageID int64
	Content   string
	RoomID    int64
}

// Touch mirrors an identified caller into the users table.
func (s *Service) Touch(ctx context.Context, caller auth.Identity) error {
	if caller.IsAnonymous() {
		return nil
	}
	return s.users.Upsert(ctx, models.User{ID: caller.UserID, Username: caller.Username, Email: caller.Email})
}

// JoinRoom resolves the room a session connects to. Identified callers are
// enrolled as participants under AutoEnroll; otherwise only existing
// participants are admitted. Anonymous callers join as read-only viewers.
func (s *Service) JoinRoom(ctx context.Context, name string, caller auth.Identity) (models.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Room{}, ErrRoomNameRequired
	}

	if !s.opts.AutoEnroll {
		return s.joinExisting(ctx, name, caller)
	}

	room, err := s.rooms.GetOrCreate(ctx, name)
	if err != nil {
		return models.Room{}, fmt.Errorf("get or create room: %w", err)
	}
	if caller.IsAnonymous() {
		return room, nil
	}
	if err := s.Touch(ctx, caller); err != nil {
		return models.Room{}, fmt.Errorf("touch user: %w", err)
	}
	if err := s.rooms.AddParticipant(ctx, room.ID, caller.UserID); err != nil {
		return models.Room{}, fmt.Errorf("add participant: %w", err)
	}
	return room, nil
}

func (s *Service) joinExisting(ctx context.Context, name string, caller auth.Identity) (models.Room, error) {
	room, err := s.rooms.GetByName(ctx, name)
	if errors.Is(err, repositories.ErrRoomNotFound) {
		return models.Room{}, ErrNotAdmitted
	}
	if err != nil {
		return models.Room{}, fmt.Errorf("get room: %w", err)
	}
	if caller.IsAnonymous() {
		return room, nil
	}
	member, err := s.rooms.IsParticipant(ctx, room.ID, caller.UserID)
	if err != nil {
		return models.Room{}, fmt.Errorf("check participant: %w", err)
	}
	if !member {
		return models.Room{}, ErrNotAdmitted
	}
	if err := s.Touch(ctx, caller); err != nil {
		return models.Room{}, fmt.Errorf("touch user: %w", err)
	}
	return room, nil
}

// SendMessage stores a message in room, broadcasts it, and notifies every other
// participant. Validation failures have no side effects.
func (s *Service) SendMessage(ctx context.Context, room models.Room, caller auth.Identity, in SendInput) (models.Message, error) {
	if caller.IsAnonymous() {
		return models.Message{}, ErrPermissionDenied
	}
	if in.MessageType == "" {
		in.MessageType = models.MessageTypeText
	}
	if err := s.validateSend(in); err != nil {
		return models.Message{}, err
	}

	switch in.MessageType {
	case models.MessageTypeText:
		if in.Content == "" {
			return models.Message{}, ErrEmptyMessage
		}
	case models.MessageTypeFile:
		if in.Content == "" && in.FileURL == "" {
			return models.Message{}, ErrEmptyMessage
		}
	}

	newMsg := models.NewMessage{
		RoomID:      room.ID,
		SenderID:    caller.UserID,
		MessageType: in.MessageType,
	}
	if in.Content != "" {
		newMsg.Content = lo.ToPtr(s.censor(in.Content))
	}
	if in.FileURL != "" {
		newMsg.FileURL = lo.ToPtr(in.FileURL)
	}

	msg, err := s.messages.Create(ctx, newMsg)
	if err != nil {
		return models.Message{}, fmt.Errorf("create message: %w", err)
	}
	if msg.RoomName == "" {
		msg.RoomName = room.Name
	}

	s.publish(ctx, fabric.ChatGroup(room.Name), models.Event{Type: models.EventChatMessage, Message: &msg})

	// The message is committed and already broadcast, so a notification
	// failure does not fail the send.
	notifications, err := s.notifications.CreateForRoom(ctx, room.ID, caller.UserID, msg.ID, models.VerbSentMessage)
	if err != nil {
		s.logger.Error().Err(err).Int64("message_id", msg.ID).Str("room", room.Name).Msg("create notifications failed")
		return msg, nil
	}
	for i := range notifications {
		n := notifications[i]
		s.publish(ctx, fabric.NotificationGroup(n.RecipientID), models.Event{Type: models.EventNotification, Notification: &n})
	}
	return msg, nil
}

// PostMessage is the REST entry point: the room must exist and the caller must
// already participate.
func (s *Service) PostMessage(ctx context.Context, roomName string, caller auth.Identity, in SendInput) (models.Message, error) {
	room, err := s.participantRoom(ctx, roomName, caller)
	if err != nil {
		return models.Message{}, err
	}
	if err := s.Touch(ctx, caller); err != nil {
		return models.Message{}, fmt.Errorf("touch user: %w", err)
	}
	return s.SendMessage(ctx, room, caller, in)
}

// EditMessage replaces a message's content. Only the sender may edit.
func (s *Service) EditMessage(ctx context.Context, caller auth.Identity, in EditInput) (models.Message, error) {
	msg, err := s.ownedMessage(ctx, caller, in.MessageID, in.RoomID)
	if err != nil {
		return models.Message{}, err
	}
	if len([]rune(in.Content)) > MaxContentLength {
		return models.Message{}, ErrContentTooLong
	}

	updated, err := s.messages.UpdateContent(ctx, msg.ID, s.censor(in.Content))
	if err != nil {
		return models.Message{}, fmt.Errorf("update message: %w", err)
	}

	s.publish(ctx, fabric.ChatGroup(updated.RoomName), models.Event{Type: models.EventChatMessageUpdate, Message: &updated})
	return updated, nil
}

// DeleteMessage soft-deletes a message. Only the sender may delete.
func (s *Service) DeleteMessage(ctx context.Context, caller auth.Identity, messageID int64, roomID int64) (models.Message, error) {
	msg, err := s.ownedMessage(ctx, caller, messageID, roomID)
	if err != nil {
		return models.Message{}, err
	}

	deleted, err := s.messages.SoftDelete(ctx, msg.ID)
	if err != nil {
		return models.Message{}, fmt.Errorf("delete message: %w", err)
	}

	s.publish(ctx, fabric.ChatGroup(deleted.RoomName), models.Event{Type: models.EventChatMessageDelete, MessageID: deleted.ID})
	return deleted, nil
}

// Typing broadcasts a typing indicator. Nothing is stored.
func (s *Service) Typing(ctx context.Context, room models.Room, caller auth.Identity, typing bool) {
	event := models.Event{
		Type:     models.EventChatTyping,
		Username: caller.DisplayName(),
		Typing:   typing,
	}
	if !caller.IsAnonymous() {
		event.SenderID = lo.ToPtr(caller.UserID)
	}
	s.publish(ctx, fabric.ChatGroup(room.Name), event)
}

// ListRooms returns the caller's rooms with participants.
func (s *Service) ListRooms(ctx context.Context, caller auth.Identity) ([]models.Room, error) {
	return s.rooms.ListForUser(ctx, caller.UserID)
}

// CreateRoom creates a room and enrolls its creator.
func (s *Service) CreateRoom(ctx context.Context, name string, caller auth.Identity) (models.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Room{}, ErrRoomNameRequired
	}
	if caller.IsAnonymous() {
		return models.Room{}, ErrPermissionDenied
	}
	if err := s.Touch(ctx, caller); err != nil {
		return models.Room{}, fmt.Errorf("touch user: %w", err)
	}

	room, err := s.rooms.Create(ctx, name)
	if err != nil {
		return models.Room{}, err
	}
	if err := s.rooms.AddParticipant(ctx, room.ID, caller.UserID); err != nil {
		return models.Room{}, fmt.Errorf("add participant: %w", err)
	}
	room.Participants = []models.User{{ID: caller.UserID, Username: caller.Username, Email: caller.Email}}
	return room, nil
}

// ListMessages returns a room's history. Non-participants get an empty list.
func (s *Service) ListMessages(ctx context.Context, roomName string, caller auth.Identity) ([]models.Message, error) {
	room, err := s.participantRoom(ctx, roomName, caller)
	if errors.Is(err, ErrNotParticipant) {
		return []models.Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.messages.ListByRoom(ctx, room.ID)
}

// UnreadCount counts the caller's unread notifications.
func (s *Service) UnreadCount(ctx context.Context, caller auth.Identity) (int, error) {
	return s.notifications.CountUnread(ctx, caller.UserID)
}

// MarkRead flags one of the caller's notifications read. Ids that do not belong
// to the caller are ignored; the call still succeeds.
func (s *Service) MarkRead(ctx context.Context, caller auth.Identity, notificationID int64) error {
	if notificationID <= 0 {
		return ErrNotificationIDRequired
	}
	matched, err := s.notifications.MarkRead(ctx, notificationID, caller.UserID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if !matched {
		s.logger.Debug().Int64("notification_id", notificationID).Int64("user_id", caller.UserID).Msg("mark_read matched no notification")
	}
	return nil
}

// ListNotifications returns the caller's newest notifications.
func (s *Service) ListNotifications(ctx context.Context, caller auth.Identity, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > DefaultNotificationLimit {
		limit = DefaultNotificationLimit
	}
	return s.notifications.ListForRecipient(ctx, caller.UserID, limit)
}

func (s *Service) participantRoom(ctx context.Context, roomName string, caller auth.Identity) (models.Room, error) {
	room, err := s.rooms.GetByName(ctx, strings.TrimSpace(roomName))
	if err != nil {
		return models.Room{}, err
	}
	if caller.IsAnonymous() {
		return models.Room{}, ErrNotParticipant
	}
	member, err := s.rooms.IsParticipant(ctx, room.ID, caller.UserID)
	if err != nil {
		return models.Room{}, fmt.Errorf("check participant: %w", err)
	}
	if !member {
		return models.Room{}, ErrNotParticipant
	}
	return room, nil
}

func (s *Service) ownedMessage(ctx context.Context, caller auth.Identity, messageID int64, roomID int64) (models.Message, error) {
	if messageID <= 0 {
		return models.Message{}, ErrMessageIDRequired
	}
	if caller.IsAnonymous() {
		return models.Message{}, ErrPermissionDenied
	}
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if roomID != 0 && msg.RoomID != roomID {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	if msg.Sender.ID != caller.UserID {
		return models.Message{}, ErrPermissionDenied
	}
	return msg, nil
}

func (s *Service) validateSend(in SendInput) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	for _, fe := range verrs {
		switch fe.Field() {
		case "MessageType":
			return ErrInvalidMessageType
		case "Content":
			return ErrContentTooLong
		}
	}
	return err
}

func (s *Service) censor(content string) string {
	if s.opts.Censor == nil {
		return content
	}
	return s.opts.Censor.Censor(content)
}

// publish is best-effort: the mutation has already been committed, so a fabric
// failure is logged rather than reported to the caller.
func (s *Service) publish(ctx context.Context, group string, event models.Event) {
	if err := s.fabric.Publish(ctx, group, event); err != nil {
		s.logger.Warn().Err(err).Str("group", group).Str("event", event.Type).Msg("fabric publish failed")
	}
}
