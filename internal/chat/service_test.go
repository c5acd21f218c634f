package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketplace-chat/internal/auth"
	"marketplace-chat/internal/fabric"
	"marketplace-chat/internal/mocks"
	"marketplace-chat/internal/models"
	"marketplace-chat/internal/moderation"
	"marketplace-chat/internal/repositories"
)

var (
	alice = auth.Identity{UserID: 1, Username: "alice", Email: "alice@example.com"}
	bob   = auth.Identity{UserID: 2, Username: "bob", Email: "bob@example.com"}
	carol = auth.Identity{UserID: 3, Username: "carol", Email: "carol@example.com"}
)

type fixture struct {
	store  *mocks.MemoryStore
	fabric *mocks.RecordingFabric
	svc    *Service
}

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()
	store := mocks.NewMemoryStore()
	fab := &mocks.RecordingFabric{}
	svc := NewService(store.Rooms(), store.Messages(), store.Notifications(), store.Users(), fab, opts, zerolog.Nop())
	return fixture{store: store, fabric: fab, svc: svc}
}

func (f fixture) join(t *testing.T, room string, ids ...auth.Identity) models.Room {
	t.Helper()
	var r models.Room
	for _, id := range ids {
		var err error
		r, err = f.svc.JoinRoom(context.Background(), room, id)
		require.NoError(t, err)
	}
	return r
}

func TestJoinRoomConcurrentCreatorsShareOneRoom(t *testing.T) {
	f := newFixture(t, Options{AutoEnroll: true})

	var wg sync.WaitGroup
	ids := make(chan int64, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room, err := f.svc.JoinRoom(context.Background(), "trip-7", auth.Identity{UserID: int64(i + 1)})
			assert.NoError(t, err)
			ids <- room.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	first := <-ids
	for id := range ids {
		assert.Equal(t, first, id)
	}
	assert.Equal(t, 1, f.store.RoomCount("trip-7"))
}

func TestJoinRoomRequiresName(t *testing.T) {
	f := newFixture(t, Options{AutoEnroll: true})
	_, err := f.svc.JoinRoom(context.Background(), "  ", alice)
	assert.ErrorIs(t, err, ErrRoomNameRequired)
}

func TestJoinRoomAnonymousIsNotEnrolled(t *testing.T) {
	f := newFixture(t, Options{AutoEnroll: true})
	room := f.join(t, "trip-1", auth.Anonymous)

	member, err := f.store.Rooms().IsParticipant(context.Background(), room.ID, 0)
	require.NoError(t, err)
	assert.False(t, member)
}

func TestJoinRoomWithoutAutoEnroll(t *testing.T) {
	f := newFixture(t, Options{AutoEnroll: false})
	ctx := context.Background()

	_, err := f.svc.JoinRoom(ctx, "trip-9", alice)
	assert.ErrorIs(t, err, ErrNotAdmitted)

	room, err := f.svc.CreateRoom(ctx, "trip-9", alice)
	require.NoError(t, err)

	joined, err := f.svc.JoinRoom(ctx, "trip-9", alice)
	require.NoError(t, err)
	assert.Equal(t, room.ID, joined.ID)

	_, err = f.svc.JoinRoom(ctx, "trip-9", bob)
	assert.ErrorIs(t, err, ErrNotAdmitted)
}

func TestSendMessageRejectsEmptyTextWithoutSideEffects(t *testing.T) {
	f := newFixture(t, Options{AutoEnroll: true})
	room := f.join(t, "trip-1", alice, bob)

	_, err := f.svc.SendMessage(context.Background(), room, alice, SendInput{MessageType: models.MessageTypeText})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	assert.Zero(t, f.store.MessageCount())
	assert.Empty(t, f.fabric.Published())
	assert.Empty(t, f.store.NotificationsFor(bob.UserID))
}

func TestSendMessageAcceptsWhitespaceText(t *testing.T) {
	f := newFixture(t, Options{AutoEnroll: true})
	room := f.join(t, "trip-1", alice)

	msg, err := f.svc.SendMessage(context.Background(), room, alice, SendInput{Content: "   "})
	require.NoError(t, err)
	assert.Equal(t, "   ", lo.FromPtr(msg.Content))
	assert.Equal(t, 1, f.store.MessageCount())
}

func TestSendMessageSurvivesNotificationFailure(t *testing.T) {
	store := mocks.NewMemoryStore()
	fab := &mocks.RecordingFabric{}
	notifications := &mocks.NotificationRepositoryMock{}
	notifications.On("CreateForRoom", mock.Anything, mock.Anything, alice.UserID, mock.Anything, models.VerbSentMessage).
		Return(nil, errors.New("connection reset")).Once()
	svc := NewService(store.Rooms(), store.Messages(), notifications, store.Users(), fab, Options{AutoEnroll: true}, zerolog.Nop())

	ctx := context.Background()
	room, err := svc.JoinRoom(ctx, "trip-1", alice)
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, "trip-1", bob)
	require.NoError(t, err)

	msg, err := svc.SendMessage(ctx, room, alice, SendInput{Content: "Leaving at 9"})
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.Len(t, fab.PublishedTo(fabric.ChatGroup("trip-1")), 1)
	assert.Empty(t, fab.PublishedTo(fabric.NotificationGroup(bob.UserID)))
	notifications.AssertExpectations(t)
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t, Options{AutoEnroll: true})
	room := f.join(t, "trip-1", alice)
	ctx := context.Background()

	_, err := f.svc.SendMessage(ctx, room, alice, SendInput{Content: "hi", MessageType: "video"})
	assert.ErrorIs(t, err, ErrInvalidMessageType)

	_, err = f.svc.SendMessage(ctx, room, alice, SendInput{Content: strings.Repeat("x", MaxContentLength+1)})
	assert.ErrorIs(t, err, ErrContentTooLong)

	_, err = f.svc.SendMessage(ctx, room, alice, SendInput{MessageType: models.MessageTypeFile})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = f.svc.SendMessage(ctx, room, auth.Anonymous, SendInput{Content: "hi"})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	assert.Zero(t, f.store.MessageCount())
}

func TestSendMessageNotifiesEveryoneButSender(t *testing.T) {
	f := newFixture(t, Options{AutoEnroll: true})
	room := f.join(t, "trip-1", alice, bob, carol)

	msg, err := f.svc.SendMessage(context.Background(), room, alice, SendInput{Content: "on my way"})
	require.NoError(t, err)
	assert.Equal(t, "alice", msg.Sender.Username)

	assert.Empty(t, f.store.NotificationsFor(alice.UserID))
	for _, recipient := range []auth.Identity{bob, carol} {
		notifs := f.store.NotificationsFor(recipient.UserID)
		require.Len(t, notifs, 1)
		assert.Equal(t, models.VerbSentMessage, notifs[0].Verb)
		assert.Equal(t, "alice", *notifs[0].Actor)
		assert.Equal(t, msg.ID, *notifs[0].MessageID)

		events := f.fabric.PublishedTo(fabric.NotificationGroup(recipient.UserID))
		require.Len(t, events, 1)
		assert.Equal(t, models.EventNotification, events[0].Type)
		assert.Equal(t, notifs[0].ID, events[0].Notification.ID)
	}
	assert.Empty(t, f.fabric.PublishedTo(fabric.NotificationGroup(alice.UserID)))

	chatEvents := f.fabric.PublishedTo(fabric.ChatGroup("trip-1"))
	require.Len(t, chatEvents, 1)
	assert.Equal(t, models.EventChatMessage, chatEvents[0].Type)
	assert.Equal(t, msg.ID, chatEvents[0].Message.ID)
}

func TestEditAndDeleteRequireSender(t *testing.T) {
	f := newFixture(t, Options{AutoEnroll: true})
	room := f.join(t, "trip-1", alice, bob)
	ctx := context.Background()

	msg, err := f.svc.SendMessage(ctx, room, alice, SendInput{Content: "original"})
	require.NoError(t, err)
	before := len(f.fabric.Published())

	_, err = f.svc.EditMessage(ctx, bob, EditInput{MessageID: msg.ID, Content: "hijack"})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = f.svc.DeleteMessage(ctx, bob, msg.ID, 0)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	stored, err := f.store.Messages().Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", lo.FromPtr(stored.Content))
	assert.False(t, stored.Edited)
	assert.False(t, stored.Deleted)
	assert.Len(t, f.fabric.Published(), before)
}

func TestEditDeleteLookupErrors(t *testing.T) {
	f := newFixture(t, Options{AutoEnroll: true})
	ctx := context.Background()

	_, err := f.svc.EditMessage(ctx, alice, EditInput{})
	assert.ErrorIs(t, err, ErrMessageIDRequired)
	_, err = f.svc.DeleteMessage(ctx, alice, 0, 0)
	assert.ErrorIs(t, err, ErrMessageIDRequired)
	_, err = f.svc.EditMessage(ctx, alice, EditInput{MessageID: 99, Content: "x"})
	assert.ErrorIs(t, err, repositories.ErrMessageNotFound)

	room := f.join(t, "trip-1", alice)
	other := f.join(t, "trip-2", alice)
	msg, err := f.svc.SendMessage(ctx, room, alice, SendInput{Content: "hello"})
	require.NoError(t, err)

	_, err = f.svc.DeleteMessage(ctx, alice, msg.ID, other.ID)
	assert.ErrorIs(t, err, repositories.ErrMessageNotFound)
}

func TestSoftDeleteKeepsContent(t *testing.T) {
	f := newFixture(t, Options{AutoEnroll: true})
	room := f.join(t, "trip-1", alice)
	ctx := context.Background()

	msg, err := f.svc.SendMessage(ctx, room, alice, SendInput{Content: "pickup at 9"})
	require.NoError(t, err)

	deleted, err := f.svc.DeleteMessage(ctx, alice, msg.ID, room.ID)
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)
	assert.Equal(t, "pickup at 9", lo.FromPtr(deleted.Content))

	events := f.fabric.PublishedTo(fabric.ChatGroup("trip-1"))
	last := events[len(events)-1]
	assert.Equal(t, models.EventChatMessageDelete, last.Type)
	assert.Equal(t, msg.ID, last.MessageID)
}

func TestMarkReadIsScopedToRecipient(t *testing.T) {
	f := newFixture(t, Options{AutoEnroll: true})
	room := f.join(t, "trip-1", alice, bob)
	ctx := context.Background()

	_, err := f.svc.SendMessage(ctx, room, alice, SendInput{Content: "hello"})
	require.NoError(t, err)
	notif := f.store.NotificationsFor(bob.UserID)[0]

	require.NoError(t, f.svc.MarkRead(ctx, carol, notif.ID))
	unread, err := f.svc.UnreadCount(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	require.NoError(t, f.svc.MarkRead(ctx, bob, notif.ID))
	unread, err = f.svc.UnreadCount(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)

	assert.ErrorIs(t, f.svc.MarkRead(ctx, bob, 0), ErrNotificationIDRequired)
}

func TestListMessagesForNonParticipantIsEmpty(t *testing.T) {
	f := newFixture(t, Options{AutoEnroll: true})
	room := f.join(t, "trip-1", alice)
	ctx := context.Background()

	_, err := f.svc.SendMessage(ctx, room, alice, SendInput{Content: "private"})
	require.NoError(t, err)

	msgs, err := f.svc.ListMessages(ctx, "trip-1", bob)
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)

	msgs, err = f.svc.ListMessages(ctx, "trip-1", alice)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	_, err = f.svc.ListMessages(ctx, "missing", alice)
	assert.ErrorIs(t, err, repositories.ErrRoomNotFound)
}

func TestTripScenarioSendThenEdit(t *testing.T) {
	f := newFixture(t, Options{AutoEnroll: true})
	ctx := context.Background()
	room := f.join(t, "trip-42", alice, bob)

	msg, err := f.svc.SendMessage(ctx, room, alice, SendInput{Content: "Arriving at 5pm"})
	require.NoError(t, err)

	edited, err := f.svc.EditMessage(ctx, alice, EditInput{MessageID: msg.ID, Content: "Arriving at 6pm", RoomID: room.ID})
	require.NoError(t, err)
	assert.True(t, edited.Edited)
	assert.Equal(t, "Arriving at 6pm", lo.FromPtr(edited.Content))

	events := f.fabric.PublishedTo(fabric.ChatGroup("trip-42"))
	require.Len(t, events, 2)
	assert.Equal(t, models.EventChatMessage, events[0].Type)
	assert.Equal(t, "Arriving at 5pm", lo.FromPtr(events[0].Message.Content))
	assert.Equal(t, models.EventChatMessageUpdate, events[1].Type)
	assert.Equal(t, "Arriving at 6pm", lo.FromPtr(events[1].Message.Content))

	notifs := f.store.NotificationsFor(bob.UserID)
	require.Len(t, notifs, 1)
	assert.Equal(t, "trip-42", *notifs[0].Room)

	history, err := f.svc.ListMessages(ctx, "trip-42", bob)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Arriving at 6pm", lo.FromPtr(history[0].Content))
	assert.True(t, history[0].Edited)
}

func TestTypingFromAnonymousHasNoSender(t *testing.T) {
	f := newFixture(t, Options{AutoEnroll: true})
	room := f.join(t, "trip-1", alice)

	f.svc.Typing(context.Background(), room, auth.Anonymous, true)
	f.svc.Typing(context.Background(), room, alice, false)

	events := f.fabric.PublishedTo(fabric.ChatGroup("trip-1"))
	require.Len(t, events, 2)
	assert.Equal(t, "anonymous", events[0].Username)
	assert.Nil(t, events[0].SenderID)
	assert.True(t, events[0].Typing)
	assert.Equal(t, "alice", events[1].Username)
	assert.Equal(t, alice.UserID, *events[1].SenderID)
}

func TestCreateRoomEnrollsCreator(t *testing.T) {
	f := newFixture(t, Options{AutoEnroll: true})
	ctx := context.Background()

	room, err := f.svc.CreateRoom(ctx, "trip-5", alice)
	require.NoError(t, err)
	require.Len(t, room.Participants, 1)
	assert.Equal(t, alice.UserID, room.Participants[0].ID)

	_, err = f.svc.CreateRoom(ctx, "trip-5", bob)
	assert.ErrorIs(t, err, repositories.ErrRoomExists)

	rooms, err := f.svc.ListRooms(ctx, alice)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "trip-5", rooms[0].Name)
}

func TestPostMessageRequiresParticipant(t *testing.T) {
	f := newFixture(t, Options{AutoEnroll: true})
	ctx := context.Background()
	f.join(t, "trip-1", alice)

	_, err := f.svc.PostMessage(ctx, "trip-1", bob, SendInput{Content: "let me in"})
	assert.ErrorIs(t, err, ErrNotParticipant)

	msg, err := f.svc.PostMessage(ctx, "trip-1", alice, SendInput{Content: "via rest"})
	require.NoError(t, err)
	assert.Len(t, f.fabric.PublishedTo(fabric.ChatGroup("trip-1")), 1)
	assert.Equal(t, msg.ID, f.fabric.PublishedTo(fabric.ChatGroup("trip-1"))[0].Message.ID)
}

func TestSendMessageCensorsContent(t *testing.T) {
	censor, err := moderation.New([]string{"scam"}, '*')
	require.NoError(t, err)
	f := newFixture(t, Options{AutoEnroll: true, Censor: censor})
	room := f.join(t, "trip-1", alice)

	msg, err := f.svc.SendMessage(context.Background(), room, alice, SendInput{Content: "not a scam"})
	require.NoError(t, err)
	assert.Equal(t, "not a ****", lo.FromPtr(msg.Content))
}

func TestSendMessageStoreFailureIsServerError(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	fab := &mocks.RecordingFabric{}
	svc := NewService(rooms, messages, new(mocks.NotificationRepositoryMock), new(mocks.UserRepositoryMock), fab, Options{AutoEnroll: true}, zerolog.Nop())

	messages.On("Create", mock.Anything, mock.AnythingOfType("models.NewMessage")).Return(nil, assert.AnError).Once()

	_, err := svc.SendMessage(context.Background(), models.Room{ID: 1, Name: "trip-1"}, alice, SendInput{Content: "hi"})
	require.Error(t, err)
	assert.True(t, IsServerError(err))
	assert.Empty(t, fab.Published())
	messages.AssertExpectations(t)
}
