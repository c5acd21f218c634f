package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"marketplace-chat/internal/auth"
	"marketplace-chat/internal/chat"
	"marketplace-chat/internal/fabric"
	"marketplace-chat/internal/middleware"
	"marketplace-chat/internal/models"
	"marketplace-chat/internal/observability"
)

// actionTimeout bounds the store work of a single client action.
const actionTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var tracer = otel.Tracer("marketplace-chat/ws")

// ChatWebSocketHandler serves /ws/chat/:room_name.
type ChatWebSocketHandler struct {
	service  *chat.Service
	fabric   fabric.Fabric
	registry *Registry
	logger   zerolog.Logger
}

// NewChatWebSocketHandler constructs a ChatWebSocketHandler.
func NewChatWebSocketHandler(service *chat.Service, fab fabric.Fabric, registry *Registry, logger zerolog.Logger) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{service: service, fabric: fab, registry: registry, logger: logger}
}

// Handle upgrades the connection and runs the chat session on its own goroutines.
// A missing room name is reported with close code 4001 after the upgrade.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	roomName := c.Param("room_name")
	identity := middleware.IdentityFrom(c)

	ctx, span := tracer.Start(c.Request.Context(), "ws.chat.handshake")
	defer span.End()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("chat upgrade failed")
		return
	}

	cl := newClient(conn)
	go cl.writePump()

	if roomName == "" {
		cl.closeWith(CloseRoomRequired, "room name required")
		return
	}

	info := newConnInfo(c, kindChat, roomName, identity, span.SpanContext().TraceID().String())
	session := &chatSession{
		client:   cl,
		service:  h.service,
		fabric:   h.fabric,
		registry: h.registry,
		identity: identity,
		roomName: roomName,
		info:     info,
		logger:   h.logger.With().Str("conn_id", info.ConnID).Str("room", roomName).Int64("user_id", identity.UserID).Logger(),
	}
	// The session outlives the HTTP request, so it gets a fresh context that
	// only carries the handshake span.
	go session.run(trace.ContextWithSpanContext(context.Background(), trace.SpanContextFromContext(ctx)))
}

type chatSession struct {
	client   *client
	service  *chat.Service
	fabric   fabric.Fabric
	registry *Registry
	identity auth.Identity
	roomName string
	room     models.Room
	group    string
	info     ConnInfo
	logger   zerolog.Logger
}

func (s *chatSession) ID() string {
	return s.info.ConnID
}

// Deliver maps fabric events onto client envelopes.
func (s *chatSession) Deliver(event models.Event) error {
	switch event.Type {
	case models.EventChatMessage:
		return s.client.sendJSON(models.ChatEnvelope{Type: models.TypeChat, Payload: event.Message})
	case models.EventChatMessageUpdate:
		return s.client.sendJSON(models.ChatEnvelope{Type: models.TypeChatUpdate, Payload: event.Message})
	case models.EventChatMessageDelete:
		return s.client.sendJSON(models.ChatDeleteEnvelope{Type: models.TypeChatDelete, MessageID: event.MessageID})
	case models.EventChatTyping:
		return s.client.sendJSON(models.TypingEnvelope{
			Type:     models.TypeTyping,
			Username: event.Username,
			Typing:   event.Typing,
			SenderID: event.SenderID,
		})
	default:
		return nil
	}
}

func (s *chatSession) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if err := s.join(ctx); err != nil {
		code := websocket.CloseInternalServerErr
		switch {
		case errors.Is(err, chat.ErrNotAdmitted):
			code = CloseForbidden
		case errors.Is(err, chat.ErrRoomNameRequired):
			code = CloseRoomRequired
		}
		s.logger.Warn().Err(err).Int("close_code", code).Msg("chat join failed")
		if s.group != "" {
			_ = s.fabric.Leave(context.Background(), s.group, s)
		}
		s.client.closeWith(code, "join failed")
		return
	}

	s.registry.add(s.client)
	observability.IncWSActive(kindChat)
	publishLifecycle(ctx, s.info, eventConnect, "")
	defer s.disconnect()

	for frame := range s.client.readLoop(ctx, cancel) {
		s.handle(ctx, frame)
	}
}

func (s *chatSession) join(ctx context.Context) error {
	joinCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	room, err := s.service.JoinRoom(joinCtx, s.roomName, s.identity)
	if err != nil {
		return err
	}
	s.room = room
	s.group = fabric.ChatGroup(room.Name)

	if err := s.fabric.Join(joinCtx, s.group, s); err != nil {
		return err
	}
	return s.client.sendJSON(models.ConnectionEstablishedEnvelope{Type: models.TypeConnectionEstablished, Message: "connected"})
}

// disconnect runs on a fresh context: the session context is already cancelled.
func (s *chatSession) disconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	if err := s.fabric.Leave(ctx, s.group, s); err != nil {
		s.logger.Debug().Err(err).Msg("leave group failed")
	}
	s.registry.remove(s.client)
	observability.DecWSActive(kindChat)

	reason, abnormal := s.client.disconnectReason()
	if abnormal {
		publishLifecycle(ctx, s.info, eventError, reason)
	}
	publishLifecycle(ctx, s.info, eventDisconnect, reason)
	s.client.closeWith(websocket.CloseNormalClosure, "")
}

func (s *chatSession) handle(parent context.Context, frame []byte) {
	name, action, err := decodeChatAction(frame)
	switch {
	case errors.Is(err, errInvalidJSON):
		s.reply(kindChat, chat.TagInvalidJSON)
		return
	case errors.Is(err, errUnknownAction):
		s.reply(kindChat, chat.TagUnknownAction)
		return
	}

	ctx, span := tracer.Start(parent, "ws.chat."+name)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	switch a := action.(type) {
	case *sendMessageAction:
		_, err = s.service.SendMessage(ctx, s.room, s.identity, chat.SendInput{Content: a.Content, MessageType: a.MessageType})
	case *editMessageAction:
		_, err = s.service.EditMessage(ctx, s.identity, chat.EditInput{MessageID: int64(a.MessageID), Content: a.Content, RoomID: s.room.ID})
	case *deleteMessageAction:
		_, err = s.service.DeleteMessage(ctx, s.identity, int64(a.MessageID), s.room.ID)
	case *typingAction:
		s.service.Typing(ctx, s.room, s.identity, a.Typing)
	}
	if err != nil {
		s.fail(name, err)
	}
}

func (s *chatSession) fail(action string, err error) {
	tag, _ := chat.Classify(err)
	if tag == chat.TagServerError {
		s.logger.Error().Err(err).Str("action", action).Msg("chat action failed")
	}
	s.reply(kindChat, tag)
}

func (s *chatSession) reply(kind, tag string) {
	observability.IncActionError(kind, tag)
	if err := s.client.sendJSON(models.ErrorEnvelope{Error: tag}); err != nil {
		s.logger.Debug().Err(err).Str("error", tag).Msg("error reply dropped")
	}
}
