package ws

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"marketplace-chat/internal/auth"
	"marketplace-chat/internal/chat"
	"marketplace-chat/internal/fabric"
	"marketplace-chat/internal/middleware"
	"marketplace-chat/internal/models"
	"marketplace-chat/internal/observability"
)

// NotificationWebSocketHandler serves /ws/notifications.
type NotificationWebSocketHandler struct {
	service  *chat.Service
	fabric   fabric.Fabric
	registry *Registry
	logger   zerolog.Logger
}

func NewNotificationWebSocketHandler(service *chat.Service, fab fabric.Fabric, registry *Registry, logger zerolog.Logger) *NotificationWebSocketHandler {
	return &NotificationWebSocketHandler{service: service, fabric: fab, registry: registry, logger: logger}
}

// Handle upgrades the connection. Anonymous callers are closed with 4003.
func (h *NotificationWebSocketHandler) Handle(c *gin.Context) {
	identity := middleware.IdentityFrom(c)

	ctx, span := tracer.Start(c.Request.Context(), "ws.notifications.handshake")
	defer span.End()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("notification upgrade failed")
		return
	}

	cl := newClient(conn)
	go cl.writePump()

	if identity.IsAnonymous() {
		cl.closeWith(CloseForbidden, "authentication required")
		return
	}

	resource := strconv.FormatInt(identity.UserID, 10)
	info := newConnInfo(c, kindNotifications, resource, identity, span.SpanContext().TraceID().String())
	session := &notificationSession{
		client:   cl,
		service:  h.service,
		fabric:   h.fabric,
		registry: h.registry,
		identity: identity,
		group:    fabric.NotificationGroup(identity.UserID),
		info:     info,
		logger:   h.logger.With().Str("conn_id", info.ConnID).Int64("user_id", identity.UserID).Logger(),
	}
	go session.run(trace.ContextWithSpanContext(context.Background(), trace.SpanContextFromContext(ctx)))
}

type notificationSession struct {
	client   *client
	service  *chat.Service
	fabric   fabric.Fabric
	registry *Registry
	identity auth.Identity
	group    string
	info     ConnInfo
	logger   zerolog.Logger
}

func (s *notificationSession) ID() string {
	return s.info.ConnID
}

func (s *notificationSession) Deliver(event models.Event) error {
	if event.Type != models.EventNotification {
		return nil
	}
	return s.client.sendJSON(models.NotificationEnvelope{Type: models.TypeNotification, Payload: event.Notification})
}

func (s *notificationSession) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if err := s.join(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("notification join failed")
		_ = s.fabric.Leave(context.Background(), s.group, s)
		s.client.closeWith(websocket.CloseInternalServerErr, "join failed")
		return
	}

	s.registry.add(s.client)
	observability.IncWSActive(kindNotifications)
	publishLifecycle(ctx, s.info, eventConnect, "")
	defer s.disconnect()

	for frame := range s.client.readLoop(ctx, cancel) {
		s.handle(ctx, frame)
	}
}

// join sends the unread count before subscribing, matching the order clients expect.
func (s *notificationSession) join(ctx context.Context) error {
	joinCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	if err := s.service.Touch(joinCtx, s.identity); err != nil {
		return err
	}
	unread, err := s.service.UnreadCount(joinCtx, s.identity)
	if err != nil {
		return err
	}
	if err := s.client.sendJSON(models.NotificationMetaEnvelope{Type: models.TypeNotificationMeta, Unread: unread}); err != nil {
		return err
	}
	return s.fabric.Join(joinCtx, s.group, s)
}

func (s *notificationSession) disconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	if err := s.fabric.Leave(ctx, s.group, s); err != nil {
		s.logger.Debug().Err(err).Msg("leave group failed")
	}
	s.registry.remove(s.client)
	observability.DecWSActive(kindNotifications)

	reason, abnormal := s.client.disconnectReason()
	if abnormal {
		publishLifecycle(ctx, s.info, eventError, reason)
	}
	publishLifecycle(ctx, s.info, eventDisconnect, reason)
	s.client.closeWith(websocket.CloseNormalClosure, "")
}

func (s *notificationSession) handle(parent context.Context, frame []byte) {
	_, action, err := decodeNotificationAction(frame)
	switch {
	case errors.Is(err, errInvalidJSON):
		s.reply(chat.TagInvalidJSON)
		return
	case errors.Is(err, errUnknownAction):
		s.reply(chat.TagUnknownAction)
		return
	}

	ctx, span := tracer.Start(parent, "ws.notifications.mark_read")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	id := int64(action.(*markReadAction).NotificationID)
	if err := s.service.MarkRead(ctx, s.identity, id); err != nil {
		tag, _ := chat.Classify(err)
		if tag == chat.TagServerError {
			s.logger.Error().Err(err).Int64("notification_id", id).Msg("mark_read failed")
		}
		s.reply(tag)
		return
	}
	if err := s.client.sendJSON(models.NotificationMarkedEnvelope{Type: models.TypeNotificationMarked, ID: id}); err != nil {
		s.logger.Debug().Err(err).Msg("mark_read ack dropped")
	}
}

func (s *notificationSession) reply(tag string) {
	observability.IncActionError(kindNotifications, tag)
	if err := s.client.sendJSON(models.ErrorEnvelope{Error: tag}); err != nil {
		s.logger.Debug().Err(err).Str("error", tag).Msg("error reply dropped")
	}
}
