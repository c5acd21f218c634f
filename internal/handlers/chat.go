package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"marketplace-chat/internal/chat"
	"marketplace-chat/internal/middleware"
	"marketplace-chat/internal/models"
	"marketplace-chat/internal/storage"
	"marketplace-chat/internal/telemetry"
)

// DefaultMaxUploadBytes caps multipart message bodies when no limit is configured.
const DefaultMaxUploadBytes = 10 << 20

// ChatHandler serves the REST side of rooms and messages. Every mutation goes
// through chat.Service, so WebSocket sessions see the same broadcasts.
type ChatHandler struct {
	service   *chat.Service
	blobs     storage.BlobStore
	maxUpload int64
	audit     *telemetry.AuditEmitter
	logger    zerolog.Logger
}

// NewChatHandler builds a ChatHandler. blobs may be nil, in which case file
// uploads are refused.
func NewChatHandler(service *chat.Service, blobs storage.BlobStore, maxUpload int64, audit *telemetry.AuditEmitter, logger zerolog.Logger) *ChatHandler {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	return &ChatHandler{
		service:   service,
		blobs:     blobs,
		maxUpload: maxUpload,
		audit:     audit,
		logger:    logger,
	}
}

// Register mounts the chat routes on an authenticated group.
func (h *ChatHandler) Register(group *gin.RouterGroup) {
	group.GET("/rooms", h.ListRooms)
	group.POST("/rooms", h.CreateRoom)
	group.GET("/rooms/:room_name/messages", h.ListMessages)
	group.POST("/messages", h.PostMessage)
	group.PATCH("/messages/:message_id", h.UpdateMessage)
	group.PUT("/messages/:message_id", h.UpdateMessage)
	group.DELETE("/messages/:message_id", h.DeleteMessage)
}

// ListRooms returns the rooms the caller participates in.
func (h *ChatHandler) ListRooms(c *gin.Context) {
	rooms, err := h.service.ListRooms(c.Request.Context(), middleware.IdentityFrom(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// CreateRoom creates a room with the caller as its first participant.
func (h *ChatHandler) CreateRoom(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": chat.TagInvalidJSON})
		return
	}

	room, err := h.service.CreateRoom(c.Request.Context(), req.Name, middleware.IdentityFrom(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.emit(c, "room.create", room.Name, "room created")
	c.JSON(http.StatusCreated, room)
}

// ListMessages returns a room's history. Non-participants get an empty list.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	msgs, err := h.service.ListMessages(c.Request.Context(), c.Param("room_name"), middleware.IdentityFrom(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type postMessageRequest struct {
	Room        string `json:"room" form:"room"`
	Content     string `json:"content" form:"content"`
	MessageType string `json:"message_type" form:"message_type"`
}

// PostMessage accepts JSON or a multipart form with an optional file part.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	multipartBody := strings.HasPrefix(c.ContentType(), gin.MIMEMultipartPOSTForm)
	if multipartBody {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}

	var req postMessageRequest
	if err := c.ShouldBind(&req); err != nil {
		h.bindError(c, err)
		return
	}
	if strings.TrimSpace(req.Room) == "" {
		respondError(c, h.logger, chat.ErrRoomNameRequired)
		return
	}

	in := chat.SendInput{Content: req.Content, MessageType: req.MessageType}
	if multipartBody {
		fileURL, ok := h.storeUpload(c)
		if !ok {
			return
		}
		in.FileURL = fileURL
		if fileURL != "" && in.MessageType == "" {
			in.MessageType = models.MessageTypeFile
		}
	}

	msg, err := h.service.PostMessage(c.Request.Context(), req.Room, middleware.IdentityFrom(c), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.emit(c, "message.create", msg.RoomName, "message created")
	c.JSON(http.StatusCreated, msg)
}

// UpdateMessage replaces a message's content. Only the sender may edit.
func (h *ChatHandler) UpdateMessage(c *gin.Context) {
	messageID, ok := parseID(c, "message_id", chat.ErrMessageIDRequired, h.logger)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": chat.TagInvalidJSON})
		return
	}

	msg, err := h.service.EditMessage(c.Request.Context(), middleware.IdentityFrom(c), chat.EditInput{MessageID: messageID, Content: req.Content})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.emit(c, "message.update", msg.RoomName, "message edited")
	c.JSON(http.StatusOK, msg)
}

// DeleteMessage soft-deletes a message. Only the sender may delete.
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	messageID, ok := parseID(c, "message_id", chat.ErrMessageIDRequired, h.logger)
	if !ok {
		return
	}

	msg, err := h.service.DeleteMessage(c.Request.Context(), middleware.IdentityFrom(c), messageID, 0)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.emit(c, "message.delete", msg.RoomName, "message deleted")
	c.Status(http.StatusNoContent)
}

// storeUpload saves the optional "file" part. It returns an empty URL when no
// file was sent and false when a response has already been written.
func (h *ChatHandler) storeUpload(c *gin.Context) (string, bool) {
	header, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return "", true
	}
	if err != nil {
		h.bindError(c, err)
		return "", false
	}
	if h.blobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "uploads_disabled"})
		return "", false
	}

	file, err := header.Open()
	if err != nil {
		respondError(c, h.logger, err)
		return "", false
	}
	defer file.Close()

	contentType, err := sniff(file)
	if err != nil {
		respondError(c, h.logger, err)
		return "", false
	}

	url, err := h.blobs.Put(c.Request.Context(), header.Filename, file, contentType)
	if errors.Is(err, storage.ErrEmptyBlob) {
		respondError(c, h.logger, chat.ErrEmptyMessage)
		return "", false
	}
	if err != nil {
		respondError(c, h.logger, err)
		return "", false
	}
	return url, true
}

// sniff detects the content type from the file header and rewinds the file.
func sniff(file multipart.File) (string, error) {
	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return "", err
	}
	if _, err := file.Seek(0, 0); err != nil {
		return "", err
	}
	return mtype.String(), nil
}

func (h *ChatHandler) bindError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file_too_large"})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": chat.TagInvalidJSON})
}

func (h *ChatHandler) emit(c *gin.Context, action, room, text string) {
	h.audit.Emit(c.Request.Context(), auditEvent(c, action, room, text))
}

// TouchCaller mirrors the authenticated caller into the user directory.
// Failures are logged; the request continues.
func TouchCaller(service *chat.Service, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := service.Touch(c.Request.Context(), middleware.IdentityFrom(c)); err != nil {
			logger.Warn().Err(err).Str("request_id", middleware.RequestIDFrom(c)).Msg("touch user failed")
		}
		c.Next()
	}
}

func parseID(c *gin.Context, param string, missing error, logger zerolog.Logger) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, logger, missing)
		return 0, false
	}
	return id, true
}

// respondError writes the shared error taxonomy. server_error carries no detail.
func respondError(c *gin.Context, logger zerolog.Logger, err error) {
	tag, status := chat.Classify(err)
	if chat.IsServerError(err) {
		logger.Error().Err(err).
			Str("request_id", middleware.RequestIDFrom(c)).
			Str("route", c.FullPath()).
			Msg("request failed")
	}
	c.JSON(status, gin.H{"error": tag})
}
