package chat

import (
	"errors"
	"net/http"

	"marketplace-chat/internal/repositories"
)

var (
	ErrEmptyMessage           = errors.New("message must have text or file")
	ErrInvalidMessageType     = errors.New("message_type must be text or file")
	ErrContentTooLong         = errors.New("message content is too long")
	ErrMessageIDRequired      = errors.New("message_id is required")
	ErrNotificationIDRequired = errors.New("notification_id is required")
	ErrRoomNameRequired       = errors.New("room name is required")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrNotParticipant         = errors.New("not a room participant")
	ErrNotAdmitted            = errors.New("not admitted to room")
)

// Error tags sent to clients.
const (
	TagEmptyMessage           = "empty_message"
	TagInvalidMessageType     = "invalid_message_type"
	TagContentTooLong         = "content_too_long"
	TagMessageIDRequired      = "message_id_required"
	TagNotificationIDRequired = "notification_id_required"
	TagRoomNameRequired       = "room_name_required"
	TagRoomExists             = "room_exists"
	TagPermissionDenied       = "permission_denied"
	TagMessageNotFound        = "message_not_found"
	TagRoomNotFound           = "room_not_found"
	TagServerError            = "server_error"
	TagInvalidJSON            = "invalid_json"
	TagUnknownAction          = "unknown_action"
)

var classes = []struct {
	err    error
	tag    string
	status int
}{
	{ErrEmptyMessage, TagEmptyMessage, http.StatusBadRequest},
	{ErrInvalidMessageType, TagInvalidMessageType, http.StatusBadRequest},
	{ErrContentTooLong, TagContentTooLong, http.StatusBadRequest},
	{ErrMessageIDRequired, TagMessageIDRequired, http.StatusBadRequest},
	{ErrNotificationIDRequired, TagNotificationIDRequired, http.StatusBadRequest},
	{ErrRoomNameRequired, TagRoomNameRequired, http.StatusBadRequest},
	{repositories.ErrRoomExists, TagRoomExists, http.StatusBadRequest},
	{ErrPermissionDenied, TagPermissionDenied, http.StatusForbidden},
	{ErrNotParticipant, TagPermissionDenied, http.StatusForbidden},
	{ErrNotAdmitted, TagPermissionDenied, http.StatusForbidden},
	{repositories.ErrMessageNotFound, TagMessageNotFound, http.StatusNotFound},
	{repositories.ErrRoomNotFound, TagRoomNotFound, http.StatusNotFound},
}

// Classify maps an error returned by Service to its client tag and HTTP status.
// Anything unrecognised is a server_error.
func Classify(err error) (string, int) {
	for _, c := range classes {
		if errors.Is(err, c.err) {
			return c.tag, c.status
		}
	}
	return TagServerError, http.StatusInternalServerError
}

// IsServerError reports whether err falls outside the known taxonomy.
func IsServerError(err error) bool {
	tag, _ := Classify(err)
	return tag == TagServerError
}
