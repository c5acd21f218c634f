package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

var (
	errInvalidJSON   = errors.New("invalid json")
	errUnknownAction = errors.New("unknown action")
)

// FlexibleID accepts an id as a JSON number or a numeric string. Null or an
// absent field decodes to zero.
type FlexibleID int64

func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*id = 0
			return nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*id = FlexibleID(v)
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*id = FlexibleID(v)
	return nil
}

type actionHeader struct {
	Action string `json:"action"`
}

type sendMessageAction struct {
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
}

type editMessageAction struct {
	MessageID FlexibleID `json:"message_id"`
	Content   string     `json:"content"`
}

type deleteMessageAction struct {
	MessageID FlexibleID `json:"message_id"`
}

type typingAction struct {
	Typing bool `json:"typing"`
}

type markReadAction struct {
	NotificationID FlexibleID `json:"notification_id"`
}

// decodeChatAction reads the action tag first and then decodes the body into the
// matching variant.
func decodeChatAction(data []byte) (string, any, error) {
	var head actionHeader
	if err := json.Unmarshal(data, &head); err != nil {
		return "", nil, errInvalidJSON
	}

	var action any
	switch head.Action {
	case "send_message":
		action = &sendMessageAction{}
	case "edit_message":
		action = &editMessageAction{}
	case "delete_message":
		action = &deleteMessageAction{}
	case "typing":
		action = &typingAction{}
	default:
		return head.Action, nil, errUnknownAction
	}
	if err := json.Unmarshal(data, action); err != nil {
		return head.Action, nil, errInvalidJSON
	}
	return head.Action, action, nil
}

func decodeNotificationAction(data []byte) (string, any, error) {
	var head actionHeader
	if err := json.Unmarshal(data, &head); err != nil {
		return "", nil, errInvalidJSON
	}
	if head.Action != "mark_read" {
		return head.Action, nil, errUnknownAction
	}
	action := &markReadAction{}
	if err := json.Unmarshal(data, action); err != nil {
		return head.Action, nil, errInvalidJSON
	}
	return head.Action, action, nil
}
