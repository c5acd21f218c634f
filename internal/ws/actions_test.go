package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexibleID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    FlexibleID
		wantErr bool
	}{
		{name: "number", input: `{"id": 17}`, want: 17},
		{name: "numeric string", input: `{"id": "17"}`, want: 17},
		{name: "empty string", input: `{"id": ""}`, want: 0},
		{name: "null", input: `{"id": null}`, want: 0},
		{name: "absent", input: `{}`, want: 0},
		{name: "word", input: `{"id": "seventeen"}`, wantErr: true},
		{name: "fraction", input: `{"id": 1.5}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v struct {
				ID FlexibleID `json:"id"`
			}
			err := json.Unmarshal([]byte(tt.input), &v)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.ID)
		})
	}
}

func TestDecodeChatAction(t *testing.T) {
	name, action, err := decodeChatAction([]byte(`{"action":"edit_message","message_id":"9","content":"fixed"}`))
	require.NoError(t, err)
	assert.Equal(t, "edit_message", name)
	edit, ok := action.(*editMessageAction)
	require.True(t, ok)
	assert.EqualValues(t, 9, edit.MessageID)
	assert.Equal(t, "fixed", edit.Content)

	_, action, err = decodeChatAction([]byte(`{"action":"typing","typing":true}`))
	require.NoError(t, err)
	assert.True(t, action.(*typingAction).Typing)

	_, _, err = decodeChatAction([]byte(`[1,2`))
	assert.ErrorIs(t, err, errInvalidJSON)

	_, _, err = decodeChatAction([]byte(`{"action":"mark_read"}`))
	assert.ErrorIs(t, err, errUnknownAction)

	_, _, err = decodeChatAction([]byte(`{"action":"delete_message","message_id":"abc"}`))
	assert.ErrorIs(t, err, errInvalidJSON)
}

func TestDecodeNotificationAction(t *testing.T) {
	_, action, err := decodeNotificationAction([]byte(`{"action":"mark_read","notification_id":5}`))
	require.NoError(t, err)
	assert.EqualValues(t, 5, action.(*markReadAction).NotificationID)

	_, _, err = decodeNotificationAction([]byte(`{"action":"send_message"}`))
	assert.ErrorIs(t, err, errUnknownAction)

	_, _, err = decodeNotificationAction([]byte(`nope`))
	assert.ErrorIs(t, err, errInvalidJSON)
}
