package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/npezzotti/go-gigchat/internal/chat"
	"github.com/npezzotti/go-gigchat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roomFixture(id string) types.Room {
	return types.Room{Id: id, Kind: types.RoomKindOneToOne, ParticipantIds: []string{"alice", "bob"}}
}

func TestErrFromChat(t *testing.T) {
	var tcases = []struct {
		name string
		err  error
		code int
	}{
		{"validation", &chat.Error{Kind: chat.KindValidation, Message: "message body is required"}, http.StatusBadRequest},
		{"authorization", &chat.Error{Kind: chat.KindAuthorization, Message: "not a participant of this room"}, http.StatusForbidden},
		{"not found", &chat.Error{Kind: chat.KindNotFound, Message: "room not found"}, http.StatusNotFound},
		{"persistence", &chat.Error{Kind: chat.KindPersistence, Message: "storage unavailable, try again later", Err: errors.New("save message: timeout")}, http.StatusServiceUnavailable},
		{"wrapped", fmt.Errorf("join: %w", &chat.Error{Kind: chat.KindNotFound, Message: "room not found"}), http.StatusNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			msg := ErrFromChat(7, tc.err)
			assert.Equal(t, 7, msg.Id)
			require.NotNil(t, msg.Response)
			assert.Equal(t, tc.code, msg.Response.ResponseCode)
			require.NotNil(t, msg.ErrorMessage)
			assert.Equal(t, msg.Response.Error, msg.ErrorMessage.Message)
			assert.NotContains(t, msg.ErrorMessage.Message, "timeout", "expected store details to stay server side")
		})
	}
}

func TestClientMessage_Unmarshal(t *testing.T) {
	raw := `{"id":4,"send_message":{"room_id":"r1","sender_id":"alice","body":"hi"}}`

	var msg ClientMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, 4, msg.Id)
	require.NotNil(t, msg.SendMessage)
	assert.Equal(t, SendMessage{RoomId: "r1", SenderId: "alice", Body: "hi"}, *msg.SendMessage)
	assert.Nil(t, msg.Join)
	assert.Nil(t, msg.JoinRoom)
	assert.Nil(t, msg.Typing)
}

func TestServerMessage_MarshalEvents(t *testing.T) {
	b, err := json.Marshal(onlineUsersEvent([]string{"alice", "bob"}))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"online_users":{"user_ids":["alice","bob"]}`)
	assert.NotContains(t, string(b), "closeAfter")

	b, err = json.Marshal(typingEvent("alice", "r1"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"typing":{"from_user_id":"alice","room_id":"r1"}`)

	b, err = json.Marshal(ErrSessionReplaced())
	require.NoError(t, err)
	assert.Contains(t, string(b), `"error_message":{"message":"session replaced"}`)
}
