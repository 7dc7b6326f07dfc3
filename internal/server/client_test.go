package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-gigchat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		res := c.queueMessage(&ServerMessage{})
		assert.True(t, res, "expected queueMessage to return true when channel is not full")

		select {
		case msg := <-c.send:
			assert.NotNil(t, msg, "expected a message to be sent to the client")
		default:
			t.Error("expected a message to be sent to the client, but none was sent")
		}
	})
	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &ServerMessage{}
		res := c.queueMessage(&ServerMessage{})
		assert.False(t, res, "expected queueMessage to return false when channel is full")
	})
}

func Test_serializeMessage(t *testing.T) {
	message := &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        1,
			Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		},
		Response: &Response{
			ResponseCode: 200,
			Data:         "test data",
		},
	}

	expected := `{"id":1,"timestamp":"2024-05-01T12:00:00Z","response":{"response_code":200,"data":"test data"}}`

	bytes, err := serializeMessage(message)
	assert.NoError(t, err, "expected no error during serialization")
	assert.Equal(t, expected, string(bytes), "expected serialized message to match the expected format")
}

func Test_stopClient(t *testing.T) {
	c := &Client{
		stop: make(chan struct{}),
	}

	c.stopClient()
	assert.NotPanics(t, c.stopClient, "expected stopClient to be idempotent")

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}
}

func Test_clientState(t *testing.T) {
	var tcases = []struct {
		state    clientState
		expected string
	}{
		{stateConnected, "connected"},
		{stateIdentified, "identified"},
		{stateInRoom, "in_room"},
		{stateDisconnected, "disconnected"},
		{clientState(42), "unknown"},
	}

	for _, tc := range tcases {
		assert.Equal(t, tc.expected, tc.state.String())
	}
}

func Test_setIdentifiedRebind(t *testing.T) {
	c := NewClient("alice", nil, nil, testutil.TestLogger(t))
	c.setIdentified("alice")
	c.addRoom(roomFixture("r1"))
	assert.Equal(t, stateInRoom, c.currentState())

	c.setIdentified("alice")
	assert.Equal(t, stateInRoom, c.currentState(), "expected rejoin as the same user to keep subscriptions")

	c.setIdentified("other")
	assert.Equal(t, stateIdentified, c.currentState())
	assert.NotContains(t, c.rooms, "r1", "expected subscriptions to be dropped on rebind")
}

// Test_clientPumps runs Read and Write over a real websocket connection.
func Test_clientPumps(t *testing.T) {
	cs, _ := runTestChatServer(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}

		c := NewClient(r.URL.Query().Get("user"), conn, cs, testutil.TestLogger(t))
		cs.RegisterClient(c)
		go c.Write()
		go c.Read()
	}))
	defer srv.Close()

	dial := func(user string) *websocket.Conn {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user=" + user
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}

	readUntil := func(conn *websocket.Conn, match func(ServerMessage) bool) ServerMessage {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		for {
			var msg ServerMessage
			require.NoError(t, conn.ReadJSON(&msg))
			if match(msg) {
				return msg
			}
		}
	}

	alice := dial("alice")
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("not json")))
	res := readUntil(alice, func(m ServerMessage) bool { return m.Response != nil })
	assert.Equal(t, http.StatusBadRequest, res.Response.ResponseCode)

	require.NoError(t, alice.WriteJSON(ClientMessage{BaseMessage: BaseMessage{Id: 1}, Join: &Join{UserId: "alice"}}))
	res = readUntil(alice, func(m ServerMessage) bool { return m.Id == 1 })
	assert.Equal(t, http.StatusOK, res.Response.ResponseCode)

	bob := dial("bob")
	require.NoError(t, bob.WriteJSON(ClientMessage{BaseMessage: BaseMessage{Id: 1}, Join: &Join{UserId: "bob"}}))
	readUntil(bob, func(m ServerMessage) bool { return m.Id == 1 })

	require.NoError(t, alice.WriteJSON(ClientMessage{BaseMessage: BaseMessage{Id: 2}, JoinRoom: &JoinRoom{ReceiverId: "bob"}}))
	res = readUntil(alice, func(m ServerMessage) bool { return m.Id == 2 })
	require.Equal(t, http.StatusOK, res.Response.ResponseCode)
	roomId := res.Response.Data.(map[string]any)["id"].(string)

	require.NoError(t, alice.WriteJSON(ClientMessage{BaseMessage: BaseMessage{Id: 3}, SendMessage: &SendMessage{RoomId: roomId, Body: "hello bob"}}))
	got := readUntil(bob, func(m ServerMessage) bool { return m.ReceiveMessage != nil })
	assert.Equal(t, "hello bob", got.ReceiveMessage.Body)
	assert.Equal(t, "alice", got.ReceiveMessage.SenderId)

	// a second connection for alice closes the first
	dial2 := dial("alice")
	require.NoError(t, dial2.WriteJSON(ClientMessage{BaseMessage: BaseMessage{Id: 1}, Join: &Join{UserId: "alice"}}))
	replaced := readUntil(alice, func(m ServerMessage) bool { return m.ErrorMessage != nil })
	assert.Equal(t, "session replaced", replaced.ErrorMessage.Message)

	alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := alice.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "expected policy violation close, got %v", err)

	assert.Eventually(t, func() bool {
		online := cs.Online()
		return len(online) == 2
	}, time.Second, 10*time.Millisecond)
}
