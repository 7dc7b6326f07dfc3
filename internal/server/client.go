package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-gigchat/internal/chat"
	"github.com/npezzotti/go-gigchat/internal/stats"
	"github.com/npezzotti/go-gigchat/internal/types"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBufferSize = 256
)

type clientState int

const (
	stateConnected clientState = iota
	stateIdentified
	stateInRoom
	stateDisconnected
)

func (s clientState) String() string {
	switch s {
	case stateConnected:
		return "connected"
	case stateIdentified:
		return "identified"
	case stateInRoom:
		return "in_room"
	case stateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

type Client struct {
	conn       *websocket.Conn
	chatServer *ChatServer
	log        zerolog.Logger
	// authUserId is the user the session token was issued to.
	authUserId string
	send       chan *ServerMessage
	stop       chan struct{}
	stopOnce   sync.Once

	mu     sync.RWMutex
	state  clientState
	userId string
	rooms  map[string]types.Room
}

func NewClient(authUserId string, conn *websocket.Conn, cs *ChatServer, l zerolog.Logger) *Client {
	return &Client{
		conn:       conn,
		chatServer: cs,
		log:        l.With().Str("auth_user_id", authUserId).Logger(),
		authUserId: authUserId,
		send:       make(chan *ServerMessage, sendBufferSize),
		stop:       make(chan struct{}),
		rooms:      make(map[string]types.Room),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug().Msg("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Error().Err(err).Msg("failed to serialize message")
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}

			if msg.closeAfter {
				c.sendMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, msg.ErrorMessage.Message))
				return
			}
		case <-c.stop:
			c.sendMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Debug().Msg("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("ws: read")
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Debug().Err(err).Msg("error parsing message")
			c.queueMessage(ErrInvalidMessage(0))
			continue
		}
		msg.Timestamp = types.Now()

		c.dispatch(&msg)
	}
}

func (c *Client) dispatch(msg *ClientMessage) {
	switch {
	case msg.Join != nil:
		c.handleJoin(msg)
	case msg.JoinRoom != nil:
		c.handleJoinRoom(msg)
	case msg.SendMessage != nil:
		c.handleSendMessage(msg)
	case msg.Typing != nil:
		c.handleTyping(msg)
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

func (c *Client) handleJoin(msg *ClientMessage) {
	userId := msg.Join.UserId
	if userId == "" {
		c.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	if userId != c.authUserId {
		c.chatServer.stats.Incr(stats.AuthRejections)
		c.log.Warn().Str("user_id", userId).Msg("join with foreign user id rejected")
		c.queueMessage(ErrIdentityMismatch(msg.Id))
		return
	}

	if !c.chatServer.identify(c, userId) {
		c.queueMessage(ErrServiceUnavailable(msg.Id))
		return
	}

	c.queueMessage(NoErrOK(msg.Id, map[string]any{"user_id": userId}))
}

func (c *Client) handleJoinRoom(msg *ClientMessage) {
	userId, ok := c.identity()
	if !ok {
		c.queueMessage(ErrNotIdentified(msg.Id))
		return
	}

	var (
		room types.Room
		err  error
		jr   = msg.JoinRoom
		ctx  = context.Background()
	)
	switch {
	case jr.RoomId != "":
		room, err = c.chatServer.rooms.Authorize(ctx, jr.RoomId, userId)
	case jr.OrderId != "":
		room, err = c.chatServer.rooms.GetOrCreateByOrder(ctx, jr.OrderId, userId)
	case jr.ReceiverId != "":
		room, err = c.chatServer.rooms.GetOrCreateOneToOne(ctx, userId, jr.ReceiverId)
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}
	if err != nil {
		c.replyError(msg.Id, err)
		return
	}

	c.addRoom(room)
	c.queueMessage(NoErrOK(msg.Id, room))
}

func (c *Client) handleSendMessage(msg *ClientMessage) {
	userId, ok := c.identity()
	if !ok {
		c.queueMessage(ErrNotIdentified(msg.Id))
		return
	}

	sm := msg.SendMessage
	if sm.SenderId != "" && sm.SenderId != userId {
		c.chatServer.stats.Incr(stats.AuthRejections)
		c.log.Warn().Str("sender_id", sm.SenderId).Msg("send as another user rejected")
		c.queueMessage(ErrIdentityMismatch(msg.Id))
		return
	}

	// The append runs to completion even if this connection drops meanwhile.
	saved, room, err := c.chatServer.messages.Append(context.Background(), sm.RoomId, userId, sm.Body)
	if err != nil {
		c.replyError(msg.Id, err)
		return
	}

	c.queueMessage(NoErrCreated(msg.Id, saved))
	c.chatServer.Deliver(saved, room)
}

// handleTyping is best effort. Nothing is acknowledged and failures are
// only logged.
func (c *Client) handleTyping(msg *ClientMessage) {
	userId, ok := c.identity()
	if !ok {
		return
	}

	cs := c.chatServer
	if t := msg.Typing; t.ReceiverId != "" {
		if target, ok := cs.presence.Lookup(t.ReceiverId); ok && target != c {
			target.queueMessage(typingEvent(userId, t.RoomId))
		}
		return
	}

	// order rooms gain participants after they are joined, so the list is
	// read fresh for every notice
	room, err := cs.rooms.Authorize(context.Background(), msg.Typing.RoomId, userId)
	if err != nil {
		c.log.Debug().Err(err).Str("room_id", msg.Typing.RoomId).Msg("typing notice dropped")
		return
	}

	for _, id := range room.ParticipantIds {
		if id == userId {
			continue
		}
		if target, ok := cs.presence.Lookup(id); ok {
			target.queueMessage(typingEvent(userId, room.Id))
		}
	}
}

func (c *Client) replyError(id int, err error) {
	switch {
	case errors.Is(err, chat.ErrAuthorization):
		c.chatServer.stats.Incr(stats.AuthRejections)
	case errors.Is(err, chat.ErrPersistence):
		c.log.Error().Err(err).Msg("store operation failed")
	default:
		c.log.Debug().Err(err).Msg("request rejected")
	}

	c.queueMessage(ErrFromChat(id, err))
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Warn().Msg("failed to send message to client, channel is full")
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Debug().Err(err).Msg("write message")
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.mu.Lock()
	c.state = stateDisconnected
	c.rooms = make(map[string]types.Room)
	c.mu.Unlock()

	c.chatServer.deRegisterClient(c)
	c.stopClient()
}

func (c *Client) setIdentified(userId string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.userId != userId {
		c.rooms = make(map[string]types.Room)
	}
	c.userId = userId
	if c.state == stateConnected || len(c.rooms) == 0 {
		c.state = stateIdentified
	}
}

// revoke drops the identity of a superseded connection so it cannot act
// as the user while its close is pending.
func (c *Client) revoke() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.userId = ""
	c.rooms = make(map[string]types.Room)
	c.state = stateConnected
}

func (c *Client) identity() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != stateIdentified && c.state != stateInRoom {
		return "", false
	}
	return c.userId, true
}

func (c *Client) addRoom(r types.Room) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rooms[r.Id] = r
	c.state = stateInRoom
	c.log.Debug().Str("room_id", r.Id).Int("rooms", len(c.rooms)).Msg("joined room")
}

func (c *Client) currentState() clientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}
