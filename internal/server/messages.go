package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/npezzotti/go-gigchat/internal/chat"
	"github.com/npezzotti/go-gigchat/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is the envelope for every client event. Exactly one of the
// event fields is expected to be set.
type ClientMessage struct {
	BaseMessage
	Join        *Join        `json:"join,omitempty"`
	JoinRoom    *JoinRoom    `json:"join_room,omitempty"`
	SendMessage *SendMessage `json:"send_message,omitempty"`
	Typing      *Typing      `json:"typing,omitempty"`
}

type Join struct {
	UserId string `json:"user_id"`
}

// JoinRoom subscribes to an existing room by id, or gets or creates the
// room for an order or for a direct conversation with another user.
type JoinRoom struct {
	RoomId     string `json:"room_id,omitempty"`
	OrderId    string `json:"order_id,omitempty"`
	ReceiverId string `json:"receiver_id,omitempty"`
}

type SendMessage struct {
	RoomId   string `json:"room_id"`
	SenderId string `json:"sender_id,omitempty"`
	Body     string `json:"body"`
}

type Typing struct {
	RoomId     string `json:"room_id,omitempty"`
	ReceiverId string `json:"receiver_id,omitempty"`
}

type ServerMessage struct {
	BaseMessage
	Response       *Response      `json:"response,omitempty"`
	OnlineUsers    *OnlineUsers   `json:"online_users,omitempty"`
	ReceiveMessage *types.Message `json:"receive_message,omitempty"`
	Typing         *TypingNotice  `json:"typing,omitempty"`
	ErrorMessage   *ErrorMessage  `json:"error_message,omitempty"`
	// closeAfter makes the write pump close the connection once this
	// message has been written.
	closeAfter bool
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

type OnlineUsers struct {
	UserIds []string `json:"user_ids"`
}

type TypingNotice struct {
	FromUserId string `json:"from_user_id"`
	RoomId     string `json:"room_id,omitempty"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: types.Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrCreated(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: types.Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusCreated,
			Data:         data,
		},
	}
}

// errorReply carries both the acknowledgement for request id and an
// error_message event for clients that do not track ids.
func errorReply(id, code int, message string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: types.Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        message,
		},
		ErrorMessage: &ErrorMessage{Message: message},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	return errorReply(id, http.StatusBadRequest, "invalid message format")
}

func ErrNotIdentified(id int) *ServerMessage {
	return errorReply(id, http.StatusUnauthorized, "join with a user id first")
}

func ErrIdentityMismatch(id int) *ServerMessage {
	return errorReply(id, http.StatusForbidden, "user id does not match session")
}

func ErrSessionReplaced() *ServerMessage {
	msg := errorReply(0, http.StatusConflict, "session replaced")
	msg.closeAfter = true
	return msg
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return errorReply(id, http.StatusServiceUnavailable, "service unavailable")
}

func ErrInternalError(id int) *ServerMessage {
	return errorReply(id, http.StatusInternalServerError, "internal server error")
}

// ErrFromChat maps a chat error to its reply. Codes follow their HTTP
// counterparts so websocket and REST clients can share handling.
func ErrFromChat(id int, err error) *ServerMessage {
	var chatErr *chat.Error
	if !errors.As(err, &chatErr) {
		return ErrInternalError(id)
	}

	return errorReply(id, statusCode(chatErr.Kind), chatErr.Message)
}

func statusCode(kind chat.Kind) int {
	switch kind {
	case chat.KindValidation:
		return http.StatusBadRequest
	case chat.KindAuthorization:
		return http.StatusForbidden
	case chat.KindNotFound:
		return http.StatusNotFound
	case chat.KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func onlineUsersEvent(ids []string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: types.Now()},
		OnlineUsers: &OnlineUsers{UserIds: ids},
	}
}

func receiveMessageEvent(msg types.Message) *ServerMessage {
	return &ServerMessage{
		BaseMessage:    BaseMessage{Timestamp: types.Now()},
		ReceiveMessage: &msg,
	}
}

func typingEvent(from, roomId string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: types.Now()},
		Typing:      &TypingNotice{FromUserId: from, RoomId: roomId},
	}
}
