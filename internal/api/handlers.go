package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-gigchat/internal/chat"
	"github.com/npezzotti/go-gigchat/internal/server"
)

type DirectRoomRequest struct {
	UserId string `json:"user_id" validate:"required,max=128"`
}

type SendMessageRequest struct {
	Body string `json:"body" validate:"required,max=4000"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type OnlineUsersResponse struct {
	UserIds []string `json:"user_ids"`
}

func (s *GoChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("json encode")
	}
}

// decodeJson reads and validates a request body into dst. The returned
// error is ready to be written to the client.
func (s *GoChatApp) decodeJson(r *http.Request, dst any) *ApiError {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return NewBadRequestError()
	}

	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return NewValidationError(fmt.Sprintf("%s failed on the '%s' rule", fe.Field(), fe.Tag()))
		}
		return NewBadRequestError()
	}

	return nil
}

func (s *GoChatApp) writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	errResp := NewChatError(err)
	switch {
	case errors.Is(err, chat.ErrAuthorization):
		s.log.Warn().Err(err).Str("path", r.URL.Path).Msg("rejected request from non-participant")
	case errResp.StatusCode >= http.StatusInternalServerError:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}

	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *GoChatApp) currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
	}

	return userId, ok
}

func (s *GoChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("health check failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *GoChatApp) createDirectRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	var req DirectRoomRequest
	if errResp := s.decodeJson(r, &req); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.rooms.GetOrCreateOneToOne(r.Context(), userId, req.UserId)
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusOK, room)
}

func (s *GoChatApp) getOrderRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	room, err := s.rooms.GetOrCreateByOrder(r.Context(), r.PathValue("orderId"), userId)
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusOK, room)
}

func (s *GoChatApp) listRooms(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	rooms, err := s.rooms.ListRooms(r.Context(), userId)
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *GoChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	msgs, err := s.messages.ListByRoom(r.Context(), r.PathValue("roomId"), userId)
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusOK, msgs)
}

// sendMessage is the non-websocket send path. Online recipients get the
// message pushed exactly as if it had been sent over the socket.
func (s *GoChatApp) sendMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if errResp := s.decodeJson(r, &req); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, room, err := s.messages.Append(r.Context(), r.PathValue("roomId"), userId, req.Body)
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}

	s.cs.Deliver(msg, room)
	s.writeJson(w, http.StatusCreated, msg)
}

func (s *GoChatApp) purgeMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	n, err := s.messages.PurgeRoom(r.Context(), r.PathValue("roomId"), userId)
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusOK, MessageResponse{Message: fmt.Sprintf("deleted %d messages", n)})
}

func (s *GoChatApp) archiveRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	if _, err := s.rooms.Archive(r.Context(), r.PathValue("roomId"), userId); err != nil {
		s.writeChatError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusOK, MessageResponse{Message: "room archived"})
}

func (s *GoChatApp) archiveOrderRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	if _, err := s.rooms.ArchiveByOrder(r.Context(), r.PathValue("orderId"), userId); err != nil {
		s.writeChatError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusOK, MessageResponse{Message: "room archived"})
}

func (s *GoChatApp) onlineUsers(w http.ResponseWriter, r *http.Request) {
	s.writeJson(w, http.StatusOK, OnlineUsersResponse{UserIds: s.cs.Online()})
}

func (s *GoChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("error upgrading connection")
		return
	}

	client := server.NewClient(userId, conn, s.cs, s.log)
	if !s.cs.RegisterClient(client) {
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}
