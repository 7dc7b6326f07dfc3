package chat

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/npezzotti/go-gigchat/internal/database"
	"github.com/npezzotti/go-gigchat/internal/identity"
	"github.com/npezzotti/go-gigchat/internal/types"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// MaxBodyLength is the longest accepted body in characters.
const MaxBodyLength = 4000

// MessageStore is the append-only message log. Messages are only ever
// removed by purging a whole room.
type MessageStore struct {
	db      database.ChatRepository
	rooms   *Registry
	dir     identity.Directory
	timeout time.Duration
	log     zerolog.Logger
	newId   func() string
	now     func() time.Time
}

func NewMessageStore(logger zerolog.Logger, db database.ChatRepository, rooms *Registry, dir identity.Directory, timeout time.Duration) *MessageStore {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}

	return &MessageStore{
		db:      db,
		rooms:   rooms,
		dir:     dir,
		timeout: timeout,
		log:     logger,
		newId:   uuid.NewString,
		now:     types.Now,
	}
}

func toMessage(m database.Message) types.Message {
	return types.Message{
		Id:        m.Id,
		SeqId:     m.SeqId,
		RoomId:    m.RoomId,
		SenderId:  m.SenderId,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
}

// Append persists body as a message from senderId and returns it with the
// sender's display info attached. The room is returned as well so callers
// can route delivery without a second lookup.
func (s *MessageStore) Append(ctx context.Context, roomId, senderId, body string) (types.Message, types.Room, error) {
	body = strings.TrimSpace(body)
	if roomId == "" {
		return types.Message{}, types.Room{}, validationError("room id is required")
	}
	if senderId == "" {
		return types.Message{}, types.Room{}, validationError("sender id is required")
	}
	if body == "" {
		return types.Message{}, types.Room{}, validationError("message body is required")
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return types.Message{}, types.Room{}, validationError("message body is too long")
	}

	room, err := s.rooms.Authorize(ctx, roomId, senderId)
	if err != nil {
		return types.Message{}, types.Room{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	dbMsg, err := s.db.CreateMessage(ctx, database.CreateMessageParams{
		Id:        s.newId(),
		RoomId:    roomId,
		SenderId:  senderId,
		Body:      body,
		CreatedAt: s.now(),
	})
	if err != nil {
		s.log.Error().Err(err).Str("room_id", roomId).Str("sender_id", senderId).Msg("failed to persist message")
		return types.Message{}, types.Room{}, persistenceError("save message", err)
	}

	msg := toMessage(dbMsg)
	sender := s.sender(ctx, senderId)
	msg.Sender = &sender

	return msg, room, nil
}

func (s *MessageStore) sender(ctx context.Context, userId string) types.User {
	if s.dir == nil {
		return types.User{Id: userId}
	}

	u, err := s.dir.Lookup(ctx, userId)
	if err != nil {
		s.log.Debug().Err(err).Str("user_id", userId).Msg("sender lookup failed")
		return types.User{Id: userId}
	}

	return u
}

// ListByRoom returns the room's history oldest first. A viewer who archived
// the room gets an empty list.
func (s *MessageStore) ListByRoom(ctx context.Context, roomId, viewerId string) ([]types.Message, error) {
	room, err := s.rooms.Authorize(ctx, roomId, viewerId)
	if err != nil {
		return nil, err
	}

	if lo.Contains(room.ArchivedBy, viewerId) {
		return []types.Message{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	dbMsgs, err := s.db.GetMessages(ctx, roomId)
	if err != nil {
		return nil, persistenceError("get messages", err)
	}

	msgs := lo.Map(dbMsgs, func(item database.Message, _ int) types.Message {
		return toMessage(item)
	})
	if s.dir == nil || len(msgs) == 0 {
		return msgs, nil
	}

	senderIds := lo.Uniq(lo.Map(msgs, func(item types.Message, _ int) string {
		return item.SenderId
	}))
	users, err := identity.LookupMany(ctx, s.dir, senderIds)
	if err != nil {
		s.log.Warn().Err(err).Str("room_id", roomId).Msg("sender lookup failed")
		return msgs, nil
	}

	for i := range msgs {
		u := users[msgs[i].SenderId]
		msgs[i].Sender = &u
	}

	return msgs, nil
}

// PurgeRoom deletes every message in the room for all participants.
func (s *MessageStore) PurgeRoom(ctx context.Context, roomId, requesterId string) (int64, error) {
	if _, err := s.rooms.Authorize(ctx, roomId, requesterId); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.db.DeleteMessages(ctx, roomId)
	if err != nil {
		return 0, persistenceError("delete messages", err)
	}

	s.log.Info().Str("room_id", roomId).Str("user_id", requesterId).Int64("deleted", n).Msg("purged room history")
	return n, nil
}
