package database

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// MemoryChatRepository keeps rooms and messages in process memory. It backs
// local development (-dsn memory://) and the chat package tests, and enforces
// the same uniqueness rules as the PostgreSQL schema.
type MemoryChatRepository struct {
	mu       sync.RWMutex
	users    map[string]User
	orders   map[string][2]string
	rooms    map[string]Room
	messages map[string][]Message
	seq      int64
}

func NewMemoryChatRepository() *MemoryChatRepository {
	return &MemoryChatRepository{
		users:    make(map[string]User),
		orders:   make(map[string][2]string),
		rooms:    make(map[string]Room),
		messages: make(map[string][]Message),
	}
}

// PutUser seeds the account table.
func (m *MemoryChatRepository) PutUser(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.Id] = u
}

// PutOrder seeds the orders table.
func (m *MemoryChatRepository) PutOrder(orderId, buyerId, sellerId string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[orderId] = [2]string{buyerId, sellerId}
}

func (m *MemoryChatRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryChatRepository) Close() error {
	return nil
}

func (m *MemoryChatRepository) GetUser(_ context.Context, userId string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[userId]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryChatRepository) IsOrderMember(_ context.Context, orderId, userId string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members, ok := m.orders[orderId]
	if !ok {
		return false, nil
	}
	return members[0] == userId || members[1] == userId, nil
}

func copyRoom(r Room) Room {
	r.ParticipantIds = slices.Clone(r.ParticipantIds)
	r.ArchivedBy = slices.Clone(r.ArchivedBy)
	if r.ArchivedBy == nil {
		r.ArchivedBy = []string{}
	}
	return r
}

func (m *MemoryChatRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	if err := ctx.Err(); err != nil {
		return Room{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[params.Id]; ok {
		return Room{}, ErrConflict
	}
	for _, r := range m.rooms {
		if params.PairKey != "" && r.PairKey == params.PairKey {
			return Room{}, ErrConflict
		}
		if params.OrderId != "" && r.OrderId == params.OrderId {
			return Room{}, ErrConflict
		}
	}

	room := Room{
		Id:             params.Id,
		Kind:           params.Kind,
		PairKey:        params.PairKey,
		OrderId:        params.OrderId,
		ParticipantIds: slices.Clone(params.ParticipantIds),
		ArchivedBy:     []string{},
		CreatedAt:      params.CreatedAt,
	}
	m.rooms[room.Id] = room

	return copyRoom(room), nil
}

func (m *MemoryChatRepository) findRoom(match func(Room) bool) (Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.rooms {
		if match(r) {
			return copyRoom(r), nil
		}
	}
	return Room{}, ErrNotFound
}

func (m *MemoryChatRepository) GetRoomById(_ context.Context, roomId string) (Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[roomId]
	if !ok {
		return Room{}, ErrNotFound
	}
	return copyRoom(r), nil
}

func (m *MemoryChatRepository) GetRoomByPairKey(_ context.Context, pairKey string) (Room, error) {
	return m.findRoom(func(r Room) bool { return r.PairKey != "" && r.PairKey == pairKey })
}

func (m *MemoryChatRepository) GetRoomByOrderId(_ context.Context, orderId string) (Room, error) {
	return m.findRoom(func(r Room) bool { return r.OrderId != "" && r.OrderId == orderId })
}

func (m *MemoryChatRepository) AddParticipant(_ context.Context, roomId, userId string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomId]
	if !ok {
		return Room{}, ErrNotFound
	}
	if !lo.Contains(room.ParticipantIds, userId) {
		room.ParticipantIds = append(slices.Clone(room.ParticipantIds), userId)
		m.rooms[roomId] = room
	}

	return copyRoom(room), nil
}

func (m *MemoryChatRepository) ArchiveRoom(_ context.Context, roomId, userId string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomId]
	if !ok || !lo.Contains(room.ParticipantIds, userId) {
		return Room{}, ErrNotFound
	}
	if !lo.Contains(room.ArchivedBy, userId) {
		room.ArchivedBy = append(slices.Clone(room.ArchivedBy), userId)
		m.rooms[roomId] = room
	}

	return copyRoom(room), nil
}

func (m *MemoryChatRepository) ListRoomsForUser(_ context.Context, userId string) ([]Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := make([]Room, 0)
	for _, r := range m.rooms {
		if lo.Contains(r.ParticipantIds, userId) {
			rooms = append(rooms, copyRoom(r))
		}
	}

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].Id > rooms[j].Id
		}
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})

	return rooms, nil
}

func (m *MemoryChatRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[params.RoomId]; !ok {
		return Message{}, ErrNotFound
	}

	m.seq++
	msg := Message{
		Id:        params.Id,
		SeqId:     m.seq,
		RoomId:    params.RoomId,
		SenderId:  params.SenderId,
		Body:      params.Body,
		CreatedAt: params.CreatedAt,
	}
	m.messages[params.RoomId] = append(m.messages[params.RoomId], msg)

	return msg, nil
}

func (m *MemoryChatRepository) GetMessages(_ context.Context, roomId string) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	messages := slices.Clone(m.messages[roomId])
	if messages == nil {
		messages = []Message{}
	}

	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].SeqId < messages[j].SeqId
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})

	return messages, nil
}

func (m *MemoryChatRepository) DeleteMessages(_ context.Context, roomId string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := int64(len(m.messages[roomId]))
	delete(m.messages, roomId)

	return n, nil
}
