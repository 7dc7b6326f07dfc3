package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockChatRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) GetUser(ctx context.Context, userId string) (User, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) IsOrderMember(ctx context.Context, orderId, userId string) (bool, error) {
	args := m.Called(ctx, orderId, userId)
	return args.Bool(0), args.Error(1)
}
func (m *MockChatRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) GetRoomById(ctx context.Context, roomId string) (Room, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) GetRoomByPairKey(ctx context.Context, pairKey string) (Room, error) {
	args := m.Called(ctx, pairKey)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) GetRoomByOrderId(ctx context.Context, orderId string) (Room, error) {
	args := m.Called(ctx, orderId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) AddParticipant(ctx context.Context, roomId, userId string) (Room, error) {
	args := m.Called(ctx, roomId, userId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) ArchiveRoom(ctx context.Context, roomId, userId string) (Room, error) {
	args := m.Called(ctx, roomId, userId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) ListRoomsForUser(ctx context.Context, userId string) ([]Room, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockChatRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) GetMessages(ctx context.Context, roomId string) ([]Message, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockChatRepository) DeleteMessages(ctx context.Context, roomId string) (int64, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(int64), args.Error(1)
}
