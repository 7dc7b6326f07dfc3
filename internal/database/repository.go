package database

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when an insert violates a uniqueness constraint.
	ErrConflict = errors.New("record already exists")
)

type ChatRepository interface {
	Ping(ctx context.Context) error
	Close() error

	GetUser(ctx context.Context, userId string) (User, error)
	IsOrderMember(ctx context.Context, orderId, userId string) (bool, error)

	CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error)
	GetRoomById(ctx context.Context, roomId string) (Room, error)
	GetRoomByPairKey(ctx context.Context, pairKey string) (Room, error)
	GetRoomByOrderId(ctx context.Context, orderId string) (Room, error)
	AddParticipant(ctx context.Context, roomId, userId string) (Room, error)
	ArchiveRoom(ctx context.Context, roomId, userId string) (Room, error)
	ListRoomsForUser(ctx context.Context, userId string) ([]Room, error)

	CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error)
	GetMessages(ctx context.Context, roomId string) ([]Message, error)
	DeleteMessages(ctx context.Context, roomId string) (int64, error)
}
