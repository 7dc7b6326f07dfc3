package database

import "time"

const (
	RoomKindOneToOne    = "one_to_one"
	RoomKindOrderScoped = "order_scoped"
)

type User struct {
	Id          string
	DisplayName string
	AvatarUrl   string
}

type Room struct {
	Id             string
	Kind           string
	PairKey        string
	OrderId        string
	ParticipantIds []string
	ArchivedBy     []string
	CreatedAt      time.Time
}

type Message struct {
	Id        string
	SeqId     int64
	RoomId    string
	SenderId  string
	Body      string
	CreatedAt time.Time
}

type CreateRoomParams struct {
	Id             string
	Kind           string
	PairKey        string
	OrderId        string
	ParticipantIds []string
	CreatedAt      time.Time
}

type CreateMessageParams struct {
	Id        string
	RoomId    string
	SenderId  string
	Body      string
	CreatedAt time.Time
}
