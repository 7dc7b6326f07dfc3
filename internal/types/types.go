package types

import (
	"time"
)

type RoomKind string

const (
	RoomKindOneToOne    RoomKind = "one_to_one"
	RoomKindOrderScoped RoomKind = "order_scoped"
)

// User is the identity view of an account. The chat core never stores it;
// it is joined in at read time from the identity directory.
type User struct {
	Id          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarUrl   string `json:"avatar_url,omitempty"`
}

type Room struct {
	Id             string    `json:"id"`
	Kind           RoomKind  `json:"kind"`
	ParticipantIds []string  `json:"participant_ids"`
	OrderId        string    `json:"order_id,omitempty"`
	ArchivedBy     []string  `json:"archived_by"`
	Participants   []User    `json:"participants,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type Message struct {
	Id        string    `json:"id"`
	SeqId     int64     `json:"seq_id"`
	RoomId    string    `json:"room_id"`
	SenderId  string    `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Sender    *User     `json:"sender,omitempty"`
}

// Now is the server clock used for every persisted timestamp: UTC,
// truncated to the millisecond the browser clients can represent.
func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
