package database

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

const roomColumns = "id, kind, COALESCE(pair_key, ''), COALESCE(order_id, ''), participant_ids, archived_by, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (Room, error) {
	var room Room
	err := row.Scan(
		&room.Id,
		&room.Kind,
		&room.PairKey,
		&room.OrderId,
		pq.Array(&room.ParticipantIds),
		pq.Array(&room.ArchivedBy),
		&room.CreatedAt,
	)

	return room, mapError(err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (db *PgChatRepository) GetUser(ctx context.Context, userId string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, display_name, avatar_url FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		userId,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.DisplayName,
		&user.AvatarUrl,
	)

	return user, mapError(err)
}

func (db *PgChatRepository) IsOrderMember(ctx context.Context, orderId, userId string) (bool, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1 AND (buyer_id = $2 OR seller_id = $2))",
		orderId,
		userId,
	)

	var ok bool
	err := row.Scan(&ok)

	return ok, mapError(err)
}

func (db *PgChatRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO chat_rooms (id, kind, pair_key, order_id, participant_ids, archived_by, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, '{}', $6) RETURNING "+roomColumns,
		params.Id,
		params.Kind,
		nullString(params.PairKey),
		nullString(params.OrderId),
		pq.Array(params.ParticipantIds),
		params.CreatedAt,
	)

	return scanRoom(row)
}

func (db *PgChatRepository) GetRoomById(ctx context.Context, roomId string) (Room, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM chat_rooms WHERE id = $1 LIMIT 1",
		roomId,
	)

	return scanRoom(row)
}

func (db *PgChatRepository) GetRoomByPairKey(ctx context.Context, pairKey string) (Room, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM chat_rooms WHERE pair_key = $1 LIMIT 1",
		pairKey,
	)

	return scanRoom(row)
}

func (db *PgChatRepository) GetRoomByOrderId(ctx context.Context, orderId string) (Room, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM chat_rooms WHERE order_id = $1 LIMIT 1",
		orderId,
	)

	return scanRoom(row)
}

// AddParticipant appends userId to the room's participants unless it is
// already present. The check and the append happen in one statement.
func (db *PgChatRepository) AddParticipant(ctx context.Context, roomId, userId string) (Room, error) {
	row := db.conn.QueryRowContext(ctx,
		"UPDATE chat_rooms SET participant_ids = CASE WHEN $2 = ANY(participant_ids) "+
			"THEN participant_ids ELSE array_append(participant_ids, $2) END "+
			"WHERE id = $1 RETURNING "+roomColumns,
		roomId,
		userId,
	)

	return scanRoom(row)
}

func (db *PgChatRepository) ArchiveRoom(ctx context.Context, roomId, userId string) (Room, error) {
	row := db.conn.QueryRowContext(ctx,
		"UPDATE chat_rooms SET archived_by = CASE WHEN $2 = ANY(archived_by) "+
			"THEN archived_by ELSE array_append(archived_by, $2) END "+
			"WHERE id = $1 AND $2 = ANY(participant_ids) RETURNING "+roomColumns,
		roomId,
		userId,
	)

	return scanRoom(row)
}

func (db *PgChatRepository) ListRoomsForUser(ctx context.Context, userId string) ([]Room, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+roomColumns+" FROM chat_rooms WHERE $1 = ANY(participant_ids) ORDER BY created_at DESC",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := make([]Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (db *PgChatRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO messages (id, room_id, sender_id, body, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING seq_id, id, room_id, sender_id, body, created_at",
		params.Id,
		params.RoomId,
		params.SenderId,
		params.Body,
		params.CreatedAt,
	)

	var msg Message
	err := row.Scan(
		&msg.SeqId,
		&msg.Id,
		&msg.RoomId,
		&msg.SenderId,
		&msg.Body,
		&msg.CreatedAt,
	)

	return msg, mapError(err)
}

func (db *PgChatRepository) GetMessages(ctx context.Context, roomId string) ([]Message, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT seq_id, id, room_id, sender_id, body, created_at FROM messages "+
			"WHERE room_id = $1 ORDER BY created_at ASC, seq_id ASC",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.SeqId, &msg.Id, &msg.RoomId, &msg.SenderId, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, err
		}

		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (db *PgChatRepository) DeleteMessages(ctx context.Context, roomId string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM messages WHERE room_id = $1", roomId)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
